// Command farmhand is a terminal client for the farm management platform.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd, done := rootCmd()
	err := cmd.Execute()
	done(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootCmd builds the command tree. done must run after Execute, whether or
// not the command failed, to settle an expired session and close state.
func rootCmd() (*cobra.Command, func(w io.Writer)) {
	var (
		opts rootOptions
		a    *app
	)

	cmd := &cobra.Command{
		Use:   "farmhand",
		Short: "Farm management platform client",
		Long: `farmhand talks to the farm management API: log in, pick a farm,
browse records and follow notifications.

Configuration comes from FARMHAND_* environment variables and an optional
.env file. Run cmd/mockapi for a local backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd.Context(), opts)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to read (missing file is ignored)")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", "", "API base URL (overrides FARMHAND_API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.backend, "state", "", "state backend: file, sqlite or memory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Subcommands receive a getter because the app only exists once
	// PersistentPreRunE has run
	get := func() *app { return a }

	cmd.AddCommand(
		loginCmd(get),
		registerCmd(get),
		logoutCmd(get),
		whoamiCmd(get),
		forgotPasswordCmd(get),
		resetPasswordCmd(get),
		changePasswordCmd(get),
		profileCmd(get),
		farmsCmd(get),
		notificationsCmd(get),
		dashboardCmd(get),
		langCmd(get),
		themeCmd(get),
	)
	done := func(w io.Writer) {
		if a != nil {
			a.finish(w)
			a.close()
		}
	}
	return cmd, done
}
