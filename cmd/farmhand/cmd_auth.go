package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/erauner12/farmhand/internal/auth"
	"github.com/erauner12/farmhand/internal/domain"
)

// prompt returns value, or reads one line from in when value is empty.
// Commands share one reader so buffered input is not lost between prompts.
func prompt(in *bufio.Reader, out io.Writer, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

// resultErr turns a failed auth.Result into an error for cobra
func resultErr(res auth.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Message)
}

// applyPreferredLanguage switches the interface to the user's language when
// the catalogs have it
func applyPreferredLanguage(a *app) {
	u := a.auth.State().User
	if u == nil || u.PreferredLanguage == "" || !a.tr.Supported(u.PreferredLanguage) {
		return
	}
	if err := a.tr.SetLanguage(u.PreferredLanguage); err != nil {
		log.Warn().Err(err).Str("language", u.PreferredLanguage).Msg("failed to apply preferred language")
	}
}

func loginCmd(get func() *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email, err = prompt(in, cmd.OutOrStdout(), "Email", email); err != nil {
				return err
			}
			if password, err = prompt(in, cmd.OutOrStdout(), "Password", password); err != nil {
				return err
			}

			res := a.auth.Login(cmd.Context(), auth.Credentials{Email: email, Password: password})
			if err := resultErr(res); err != nil {
				return err
			}
			applyPreferredLanguage(a)

			st := a.auth.State()
			name := st.User.FullName()
			if name == "" {
				name = st.User.Email
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("auth.login_success", name))
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("dashboard.title", st.Role()), st.Role().Dashboard())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

func registerCmd(get func() *app) *cobra.Command {
	var reg auth.Registration
	var role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if reg.Email, err = prompt(in, cmd.OutOrStdout(), "Email", reg.Email); err != nil {
				return err
			}
			if reg.Password, err = prompt(in, cmd.OutOrStdout(), "Password", reg.Password); err != nil {
				return err
			}
			if role != "" {
				reg.Role = domain.ParseRole(role)
				if !reg.Role.Valid() {
					return fmt.Errorf("unknown role %q", role)
				}
			}
			if reg.PreferredLanguage == "" {
				reg.PreferredLanguage = a.tr.Language()
			}

			if err := resultErr(a.auth.Register(cmd.Context(), reg)); err != nil {
				return err
			}
			st := a.auth.State()
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("auth.login_success", st.User.FullName()))
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "phone number")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&role, "role", "farmer", "farmer, veterinarian, worker, loan_officer or admin")
	cmd.Flags().StringVar(&reg.PreferredLanguage, "language", "", "preferred language (defaults to the current one)")
	return cmd
}

func logoutCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			a.auth.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("auth.logged_out"))
			return nil
		},
	}
}

func whoamiCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()

			st, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if st.User == nil {
				// Kept session without a profile: fall back to the token's claims
				claims, err := a.tokens.Claims()
				if err != nil {
					fmt.Fprintln(out, a.tr.T("auth.login_prompt"))
					return nil
				}
				fmt.Fprintf(out, "%s (%s), profile unavailable\n", claims.Subject, claims.Role)
				return nil
			}

			u := st.User
			fmt.Fprintf(out, "%s <%s>\n", u.FullName(), u.Email)
			fmt.Fprintf(out, "role:      %s\n", u.Role)
			fmt.Fprintf(out, "dashboard: %s\n", u.Role.Dashboard())
			if u.PreferredLanguage != "" {
				fmt.Fprintf(out, "language:  %s\n", u.PreferredLanguage)
			}
			if claims, err := a.tokens.Claims(); err == nil && !claims.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "expires:   %s\n", claims.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func forgotPasswordCmd(get func() *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email, err = prompt(in, cmd.OutOrStdout(), "Email", email); err != nil {
				return err
			}
			res := a.auth.RequestPasswordReset(cmd.Context(), email)
			if err := resultErr(res); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func resetPasswordCmd(get func() *app) *cobra.Command {
	var token, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password using a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if token, err = prompt(in, cmd.OutOrStdout(), "Token", token); err != nil {
				return err
			}
			if password, err = prompt(in, cmd.OutOrStdout(), "New password", password); err != nil {
				return err
			}
			res := a.auth.ResetPassword(cmd.Context(), token, password)
			if err := resultErr(res); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "reset token from the email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (prompted when empty)")
	return cmd
}

func changePasswordCmd(get func() *app) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the logged-in user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			in := bufio.NewReader(cmd.InOrStdin())
			if _, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			var err error
			if current, err = prompt(in, cmd.OutOrStdout(), "Current password", current); err != nil {
				return err
			}
			if next, err = prompt(in, cmd.OutOrStdout(), "New password", next); err != nil {
				return err
			}
			res := a.auth.ChangePassword(cmd.Context(), current, next)
			if err := resultErr(res); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password (prompted when empty)")
	cmd.Flags().StringVar(&next, "new", "", "new password (prompted when empty)")
	return cmd
}

func profileCmd(get func() *app) *cobra.Command {
	var upd auth.ProfileUpdate
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update profile fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if _, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			if upd == (auth.ProfileUpdate{}) {
				return errors.New("nothing to update")
			}
			res := a.auth.UpdateProfile(cmd.Context(), upd)
			if err := resultErr(res); err != nil {
				return err
			}
			applyPreferredLanguage(a)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&upd.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&upd.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&upd.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&upd.PreferredLanguage, "language", "", "preferred language")
	return cmd
}
