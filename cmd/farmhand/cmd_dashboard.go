package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/uistate"
)

func dashboardCmd(get func() *app) *cobra.Command {
	var farmID string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show record counts for your role's dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()

			st, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			role := st.Role()
			if role == "" {
				// Profile unavailable: the token's claims still name the role
				if claims, err := a.tokens.Claims(); err == nil {
					role = domain.ParseRole(claims.Role)
				}
			}

			id := domain.ID(farmID)
			if id == "" {
				id = a.farms.SelectedFarmID()
			}

			summary, err := a.res.Dashboard(cmd.Context(), role, id)
			if err != nil {
				a.reportStatus(cmd.ErrOrStderr())
				return err
			}

			title := a.tr.T("dashboard.title", strings.ReplaceAll(string(role), "_", " "))
			fmt.Fprintln(out, title)
			fmt.Fprintln(out, strings.Repeat("=", len(title)))
			if f := a.farms.SelectedFarm(); f != nil && f.ID == id {
				fmt.Fprintln(out, a.tr.T("farm.selected", f.Name))
			} else if id == "" {
				fmt.Fprintln(out, a.tr.T("farm.none_selected"))
			}
			for _, name := range summary.Sections() {
				if msg, failed := summary.Errors[name]; failed {
					fmt.Fprintf(out, "%-18s ! %s\n", name, msg)
					continue
				}
				fmt.Fprintf(out, "%-18s %d\n", name, summary.Counts[name])
			}
			if len(summary.Errors) > 0 {
				a.reportStatus(cmd.ErrOrStderr())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&farmID, "farm", "", "farm id (defaults to the selected farm)")
	return cmd
}

func langCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang",
		Short: "Show or change the interface language",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current and available languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			current := a.tr.Language()
			for _, l := range a.tr.Languages() {
				mark := " "
				if l == current {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, l)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <language>",
		Short: "Change the interface language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.tr.SetLanguage(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("language.changed"))
			return nil
		},
	})

	return cmd
}

func themeCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Show or set the color theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(uistate.ThemeLight), string(uistate.ThemeDark)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if len(args) == 1 {
				if err := a.ui.SetTheme(uistate.Theme(args[0])); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.ui.Theme())
			return nil
		},
	}
}
