package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erauner12/farmhand/internal/domain"
	"github.com/erauner12/farmhand/internal/farm"
)

func farmsCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "farms",
		Short: "List farms and manage the selected farm",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List farms visible to the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if _, err := a.requireSession(cmd.Context(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			farms, err := a.res.Farms.List(cmd.Context(), nil)
			if err != nil {
				a.reportStatus(cmd.ErrOrStderr())
				return err
			}

			selected := a.farms.SelectedFarmID()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tNAME\tLOCATION\tTYPE")
			for _, f := range farms {
				mark := ""
				if f.ID == selected {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, f.ID, f.Name, f.Location, f.FarmType)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "select <id>",
		Short: "Select the farm to work on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.farms.SetSelectedFarmID(domain.ID(args[0])); err != nil {
				return err
			}
			// Fetch the farm so later commands can show its name offline
			f, err := a.farms.Refresh(cmd.Context())
			if err != nil {
				a.reportStatus(cmd.ErrOrStderr())
				fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("farm.selected", args[0]))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("farm.selected", f.Name))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the selected farm",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			out := cmd.OutOrStdout()

			f := a.farms.SelectedFarm()
			if f == nil {
				id := a.farms.SelectedFarmID()
				if id == "" {
					fmt.Fprintln(out, a.tr.T("farm.none_selected"))
					return nil
				}
				var err error
				if f, err = a.farms.Refresh(cmd.Context()); err != nil {
					if errors.Is(err, farm.ErrNoSelection) {
						fmt.Fprintln(out, a.tr.T("farm.none_selected"))
						return nil
					}
					return err
				}
			}

			fmt.Fprintln(out, a.tr.T("farm.selected", f.Name))
			fmt.Fprintf(out, "id:       %s\n", f.ID)
			if f.Location != "" {
				fmt.Fprintf(out, "location: %s\n", f.Location)
			}
			if f.SizeAcre > 0 {
				fmt.Fprintf(out, "size:     %g\n", f.SizeAcre)
			}
			if f.FarmType != "" {
				fmt.Fprintf(out, "type:     %s\n", f.FarmType)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the selected farm",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.farms.ClearSelectedFarmID(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.tr.T("farm.cleared"))
			return nil
		},
	})

	return cmd
}
