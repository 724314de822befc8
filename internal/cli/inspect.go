package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var errDiagnosticsFailed = errors.New("diagnostics reported failures")

func (a *cliApp) modelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List downloadable models and whether they are present",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tSTATUS\tDESCRIPTION")
			for _, model := range svc.Catalog.Models() {
				status := "-"
				if model.Downloaded {
					status = model.LocalPath
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", model.ID, model.Name, model.SizeLabel, status, model.Description)
			}
			return w.Flush()
		}),
	}
}

func (a *cliApp) doctorCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, model paths and GPU availability",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			report := svc.Diagnostics()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				for _, item := range report.Items {
					fmt.Fprintf(out, "[%s] %s: %s\n", item.Status, item.Name, item.Message)
					if item.Hint != "" {
						fmt.Fprintf(out, "       %s\n", item.Hint)
					}
				}
			}

			if report.HasFailures {
				return errDiagnosticsFailed
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
