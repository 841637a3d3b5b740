package cmd

import (
	"fmt"

	"opentune/internal/reconcile"

	"github.com/spf13/cobra"
)

var statusOutputFormat string

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last run",
		Long: `Prints the record the last run left in the data directory. Nothing is
contacted or changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(statusOutputFormat); err != nil {
				return err
			}
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := reconcile.LoadRecord(application.RecordPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return printObject(out, statusOutputFormat, res, statusRows(res, statusText(out, string(res.Status))))
		},
	}
	cmd.Flags().StringVarP(&statusOutputFormat, "output", "o", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func statusRows(res *reconcile.RunResult, status string) []field {
	rows := []field{
		{"Run ID", res.RunID},
		{"Mode", string(res.Mode)},
		{"Status", status},
		{"Summary", res.Summary},
		{"Revision", res.Revision},
		{"Error kind", res.ErrorKind},
		{"Outcome", res.Outcome},
		{"Started", formatTime(res.StartedAt)},
		{"Duration", fmt.Sprintf("%.1fs", res.Elapsed().Seconds())},
	}
	if res.PolicyID > 0 {
		rows = append(rows, field{"Policy", fmt.Sprintf("%s (#%s)", res.PolicyName, formatID(res.PolicyID))})
	}
	if res.Mode == "centralized" {
		rows = append(rows, field{"Reported", yesNo(res.Reported)})
	}
	if res.Forced {
		rows = append(rows, field{"Forced", "yes"})
	}
	return rows
}
