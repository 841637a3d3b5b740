package cmd

import (
	"fmt"
	"io"
	"time"

	"opentune/internal/reconcile"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one reconciliation run",
		Long: `Loads the agent configuration, obtains the configuration source, tests
the machine against it and applies it when the machine is not in the
desired state. In centralized mode the outcome is reported to the control
plane.

The exit code is 0 when the run succeeded or was skipped because no policy
is assigned, and 1 when it failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			out := cmd.OutOrStdout()

			// Console logs and a spinner would fight over the terminal.
			var s *spinner.Spinner
			if quiet && isTerminal(out) {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
				s.Suffix = " Reconciling..."
				s.Start()
			}

			result := application.Run(cmd.Context(), force)
			if s != nil {
				s.Stop()
			}

			printRunResult(out, result)
			if result.ExitCode() != ExitCodeSuccess {
				return &RunFailedError{Result: result}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Apply even when the machine is already in the desired state")
	return cmd
}

func printRunResult(w io.Writer, res *reconcile.RunResult) {
	fmt.Fprintf(w, "%s: %s\n", statusText(w, string(res.Status)), res.Summary)
	if res.Revision != "" {
		fmt.Fprintf(w, "  Revision: %s\n", res.Revision)
	}
	if res.PolicyName != "" {
		fmt.Fprintf(w, "  Policy:   %s (#%d)\n", res.PolicyName, res.PolicyID)
	}
	fmt.Fprintf(w, "  Run ID:   %s (%.1fs)\n", res.RunID, res.Elapsed().Seconds())
}
