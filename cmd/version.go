package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the Cobra command for displaying the agent version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of opentune-agent",
		Long:  `Prints the agent version together with the platform it was built for.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opentune-agent version %s (%s/%s)\n", GetVersion(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
