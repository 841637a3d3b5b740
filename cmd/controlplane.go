package cmd

import (
	"fmt"
	"strconv"
	"time"

	"opentune/internal/controlplane"

	"github.com/spf13/cobra"
)

var (
	heartbeatOutputFormat string
	desiredOutputFormat   string
)

func newHeartbeatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Send a heartbeat to the control plane",
		Long: `Tells the control plane this node is alive and sends its host facts,
without fetching or applying anything. Only available in centralized mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(heartbeatOutputFormat); err != nil {
				return err
			}
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			clients, err := application.ControlPlane()
			if err != nil {
				return err
			}
			resp, err := clients.Primary.Heartbeat(cmd.Context(), "", "")
			if err != nil {
				return err
			}

			return printObject(cmd.OutOrStdout(), heartbeatOutputFormat, resp, []field{
				{"Node", fmt.Sprintf("%s (#%d)", resp.NodeName, resp.NodeID)},
				{"Accepted", yesNo(resp.OK)},
				{"Server time", formatTime(resp.ServerTime.Time)},
			})
		},
	}
	cmd.Flags().StringVarP(&heartbeatOutputFormat, "output", "o", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func newDesiredStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "desired-state",
		Aliases: []string{"desired"},
		Short:   "Show the desired state the control plane assigns to this node",
		Long: `Fetches the desired state of this node from the control plane and prints
it. Nothing is synchronized or applied. Only available in centralized mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(desiredOutputFormat); err != nil {
				return err
			}
			application, err := newApplication()
			if err != nil {
				return err
			}
			defer application.Close()

			clients, err := application.ControlPlane()
			if err != nil {
				return err
			}
			ds, err := clients.Primary.FetchDesiredState(cmd.Context())
			if err != nil {
				return err
			}

			return printObject(cmd.OutOrStdout(), desiredOutputFormat, ds, desiredStateRows(ds))
		},
	}
	cmd.Flags().StringVarP(&desiredOutputFormat, "output", "o", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func desiredStateRows(ds *controlplane.DesiredState) []field {
	if !ds.PolicyAssigned {
		return []field{{"Policy", "none assigned"}}
	}
	rows := []field{
		{"Policy", fmt.Sprintf("%s (#%d)", ds.PolicyName, ds.PolicyID)},
		{"Config path", ds.ConfigPath},
		{"Package URL", ds.PackageURL},
	}
	if repo := ds.Repository; repo != nil {
		rows = append(rows,
			field{"Repository", repo.Name},
			field{"Repository URL", repo.URL},
			field{"Branch", repo.Branch},
		)
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
