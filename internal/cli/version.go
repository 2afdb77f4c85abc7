package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/buildconfig"
)

func newVersionCommand(rt *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.jsonOut {
				return writeJSON(cmd.OutOrStdout(), buildconfig.VersionInfo())
			}
			fmt.Fprintln(cmd.OutOrStdout(), buildconfig.String())
			return nil
		},
	}
}
