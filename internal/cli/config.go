package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/config"
)

func newConfigCommand(rt *shared) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect agent configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load every agent config and report problems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configs, err := config.LoadAgentConfigs(rt.opts.AgentConfigDir, app.AgentNames...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rt.jsonOut {
				return writeJSON(out, configs)
			}
			for _, name := range configs.Names() {
				cfg := configs.Get(name)
				fmt.Fprintf(out, "%s %s  model=%s max_total_tokens=%d\n",
					styleOK.Render("ok"), name, cfg.Model, cfg.ContextLimits.MaxTotalTokens)
			}
			return nil
		},
	})
	return cmd
}
