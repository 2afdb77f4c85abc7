package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/mcpserver"
)

func newMCPCommand(rt *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the catalog and session tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.boot(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return server.ServeStdio(mcpserver.New(c))
		},
	}
}
