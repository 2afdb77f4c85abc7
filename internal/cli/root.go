// Package cli is the paperctl command line: a terminal chat with the
// research assistant plus inspection tools for sessions, traces and the
// concept catalog.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/events"
)

// shared is what every subcommand shares.
type shared struct {
	opts    app.Options
	logger  *zap.Logger
	jsonOut bool
}

// boot builds the full engine. Commands that only read event files use bus.
func (r *shared) boot(ctx context.Context) (*app.Components, error) {
	return app.Build(ctx, r.opts, r.logger)
}

func (r *shared) bus() (*events.Bus, error) {
	return events.NewBus(r.opts.EventsDir, r.logger)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewRootCommand assembles paperctl over opts.
func NewRootCommand(opts app.Options, logger *zap.Logger) *cobra.Command {
	rt := &shared{opts: opts, logger: logger}

	root := &cobra.Command{
		Use:   "paperctl",
		Short: "Socratic research assistant",
		Long: `paperctl - turn a vague observation into a testable research question.

Quick Start:
  paperctl chat                      # Talk to the assistant
  paperctl sessions --follow         # Watch sessions as they change
  paperctl summary <session-id>      # Condense one session
  paperctl replay <session-id>       # Replay a session's agent trace
  paperctl concepts search "term"    # Look up the concept catalog`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&rt.jsonOut, "json", false, "JSON output instead of styled text")

	root.AddCommand(
		newChatCommand(rt),
		newReviewCommand(rt),
		newSessionsCommand(rt),
		newSummaryCommand(rt),
		newReplayCommand(rt),
		newConceptsCommand(rt),
		newConfigCommand(rt),
		newMCPCommand(rt),
		newVersionCommand(rt),
	)
	return root
}
