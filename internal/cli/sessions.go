package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/events"
)

func newSessionsCommand(rt *shared) *cobra.Command {
	var (
		maxAge time.Duration
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with recorded events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bus, err := rt.bus()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := printSessions(bus, maxAge, rt.jsonOut, out); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return followSessions(ctx, rt, bus, maxAge, out)
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Only sessions active within this window (default: all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Reprint the listing whenever a session changes")
	return cmd
}

// followSessions reprints the listing on every change until ctx is done.
func followSessions(ctx context.Context, rt *shared, bus *events.Bus, maxAge time.Duration, out io.Writer) error {
	changed := make(chan []string, 1)
	w := events.NewWatcher(bus.Dir(), func(ids []string) {
		select {
		case changed <- ids:
		default:
		}
	}, rt.logger)
	if err := w.Start(); err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ids := <-changed:
			fmt.Fprintln(out, styleMeta.Render(fmt.Sprintf("changed: %v", ids)))
			if err := printSessions(bus, maxAge, rt.jsonOut, out); err != nil {
				return err
			}
		}
	}
}

func printSessions(bus *events.Bus, maxAge time.Duration, jsonOut bool, out io.Writer) error {
	infos, err := bus.ListActiveSessions(maxAge)
	if err != nil {
		return err
	}
	if jsonOut {
		if infos == nil {
			infos = []domain.SessionInfo{}
		}
		return writeJSON(out, infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, styleMeta.Render("no sessions"))
		return nil
	}
	fmt.Fprintln(out, sessionTable(infos))
	return nil
}

func sessionTable(infos []domain.SessionInfo) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMeta).
		Headers("SESSION", "EVENTS", "LAST EVENT")
	for _, s := range infos {
		t.Row(s.SessionID, fmt.Sprint(s.EventCount), domain.FormatTimestamp(s.LastEventAt))
	}
	return t.String()
}

func newSummaryCommand(rt *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <session-id>",
		Short: "Condense one session's event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := rt.bus()
			if err != nil {
				return err
			}
			s, err := bus.GetSessionSummary(args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("session %s has no events", args[0])
			}
			out := cmd.OutOrStdout()
			if rt.jsonOut {
				return writeJSON(out, s)
			}
			fmt.Fprintln(out, styleHeader.Render("session "+s.SessionID))
			fmt.Fprintf(out, "status:   %s\n", s.Status)
			if s.FinalStatus != nil {
				fmt.Fprintf(out, "final:    %s\n", *s.FinalStatus)
			}
			fmt.Fprintf(out, "events:   %d\n", s.TotalEvents)
			if s.StartedAt != nil {
				fmt.Fprintf(out, "started:  %s\n", *s.StartedAt)
			}
			if s.LastEventAt != nil {
				fmt.Fprintf(out, "last:     %s\n", *s.LastEventAt)
			}
			if s.UserInput != nil {
				fmt.Fprintf(out, "opening:  %s\n", *s.UserInput)
			}
			return nil
		},
	}
}

func newReplayCommand(rt *shared) *cobra.Command {
	var (
		file string
		gap  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "replay <trace-id>",
		Short: "Replay a session's structured agent trace as a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			traceID := ""
			if len(args) == 1 {
				traceID = args[0]
			}
			path := file
			if path == "" {
				if traceID == "" {
					return fmt.Errorf("a trace id or --file is required")
				}
				if !events.ValidSessionID(traceID) {
					return fmt.Errorf("%w: %q", events.ErrInvalidSessionID, traceID)
				}
				path = filepath.Join(rt.opts.StructuredLogDir, traceID+".jsonl")
			}
			if traceID == "" {
				traceID = filepath.Base(path)
			}

			entries, skipped, err := events.ReadLogFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			turns := events.GroupTurns(entries, gap)
			if rt.jsonOut {
				return writeJSON(out, turns)
			}
			fmt.Fprintln(out, events.RenderReplay(traceID, turns))
			if skipped > 0 {
				fmt.Fprintln(out, styleWarn.Render(fmt.Sprintf("%d malformed lines skipped", skipped)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read this log file instead of the trace's default path")
	cmd.Flags().DurationVar(&gap, "gap", events.TurnGap, "Pause that starts a new turn")
	return cmd
}
