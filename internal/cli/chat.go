package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

const chatHelp = `Commands: /observer  /end [status]  /reset  /quit`

func newChatCommand(rt *shared) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the research assistant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.boot(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if sessionID == "" {
				sessionID = "cli-" + uuid.NewString()[:8]
			}
			return runChat(cmd.Context(), c.Engine, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: a new one)")
	return cmd
}

// runChat reads one user message per line until EOF or /quit. A session that
// had at least one turn is completed on exit.
func runChat(ctx context.Context, engine *service.Engine, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, styleMeta.Render("session "+sessionID+"  "+chatHelp))
	sc := bufio.NewScanner(in)
	turns := 0
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cmd, arg, _ := strings.Cut(line, " ")
			switch cmd {
			case "/quit":
				return endChat(engine, sessionID, turns, "", out)
			case "/end":
				return endChat(engine, sessionID, turns, strings.TrimSpace(arg), out)
			case "/reset":
				if err := engine.Reset(ctx, sessionID); err != nil {
					return err
				}
				turns = 0
				fmt.Fprintln(out, styleMeta.Render("session reset"))
			case "/observer":
				printObserver(engine, sessionID, out)
			default:
				fmt.Fprintln(out, styleMeta.Render(chatHelp))
			}
			continue
		}

		res, err := engine.ProcessTurn(ctx, sessionID, line)
		switch {
		case errors.Is(err, service.ErrTurnAborted):
			fmt.Fprintln(out, styleWarn.Render(service.RecoveryMessage))
			continue
		case err != nil:
			return err
		}
		turns++
		printTurn(res, out)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return endChat(engine, sessionID, turns, "", out)
}

func endChat(engine *service.Engine, sessionID string, turns int, status string, out io.Writer) error {
	if turns == 0 {
		return nil
	}
	p, err := engine.EndSession(sessionID, status)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, styleMeta.Render(fmt.Sprintf("session %s %s: %d turns, %d tokens, $%.4f",
		sessionID, p.FinalStatus, p.Turns, p.TotalTokens, p.TotalCost)))
	return nil
}

func printTurn(res *service.TurnResult, out io.Writer) {
	fmt.Fprintln(out, styleAssistant.Render(res.Message))
	meta := fmt.Sprintf("[%s · %s", res.NextStep, res.Stage)
	if len(res.AgentsRun) > 0 {
		meta += " · ran " + strings.Join(res.AgentsRun, ", ")
	}
	if res.HopLimitReached {
		meta += " · hop limit"
	}
	fmt.Fprintln(out, styleMeta.Render(meta+"]"))
	if s := res.AgentSuggestion; s != nil {
		fmt.Fprintln(out, styleOK.Render("suggests "+s.Agent)+" "+s.Justification)
	}
	if res.ReflectionPrompt != "" {
		fmt.Fprintln(out, styleMeta.Render("reflect: "+res.ReflectionPrompt))
	}
}

func printObserver(engine *service.Engine, sessionID string, out io.Writer) {
	snap, err := engine.ObserverSnapshot(sessionID)
	if err != nil {
		fmt.Fprintln(out, styleMeta.Render("no observations yet"))
		return
	}
	fmt.Fprintln(out, styleHeader.Render("observer"))
	fmt.Fprint(out, snap.CognitiveModel.Summary())
	if m := snap.Metrics; m != nil {
		fmt.Fprintf(out, "solidez %.2f  completude %.2f\n", m.Solidez, m.Completude)
	}
	if c := snap.Clarity; c != nil {
		fmt.Fprintf(out, "clarity %s (%d/5)\n", c.ClarityLevel, c.ClarityScore)
	}
	if p := snap.PendingClarification; p != nil && p.NeedsClarification {
		fmt.Fprintf(out, "pending %s: %s\n", p.ClarificationType, p.Description)
	}
}
