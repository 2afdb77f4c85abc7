package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/service"
)

func newReviewCommand(rt *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "review <hypothesis>",
		Short: "Ask the methodologist to review a hypothesis, answering its questions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.boot(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			sessionID := "review-" + uuid.NewString()[:8]
			res, err := c.Engine.Review(ctx, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for res.Status == service.ReviewAwaitingInput {
				fmt.Fprintln(out, styleAssistant.Render(res.Question))
				fmt.Fprint(out, "> ")
				if !sc.Scan() {
					return fmt.Errorf("review %s left waiting for an answer", sessionID)
				}
				if res, err = c.Engine.ResumeReview(ctx, sessionID, sc.Text()); err != nil {
					return err
				}
			}
			if rt.jsonOut {
				return writeJSON(out, res)
			}
			v := res.Verdict
			if v == nil {
				return fmt.Errorf("review %s finished without a verdict", sessionID)
			}
			fmt.Fprintln(out, styleOK.Render(string(v.Status))+" "+v.Justification)
			for _, imp := range v.Improvements {
				fmt.Fprintf(out, "- %s: %s\n", imp.Aspect, imp.Suggestion)
			}
			return nil
		},
	}
}
