package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

func newConceptsCommand(rt *shared) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concepts",
		Short: "Inspect the concept catalog",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List concepts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.boot(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			concepts, err := c.Catalog.ListConcepts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				if concepts == nil {
					concepts = []domain.Concept{}
				}
				return writeJSON(cmd.OutOrStdout(), concepts)
			}
			t := conceptTable("LABEL", "VARIATIONS", "ID")
			for _, k := range concepts {
				t.Row(k.Label, strings.Join(k.Variations, ", "), k.ID.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Max concepts")

	var (
		topK      int
		threshold float64
	)
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Find concepts by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.boot(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			matches, err := c.Catalog.FindSimilar(cmd.Context(), strings.Join(args, " "), topK, threshold)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return writeJSON(cmd.OutOrStdout(), matches)
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), styleMeta.Render("no matches"))
				return nil
			}
			t := conceptTable("LABEL", "SIMILARITY", "ESSENCE")
			for _, m := range matches {
				t.Row(m.Concept.Label, fmt.Sprintf("%.2f", m.Similarity), m.Concept.Essence)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	search.Flags().IntVar(&topK, "top-k", service.DefaultSearchTopK, "Max results")
	search.Flags().Float64Var(&threshold, "threshold", domain.SameConceptThreshold, "Minimum similarity")

	cmd.AddCommand(list, search)
	return cmd
}

func conceptTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleMeta).
		Headers(headers...)
}
