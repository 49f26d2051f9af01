package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lectern-labs/lectern/internal/output"
)

func newConceptsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "concepts <book-id>",
		Short: "Show a book's concept map",
		Long: `Show the entities, themes, and events derived for a book.

Examples:
  lectern concepts war-and-peace
  lectern concepts war-and-peace --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConcepts(cmd, args[0], format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runConcepts(cmd *cobra.Command, bookID, format string) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := newConceptStore(cfg)
	if err != nil {
		return err
	}

	m, err := store.Load(bookID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no concept map found for %q. Run 'lectern index' first", bookID)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	out.Header(fmt.Sprintf("Concept map for %q", m.BookID))
	out.Printf("Generated: %s\n", m.GeneratedAt.Format("2006-01-02 15:04:05"))
	out.Printf("Chapters: %d, blocks: %d, build time: %dms\n\n",
		m.Stats.ChapterCount, m.Stats.TotalBlocks, m.Stats.ProcessingTimeMs)

	out.Header(fmt.Sprintf("Entities (%d)", len(m.Entities)))
	for i, e := range m.Entities {
		if i >= 20 {
			out.Dim(fmt.Sprintf("  ... and %d more", len(m.Entities)-i))
			break
		}
		out.Printf("  %-30s %d mentions, %d chapters\n", e.Text, e.Mentions, len(e.ChapterIDs))
	}
	out.Newline()

	out.Header(fmt.Sprintf("Themes (%d)", len(m.Themes)))
	for _, t := range m.Themes {
		cohesion := ""
		if t.Cohesion > 0 {
			cohesion = fmt.Sprintf(" (cohesion %.2f)", t.Cohesion)
		}
		out.Printf("  %-20s %s%s\n", t.Label, strings.Join(t.Terms, ", "), cohesion)
	}
	out.Newline()

	out.Header(fmt.Sprintf("Events (%d)", len(m.Events)))
	for i, e := range m.Events {
		if i >= 20 {
			out.Dim(fmt.Sprintf("  ... and %d more", len(m.Events)-i))
			break
		}
		out.Printf("  %s: %d shared chapters\n",
			strings.Join(e.Participants, " & "), len(e.ChapterIDs))
	}
	return nil
}
