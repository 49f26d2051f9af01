package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lectern-labs/lectern/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	chapters []string
	format   string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <book-id> <query>",
		Short: "Search a book's index",
		Long: `Search a book's semantic index for relevant passages.

The query is embedded with the same model used at index time and
matched against chunk vectors by cosine similarity.

Examples:
  lectern search war-and-peace "why did Pierre duel Dolokhov"
  lectern search moby-dick "the whiteness of the whale" --limit 5
  lectern search war-and-peace "Natasha" --chapter ch-12 --chapter ch-13`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args[1:], " ")
			return runSearch(cmd.Context(), cmd, args[0], query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&opts.chapters, "chapter", "c", nil, "Restrict to chapter IDs (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, bookID, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := newIndexService(cfg)
	if err != nil {
		return err
	}
	if !svc.Exists(bookID) {
		return fmt.Errorf("no index found for %q. Run 'lectern index' first", bookID)
	}

	embedder := newEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := svc.Search(ctx, bookID, vector, opts.limit, opts.chapters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete",
		slog.String("book_id", bookID),
		slog.Int("results", len(results)))

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	type hit struct {
		ChunkID   string  `json:"chunk_id"`
		ChapterID string  `json:"chapter_id,omitempty"`
		Score     float32 `json:"score"`
		Text      string  `json:"text,omitempty"`
	}

	hits := make([]hit, 0, len(results))
	for _, r := range results {
		h := hit{ChunkID: r.ChunkID, Score: r.Score}
		if c, err := svc.GetChunk(ctx, bookID, r.ChunkID); err == nil && c != nil {
			h.ChapterID = c.ChapterID
			h.Text = c.Text
		}
		hits = append(hits, h)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	out.Printf("🔍 Found %d results for %q:\n\n", len(hits), query)
	for i, h := range hits {
		out.Printf("%d. %s (score: %.3f)\n", i+1, h.ChunkID, h.Score)
		for _, line := range snippet(h.Text, 3) {
			out.Printf("   %s\n", line)
		}
		out.Newline()
	}
	return nil
}

// snippet returns the first n lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
