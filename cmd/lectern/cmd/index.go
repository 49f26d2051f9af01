package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lectern-labs/lectern/internal/book"
	"github.com/lectern-labs/lectern/internal/chunk"
	"github.com/lectern-labs/lectern/internal/concept"
	"github.com/lectern-labs/lectern/internal/config"
	"github.com/lectern-labs/lectern/internal/embed"
	"github.com/lectern-labs/lectern/internal/output"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	skipConcepts bool
	force        bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <book.json>",
		Short: "Build the semantic index for a book",
		Long: `Build the semantic index and concept map for a book.

The book file is a JSON document with chapters, sections, and text
blocks. Chunks are derived per chapter, embedded, and persisted as a
vector index under the data directory.

Examples:
  lectern index war-and-peace.json
  lectern index moby-dick.json --skip-concepts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipConcepts, "skip-concepts", false, "Skip concept map generation")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Rebuild even if an index already exists")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := book.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load book: %w", err)
	}
	slog.Info("index_started",
		slog.String("book_id", b.ID),
		slog.Int("chapters", len(b.Chapters)))

	svc, err := newIndexService(cfg)
	if err != nil {
		return err
	}

	if svc.Exists(b.ID) && !opts.force {
		out.Warningf("Index for %q already exists. Use --force to rebuild.", b.ID)
		return nil
	}

	// Chunk every chapter.
	chunker := chunk.NewWithOptions(chunk.Options{
		TargetTokens:  cfg.Chunking.TargetTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
	})
	var chunks []*chunk.Chunk
	for _, ch := range b.Chapters {
		chunks = append(chunks, chunker.Chunk(ch.Blocks(), b.ID, ch.ID)...)
	}
	out.Printf("Chunked %d chapters into %d chunks\n", len(b.Chapters), len(chunks))

	// Embed in parallel batches.
	embedder := newEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	embeddings, err := embedChunks(ctx, embedder, chunks, cfg.Embeddings.BatchSize, out)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if err := svc.Build(ctx, b.ID, chunks, embeddings); err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	out.Successf("Indexed %q (%d chunks)", b.ID, len(chunks))

	if !opts.skipConcepts {
		if err := buildConcepts(ctx, cfg, b, chunks, embeddings); err != nil {
			return fmt.Errorf("concept map build failed: %w", err)
		}
		out.Successf("Concept map built for %q", b.ID)
	}

	slog.Info("index_complete",
		slog.String("book_id", b.ID),
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// embedChunks embeds all chunks in batches across workers. The result is
// aligned with chunks.
func embedChunks(ctx context.Context, embedder embed.Embedder, chunks []*chunk.Chunk, batchSize int, out *output.Writer) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	embeddings := make([][]float32, len(chunks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := lo + batchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		lo, hi := lo, hi
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, c := range chunks[lo:hi] {
				texts = append(texts, c.Text)
			}
			vecs, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			copy(embeddings[lo:hi], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Printf("Embedded %d chunks\n", len(chunks))
	return embeddings, nil
}

// buildConcepts derives and stores the concept map for the book.
func buildConcepts(ctx context.Context, cfg *config.Config, b *book.Book, chunks []*chunk.Chunk, embeddings [][]float32) error {
	store, err := newConceptStore(cfg)
	if err != nil {
		return err
	}

	chunkEmbeddings := make(map[string][]float32, len(chunks))
	for i, c := range chunks {
		chunkEmbeddings[c.ID] = embeddings[i]
	}

	builder := concept.NewBuilder(
		concept.NewTFIDFSalience(),
		concept.NewCapitalizedEntityExtractor(),
		concept.NewTermThemeClusterer(),
	)
	m, err := builder.Build(ctx, b.ID, b.Chapters, chunkEmbeddings)
	if err != nil {
		return err
	}
	return store.Save(m)
}
