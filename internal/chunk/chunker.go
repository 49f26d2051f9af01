// Package chunk turns a chapter's ordered blocks into ordered, overlapping
// retrieval chunks with exact character offsets into the chapter's
// concatenated block text.
package chunk

import (
	"fmt"
	"strings"

	"github.com/lectern-labs/lectern/internal/book"
)

// Chunker splits chapter blocks into retrieval chunks. It is stateless and
// safe for concurrent use.
type Chunker struct {
	options Options
}

// New creates a chunker with default options.
func New() *Chunker {
	return NewWithOptions(Options{
		TargetTokens:  DefaultTargetTokens,
		OverlapTokens: DefaultOverlapTokens,
	})
}

// NewWithOptions creates a chunker with custom options. OverlapTokens is
// taken literally, so zero disables overlap entirely. A non-positive
// TargetTokens falls back to the default; a negative OverlapTokens is
// clamped to zero.
func NewWithOptions(opts Options) *Chunker {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = DefaultTargetTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	return &Chunker{options: opts}
}

// Chunk splits the chapter's blocks into ordered overlapping chunks.
// Pure and deterministic: the same input always yields the same output.
// Empty input yields empty output.
func (c *Chunker) Chunk(blocks []book.Block, bookID, chapterID string) []*Chunk {
	if len(blocks) == 0 {
		return nil
	}

	// Precompute per-block token estimates and start offsets into the
	// chapter's concatenated text (one separator between consecutive blocks).
	tokens := make([]int, len(blocks))
	offsets := make([]int, len(blocks))
	pos := 0
	for i, b := range blocks {
		tokens[i] = estimateTokens(b.Text)
		offsets[i] = pos
		pos += len(b.Text) + len(BlockSeparator)
	}

	var chunks []*Chunk

	// window holds indices into blocks for the chunk being accumulated.
	var window []int
	windowTokens := 0

	emit := func() {
		chunks = append(chunks, c.buildChunk(blocks, window, offsets, bookID, chapterID, len(chunks)))
	}

	for i := range blocks {
		if len(window) > 0 && windowTokens+tokens[i] > c.options.TargetTokens {
			emit()

			// Seed the next window with trailing whole blocks of the emitted
			// window while the overlap total stays within budget. An
			// oversized trailing block yields no overlap at all.
			var seed []int
			seedTokens := 0
			for j := len(window) - 1; j >= 0; j-- {
				if seedTokens+tokens[window[j]] > c.options.OverlapTokens {
					break
				}
				seed = append([]int{window[j]}, seed...)
				seedTokens += tokens[window[j]]
			}
			window = seed
			windowTokens = seedTokens
		}

		window = append(window, i)
		windowTokens += tokens[i]
	}

	// Flush the remaining window even if under target.
	if len(window) > 0 {
		emit()
	}

	return chunks
}

// buildChunk assembles a Chunk from the window's block indices.
func (c *Chunker) buildChunk(blocks []book.Block, window, offsets []int, bookID, chapterID string, ordinal int) *Chunk {
	first := window[0]
	last := window[len(window)-1]

	blockIDs := make([]string, len(window))
	var text strings.Builder
	for i, idx := range window {
		blockIDs[i] = blocks[idx].ID
		if i > 0 {
			text.WriteString(BlockSeparator)
		}
		text.WriteString(blocks[idx].Text)
	}

	return &Chunk{
		ID:          ChunkID(bookID, chapterID, ordinal),
		BookID:      bookID,
		ChapterID:   chapterID,
		Text:        text.String(),
		BlockIDs:    blockIDs,
		StartOffset: offsets[first],
		EndOffset:   offsets[last] + len(blocks[last].Text),
		Ordinal:     ordinal,
	}
}

// ChunkID derives the deterministic chunk identifier for a book, chapter and
// 0-based ordinal within the chapter.
func ChunkID(bookID, chapterID string, ordinal int) string {
	return fmt.Sprintf("%s:%s:%04d", bookID, chapterID, ordinal)
}
