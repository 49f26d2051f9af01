package chunk

// Chunk size defaults (token counts use the character heuristic below)
const (
	// DefaultTargetTokens is the token budget a window accumulates toward.
	DefaultTargetTokens = 800
	// DefaultOverlapTokens is the overlap carried into the next window (10%).
	DefaultOverlapTokens = 80
	// TokensPerChar approximates tokens from characters: 4 chars = 1 token.
	TokensPerChar = 4
)

// BlockSeparator joins contributing block texts inside a chunk. Offsets
// account for one separator between consecutive blocks, never a trailing one.
const BlockSeparator = "\n\n"

// Chunk is a bounded, possibly overlapping window of one chapter's text.
// It is the unit of retrieval: embeddings are computed per chunk and search
// results reference chunks by ID.
type Chunk struct {
	// ID is deterministic: "{bookID}:{chapterID}:{ordinal}". The chapter ID
	// being a substring of the chunk ID is relied on by centroid computation.
	ID          string   `json:"id"`
	BookID      string   `json:"bookId"`
	ChapterID   string   `json:"chapterId"`
	Text        string   `json:"text"`
	BlockIDs    []string `json:"blockIds"`
	StartOffset int      `json:"startOffset"`
	EndOffset   int      `json:"endOffset"`
	Ordinal     int      `json:"ordinal"`
}

// Options configures the chunker windowing.
type Options struct {
	TargetTokens  int // Token budget per chunk (default: DefaultTargetTokens)
	OverlapTokens int // Overlap seeded into the next window (default: DefaultOverlapTokens)
}

// estimateTokens estimates the number of tokens in content.
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}
