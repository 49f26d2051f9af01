// Package store provides the approximate-nearest-neighbor backend used by
// the per-book vector index. The backend is deliberately narrow: integer
// keys in, scored integer keys out. Chunk-id mapping and chunk records are
// the index service's concern.
package store

// Neighbor is a single ANN search hit.
type Neighbor struct {
	Key   uint64  // Contiguous key assigned at build time
	Score float32 // Similarity: 1 - cosine distance, higher is closer
}

// Config configures the ANN backend.
type Config struct {
	// Dimensions is the fixed vector dimension every entry must match.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultConfig returns sensible defaults for the given dimension.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// VectorBackend is the ANN capability the index service builds on. The
// concrete implementation (HNSW graph, or brute force for small N) is
// swappable without touching the index contract.
type VectorBackend interface {
	// Add inserts a vector under a key. Adding an existing key replaces it.
	Add(key uint64, vector []float32) error

	// Search finds up to k nearest neighbors to the query vector,
	// ordered by descending score.
	Search(query []float32, k int) ([]Neighbor, error)

	// Len returns the number of stored vectors.
	Len() int

	// Persistence
	Save(path string) error
	Load(path string) error
}
