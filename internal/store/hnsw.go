package store

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	lerrors "github.com/lectern-labs/lectern/internal/errors"
)

// HNSWBackend implements VectorBackend using the coder/hnsw pure Go HNSW
// graph with cosine distance and full-precision storage.
type HNSWBackend struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config
}

// NewHNSWBackend creates a new HNSW-based vector backend.
func NewHNSWBackend(cfg Config) (*HNSWBackend, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25 // level generation factor (1/ln(M))

	return &HNSWBackend{
		graph:  graph,
		config: cfg,
	}, nil
}

// Add inserts a vector under a key. Vectors are normalized so cosine
// distance behaves as expected for unnormalized inputs.
func (s *HNSWBackend) Add(key uint64, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vector) != s.config.Dimensions {
		return lerrors.DimensionMismatch(s.config.Dimensions, len(vector))
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	s.graph.Add(hnsw.MakeNode(key, vec))
	return nil
}

// Search finds up to k nearest neighbors, ordered by descending score.
func (s *HNSWBackend) Search(query []float32, k int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.config.Dimensions {
		return nil, lerrors.DimensionMismatch(s.config.Dimensions, len(query))
	}

	if s.graph.Len() == 0 {
		return []Neighbor{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := s.graph.Search(normalized, k)

	results := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, Neighbor{
			Key:   node.Key,
			Score: 1.0 - distance,
		})
	}

	// Graph traversal order is not score order; callers rely on ranked
	// results for top-k truncation.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key < results[j].Key
	})

	return results, nil
}

// Len returns the number of stored vectors.
func (s *HNSWBackend) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len()
}

// Save persists the graph to disk using a temp file + rename so readers
// never observe a partially written index.
func (s *HNSWBackend) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return nil
}

// Load loads the graph from disk, replacing any in-memory contents.
func (s *HNSWBackend) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader
	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	return nil
}

// Verify interface implementation
var _ VectorBackend = (*HNSWBackend)(nil)

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
