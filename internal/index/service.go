// Package index owns the lifecycle of per-book vector indexes: build,
// search, cache, evict, delete. The three on-disk artifacts per book (HNSW
// graph, id-to-key mapping, chunk table) are the authoritative state; the
// in-memory cache is an opportunistic view that lazily reloads from disk.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lectern-labs/lectern/internal/chunk"
	lerrors "github.com/lectern-labs/lectern/internal/errors"
	"github.com/lectern-labs/lectern/internal/store"
)

// Artifact file extensions, keyed by book ID under the index directory.
const (
	graphExt   = ".hnsw"
	mappingExt = ".mapping.json"
	chunksExt  = ".chunks.json"
)

// DefaultCacheSize is the default number of books kept hot in memory.
// Evicted books reload lazily from disk on next access.
const DefaultCacheSize = 8

// overfetchFactor widens chapter-filtered searches so enough candidates
// survive the filter to fill k results.
const overfetchFactor = 3

// Result is a single ranked search hit.
type Result struct {
	ChunkID string  `json:"chunkId"`
	Score   float32 `json:"score"`
}

// Config configures the index service.
type Config struct {
	// Dir is the directory holding all per-book artifacts.
	Dir string

	// Dimensions is the fixed embedding dimension for every index.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int

	// CacheSize is the number of books to keep cached (default: 8).
	CacheSize int
}

// bookState is the cached in-memory view of one book's artifacts.
// Fields load lazily and independently: a search needs the graph and
// mapping; GetChunk and chapter filtering need the chunk table.
type bookState struct {
	backend    store.VectorBackend
	keyToChunk []string
	chunkToKey map[string]uint64
	chunks     map[string]*chunk.Chunk // nil until the chunk table is loaded
}

// Service manages persistent per-book vector indexes. One mutex serializes
// all cache and file access; CPU-bound graph searches run on a snapshot of
// the book state outside the lock.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	books *lru.Cache[string, *bookState]
}

// NewService creates an index service rooted at cfg.Dir.
func NewService(cfg Config) (*Service, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("index directory is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, lerrors.StorageError("failed to create index directory", err)
	}

	books, err := lru.New[string, *bookState](cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, books: books}, nil
}

// Build creates the index for a book from chunks and their embeddings,
// persists all three artifacts, and replaces any prior state for the book.
// Nothing is persisted when a precondition fails.
func (s *Service) Build(ctx context.Context, bookID string, chunks []*chunk.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return lerrors.CountMismatch(len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	if len(embeddings[0]) != s.cfg.Dimensions {
		return lerrors.DimensionMismatch(s.cfg.Dimensions, len(embeddings[0]))
	}

	backend, err := store.NewHNSWBackend(store.Config{
		Dimensions: s.cfg.Dimensions,
		M:          s.cfg.M,
		EfSearch:   s.cfg.EfSearch,
	})
	if err != nil {
		return err
	}

	// Contiguous keys 0..N-1 in input order; insertion validates every
	// vector's dimension, so an inconsistent corpus fails here rather than
	// being accepted.
	state := &bookState{
		backend:    backend,
		keyToChunk: make([]string, len(chunks)),
		chunkToKey: make(map[string]uint64, len(chunks)),
		chunks:     make(map[string]*chunk.Chunk, len(chunks)),
	}
	for i, c := range chunks {
		key := uint64(i)
		if err := backend.Add(key, embeddings[i]); err != nil {
			return err
		}
		state.keyToChunk[key] = c.ID
		state.chunkToKey[c.ID] = key
		state.chunks[c.ID] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Persist: graph, mapping, chunk table. Each artifact is written whole
	// via temp+rename; concurrent builds for the same book race
	// last-writer-wins per artifact.
	if err := backend.Save(s.artifactPath(bookID, graphExt)); err != nil {
		return lerrors.StorageError("failed to save index graph", err)
	}
	if err := writeJSONAtomic(s.artifactPath(bookID, mappingExt), state.chunkToKey); err != nil {
		return lerrors.StorageError("failed to save id mapping", err)
	}
	if err := writeJSONAtomic(s.artifactPath(bookID, chunksExt), chunks); err != nil {
		return lerrors.StorageError("failed to save chunk table", err)
	}

	s.books.Add(bookID, state)

	slog.Debug("built vector index",
		slog.String("book_id", bookID),
		slog.Int("chunks", len(chunks)),
		slog.Int("dimensions", s.cfg.Dimensions))

	return nil
}

// Search returns up to k chunks ranked by similarity to the query embedding.
// With a chapter filter, candidates are over-fetched and joined against the
// chunk table's chapter IDs before truncating to k.
func (s *Service) Search(ctx context.Context, bookID string, query []float32, k int, chapterIDs []string) ([]Result, error) {
	if len(query) != s.cfg.Dimensions {
		return nil, lerrors.DimensionMismatch(s.cfg.Dimensions, len(query))
	}
	if k <= 0 {
		return []Result{}, nil
	}

	fetchK := k
	filtered := len(chapterIDs) > 0
	if filtered {
		fetchK = k * overfetchFactor
	}

	// Snapshot the book state under the lock, then run the ANN search
	// outside it. A concurrent rebuild publishes a fresh state rather than
	// mutating this one, and a loaded chunk table is never repopulated.
	s.mu.Lock()
	state, err := s.loadState(bookID)
	if err == nil && filtered {
		// The chapter join needs the chunk table.
		err = s.loadChunkTable(bookID, state)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	neighbors, err := state.backend.Search(query, fetchK)
	if err != nil {
		return nil, err
	}

	wantChapter := make(map[string]bool, len(chapterIDs))
	for _, id := range chapterIDs {
		wantChapter[id] = true
	}

	results := make([]Result, 0, k)
	for _, n := range neighbors {
		if int(n.Key) >= len(state.keyToChunk) {
			continue
		}
		chunkID := state.keyToChunk[n.Key]
		if filtered {
			c, ok := state.chunks[chunkID]
			if !ok || !wantChapter[c.ChapterID] {
				continue
			}
		}
		results = append(results, Result{ChunkID: chunkID, Score: n.Score})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// GetChunk returns the full chunk record, or (nil, nil) when the book or
// chunk is absent. Absence is an explicit result, not an error.
func (s *Service) GetChunk(ctx context.Context, bookID, chunkID string) (*chunk.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.books.Get(bookID)
	if ok && state.chunks != nil {
		return state.chunks[chunkID], nil
	}

	if !fileExists(s.artifactPath(bookID, chunksExt)) {
		return nil, nil
	}

	if !ok {
		state = &bookState{}
	}
	if err := s.loadChunkTable(bookID, state); err != nil {
		return nil, err
	}
	s.books.Add(bookID, state)

	return state.chunks[chunkID], nil
}

// DeleteBook removes all three artifacts and the cache entry. Missing files
// are not errors; the desired end state (absence) already holds.
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books.Remove(bookID)

	for _, ext := range []string{graphExt, mappingExt, chunksExt} {
		if err := os.Remove(s.artifactPath(bookID, ext)); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove index artifact",
				slog.String("book_id", bookID),
				slog.String("artifact", ext),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// ClearCache drops all books' in-memory state. Disk is untouched; the next
// access lazily reloads.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books.Purge()
}

// Exists reports whether a persisted index exists for the book.
func (s *Service) Exists(bookID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books.Get(bookID); ok {
		return true
	}
	return s.hasArtifacts(bookID)
}

// ListBookIDs enumerates books with a persisted index, in directory order.
func (s *Service) ListBookIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, lerrors.StorageError("failed to read index directory", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != graphExt {
			continue
		}
		ids = append(ids, name[:len(name)-len(graphExt)])
	}
	return ids, nil
}

// loadState returns the cached state for a book, loading the graph and
// mapping from disk on a cache miss. Callers must hold s.mu.
func (s *Service) loadState(bookID string) (*bookState, error) {
	if state, ok := s.books.Get(bookID); ok && state.backend != nil {
		return state, nil
	}

	graphPath := s.artifactPath(bookID, graphExt)
	if !fileExists(graphPath) {
		return nil, lerrors.IndexNotFound(bookID)
	}

	backend, err := store.NewHNSWBackend(store.Config{
		Dimensions: s.cfg.Dimensions,
		M:          s.cfg.M,
		EfSearch:   s.cfg.EfSearch,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.Load(graphPath); err != nil {
		return nil, lerrors.StorageError("failed to load index graph", err)
	}

	var chunkToKey map[string]uint64
	if err := readJSON(s.artifactPath(bookID, mappingExt), &chunkToKey); err != nil {
		return nil, lerrors.StorageError("failed to load id mapping", err)
	}

	keyToChunk := make([]string, len(chunkToKey))
	for id, key := range chunkToKey {
		if int(key) >= len(keyToChunk) {
			return nil, lerrors.New(lerrors.ErrCodeCorruptIndex,
				fmt.Sprintf("mapping key %d out of range for book %q", key, bookID), nil)
		}
		keyToChunk[key] = id
	}

	state := &bookState{
		backend:    backend,
		keyToChunk: keyToChunk,
		chunkToKey: chunkToKey,
	}
	s.books.Add(bookID, state)

	slog.Debug("loaded vector index from disk", slog.String("book_id", bookID))
	return state, nil
}

// loadChunkTable populates state.chunks from disk if not already loaded.
// Callers must hold s.mu.
func (s *Service) loadChunkTable(bookID string, state *bookState) error {
	if state.chunks != nil {
		return nil
	}

	var records []*chunk.Chunk
	if err := readJSON(s.artifactPath(bookID, chunksExt), &records); err != nil {
		return lerrors.StorageError("failed to load chunk table", err)
	}

	state.chunks = make(map[string]*chunk.Chunk, len(records))
	for _, c := range records {
		state.chunks[c.ID] = c
	}
	return nil
}

// hasArtifacts reports whether the book's graph artifact exists on disk.
func (s *Service) hasArtifacts(bookID string) bool {
	return fileExists(s.artifactPath(bookID, graphExt))
}

func (s *Service) artifactPath(bookID, ext string) string {
	return filepath.Join(s.cfg.Dir, bookID+ext)
}

// writeJSONAtomic writes v as JSON via a temp file + rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// readJSON reads a whole JSON file into v.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
