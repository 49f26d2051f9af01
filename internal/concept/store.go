package concept

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lecterr "github.com/lectern-labs/lectern/internal/errors"
)

const mapExt = ".json"

// Store persists concept maps as one pretty-printed JSON document per book
// and caches loaded maps in memory. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	dir   string
	cache map[string]*ConceptMap
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, lecterr.StorageError("create concept map directory", err)
	}
	return &Store{
		dir:   dir,
		cache: make(map[string]*ConceptMap),
	}, nil
}

// Save writes the map to disk and caches it. The write is atomic: a temp
// file in the same directory is renamed into place.
func (s *Store) Save(m *ConceptMap) error {
	if m == nil || m.BookID == "" {
		return lecterr.Newf(lecterr.ErrCodeInvalidInput, "concept map must have a book ID")
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return lecterr.StorageError("encode concept map", err)
	}

	path := s.path(m.BookID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return lecterr.StorageError("create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return lecterr.StorageError("write concept map", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return lecterr.StorageError("close concept map file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return lecterr.StorageError("rename concept map into place", err)
	}

	s.mu.Lock()
	s.cache[m.BookID] = m
	s.mu.Unlock()
	return nil
}

// Load returns the concept map for bookID, from cache when available.
// A book with no stored map yields (nil, nil).
func (s *Store) Load(bookID string) (*ConceptMap, error) {
	s.mu.Lock()
	if m, ok := s.cache[bookID]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path(bookID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, lecterr.StorageError("read concept map", err)
	}

	var m ConceptMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, lecterr.New(lecterr.ErrCodeCorruptIndex,
			fmt.Sprintf("concept map for %q is not valid JSON", bookID), err)
	}

	s.mu.Lock()
	s.cache[bookID] = &m
	s.mu.Unlock()
	return &m, nil
}

// Delete removes the stored map and evicts it from the cache. Deleting a
// book with no map is not an error.
func (s *Store) Delete(bookID string) error {
	s.mu.Lock()
	delete(s.cache, bookID)
	s.mu.Unlock()

	if err := os.Remove(s.path(bookID)); err != nil && !os.IsNotExist(err) {
		return lecterr.StorageError("delete concept map", err)
	}
	return nil
}

// Exists reports whether a map is stored for bookID, consulting the cache
// before the disk.
func (s *Store) Exists(bookID string) bool {
	s.mu.Lock()
	_, cached := s.cache[bookID]
	s.mu.Unlock()
	if cached {
		return true
	}

	_, err := os.Stat(s.path(bookID))
	return err == nil
}

// ListBookIDs returns the IDs of all books with stored maps, sorted.
func (s *Store) ListBookIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, lecterr.StorageError("list concept maps", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, mapExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, mapExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// ClearCache drops all cached maps; stored files are untouched.
func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]*ConceptMap)
	s.mu.Unlock()
}

func (s *Store) path(bookID string) string {
	return filepath.Join(s.dir, bookID+mapExt)
}
