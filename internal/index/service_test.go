package index

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-labs/lectern/internal/chunk"
	lerrors "github.com/lectern-labs/lectern/internal/errors"
)

const testDims = 8

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Dir:        t.TempDir(),
		Dimensions: testDims,
	})
	require.NoError(t, err)
	return svc
}

// testVector produces a distinct unit vector per seed.
func testVector(seed int) []float32 {
	v := make([]float32, testDims)
	var norm float64
	for i := range v {
		v[i] = float32(math.Sin(float64(seed*testDims + i + 1)))
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func testChunks(bookID string, perChapter map[string]int) ([]*chunk.Chunk, [][]float32) {
	var chunks []*chunk.Chunk
	var vectors [][]float32
	seed := 0
	for _, chapterID := range sortedKeys(perChapter) {
		for i := 0; i < perChapter[chapterID]; i++ {
			chunks = append(chunks, &chunk.Chunk{
				ID:        chunk.ChunkID(bookID, chapterID, i),
				BookID:    bookID,
				ChapterID: chapterID,
				Text:      fmt.Sprintf("passage %s %d", chapterID, i),
				Ordinal:   i,
			})
			vectors = append(vectors, testVector(seed))
			seed++
		}
	}
	return chunks, vectors
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(Config{Dimensions: 8})
	assert.Error(t, err)

	_, err = NewService(Config{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestBuildCountMismatch(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 3})

	err := svc.Build(context.Background(), "bk", chunks, vectors[:2])

	require.Error(t, err)
	assert.True(t, lerrors.IsCode(err, lerrors.ErrCodeCountMismatch))
	// Nothing may be persisted after a precondition failure.
	assert.False(t, svc.Exists("bk"))
}

func TestBuildDimensionMismatch(t *testing.T) {
	svc := newTestService(t)
	chunks, _ := testChunks("bk", map[string]int{"ch1": 2})
	bad := [][]float32{make([]float32, 3), make([]float32, 3)}

	err := svc.Build(context.Background(), "bk", chunks, bad)

	require.Error(t, err)
	assert.True(t, lerrors.IsCode(err, lerrors.ErrCodeDimensionMismatch))
	assert.False(t, svc.Exists("bk"))
}

func TestBuildEmptyIsNoOp(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.Build(context.Background(), "bk", nil, nil))
	assert.False(t, svc.Exists("bk"))
}

func TestBuildPersistsArtifacts(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 4})

	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	for _, ext := range []string{".hnsw", ".mapping.json", ".chunks.json"} {
		path := filepath.Join(svc.cfg.Dir, "bk"+ext)
		_, err := os.Stat(path)
		assert.NoError(t, err, "artifact %s missing", ext)
	}
	assert.True(t, svc.Exists("bk"))
}

func TestSearchRoundTrip(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 5, "ch2": 5})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	// Querying with an indexed vector must return its own chunk first
	// with a near-perfect score.
	results, err := svc.Search(context.Background(), "bk", vectors[3], 3, nil)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, chunks[3].ID, results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
	assert.LessOrEqual(t, len(results), 3)
}

func TestSearchScoresDescending(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 10})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	results, err := svc.Search(context.Background(), "bk", vectors[0], 5, nil)

	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchUnknownBook(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Search(context.Background(), "ghost", testVector(0), 5, nil)

	require.Error(t, err)
	assert.True(t, lerrors.IsCode(err, lerrors.ErrCodeIndexNotFound))
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Search(context.Background(), "bk", make([]float32, 3), 5, nil)

	require.Error(t, err)
	assert.True(t, lerrors.IsCode(err, lerrors.ErrCodeDimensionMismatch))
}

func TestSearchZeroK(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 3})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	results, err := svc.Search(context.Background(), "bk", vectors[0], 0, nil)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchChapterFilter(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 6, "ch2": 6})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	results, err := svc.Search(context.Background(), "bk", vectors[0], 4, []string{"ch2"})

	require.NoError(t, err)
	for _, r := range results {
		c, err := svc.GetChunk(context.Background(), "bk", r.ChunkID)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, "ch2", c.ChapterID)
	}
	assert.LessOrEqual(t, len(results), 4)
}

func TestSearchChapterFilterKeepsBestMatch(t *testing.T) {
	svc := newTestService(t)

	// ch2 holds both the exact match and a near-orthogonal vector; ch1
	// holds close-but-not-exact vectors. A filtered k=1 search must return
	// the exact match, not whichever survivor appears first.
	axis := func(hot int, lead float32) []float32 {
		v := make([]float32, testDims)
		v[0] = lead
		v[hot] = 1
		return v
	}
	chunks := []*chunk.Chunk{
		{ID: chunk.ChunkID("bk", "ch1", 0), BookID: "bk", ChapterID: "ch1", Text: "a"},
		{ID: chunk.ChunkID("bk", "ch1", 1), BookID: "bk", ChapterID: "ch1", Text: "b"},
		{ID: chunk.ChunkID("bk", "ch2", 0), BookID: "bk", ChapterID: "ch2", Text: "c", Ordinal: 0},
		{ID: chunk.ChunkID("bk", "ch2", 1), BookID: "bk", ChapterID: "ch2", Text: "d", Ordinal: 1},
	}
	vectors := [][]float32{
		axis(1, 0.9),
		axis(2, 0.9),
		axis(0, 0), // exact match for the query below
		axis(3, 0.1),
	}
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	query := axis(0, 0)
	results, err := svc.Search(context.Background(), "bk", query, 1, []string{"ch2"})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ChunkID("bk", "ch2", 0), results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestSearchChapterFilterNoMatches(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 4})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	results, err := svc.Search(context.Background(), "bk", vectors[0], 4, []string{"ch9"})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchConcurrentWithLookups(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 8, "ch2": 8})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Search(context.Background(), "bk", vectors[i], 3, []string{"ch2"})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.GetChunk(context.Background(), "bk", chunks[i].ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestGetChunk(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 3})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	got, err := svc.GetChunk(context.Background(), "bk", chunks[1].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chunks[1].Text, got.Text)

	// Unknown chunk in a known book is an explicit nil, not an error.
	got, err = svc.GetChunk(context.Background(), "bk", "bk:ch1:9999")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Unknown book likewise.
	got, err = svc.GetChunk(context.Background(), "ghost", "x")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteBook(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 3})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	require.NoError(t, svc.DeleteBook(context.Background(), "bk"))

	assert.False(t, svc.Exists("bk"))
	_, err := svc.Search(context.Background(), "bk", vectors[0], 3, nil)
	assert.True(t, lerrors.IsCode(err, lerrors.ErrCodeIndexNotFound))
}

func TestDeleteNeverBuilt(t *testing.T) {
	svc := newTestService(t)

	assert.NoError(t, svc.DeleteBook(context.Background(), "never-built"))
}

func TestClearCacheReloadsFromDisk(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 5})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	svc.ClearCache()

	results, err := svc.Search(context.Background(), "bk", vectors[2], 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[2].ID, results[0].ChunkID)
}

func TestCacheEviction(t *testing.T) {
	svc, err := NewService(Config{
		Dir:        t.TempDir(),
		Dimensions: testDims,
		CacheSize:  2,
	})
	require.NoError(t, err)

	// Indexing three books through a two-slot cache evicts the oldest;
	// it must still be searchable via lazy reload.
	for _, id := range []string{"b1", "b2", "b3"} {
		chunks, vectors := testChunks(id, map[string]int{"ch1": 3})
		require.NoError(t, svc.Build(context.Background(), id, chunks, vectors))
	}

	chunks, vectors := testChunks("b1", map[string]int{"ch1": 3})
	results, err := svc.Search(context.Background(), "b1", vectors[0], 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[0].ID, results[0].ChunkID)
}

func TestListBookIDs(t *testing.T) {
	svc := newTestService(t)

	ids, err := svc.ListBookIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"alpha", "beta"} {
		chunks, vectors := testChunks(id, map[string]int{"ch1": 2})
		require.NoError(t, svc.Build(context.Background(), id, chunks, vectors))
	}

	ids, err = svc.ListBookIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, ids)
}

func TestRebuildReplacesIndex(t *testing.T) {
	svc := newTestService(t)
	chunks, vectors := testChunks("bk", map[string]int{"ch1": 4})
	require.NoError(t, svc.Build(context.Background(), "bk", chunks, vectors))

	smaller, smallVecs := testChunks("bk", map[string]int{"ch2": 2})
	require.NoError(t, svc.Build(context.Background(), "bk", smaller, smallVecs))

	results, err := svc.Search(context.Background(), "bk", smallVecs[0], 10, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
	for _, r := range results {
		c, err := svc.GetChunk(context.Background(), "bk", r.ChunkID)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, "ch2", c.ChapterID)
	}
}
