package concept

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMap(bookID string) *ConceptMap {
	return &ConceptMap{
		BookID:      bookID,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Entities: []*Entity{
			{ID: "ahab", Text: "Ahab", ChapterIDs: []string{"ch1"}, Mentions: 12},
		},
		Themes: []*Theme{
			{ID: "theme-01", Label: "whale", Terms: []string{"whale", "sea"}, ChapterIDs: []string{"ch1", "ch2"}},
		},
		Events: []*BookEvent{
			{ID: "ahab_starbuck", Participants: []string{"Ahab", "Starbuck"}, ChapterIDs: []string{"ch1"}, Evidence: []string{}},
		},
		Stats: BuildStats{ChapterCount: 2, TotalBlocks: 40},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(testMap("moby")))

	got, err := store.Load("moby")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "moby", got.BookID)
	require.Len(t, got.Entities, 1)
	assert.Equal(t, "Ahab", got.Entities[0].Text)
}

func TestStoreLoadAfterClearCache(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	m := testMap("moby")
	require.NoError(t, store.Save(m))

	store.ClearCache()

	got, err := store.Load("moby")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.BookID, got.BookID)
	assert.Equal(t, m.Events[0].ID, got.Events[0].ID)
	assert.True(t, m.GeneratedAt.Equal(got.GeneratedAt))
}

func TestStoreLoadAbsent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	got, err := store.Load("never-saved")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreSaveRequiresBookID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Save(nil))
	assert.Error(t, store.Save(&ConceptMap{}))
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(testMap("moby")))

	require.NoError(t, store.Delete("moby"))

	assert.False(t, store.Exists("moby"))
	got, err := store.Load("moby")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete("moby"))
}

func TestStoreExistsConsultsCacheFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(testMap("moby")))

	// Removing the file behind the store's back keeps the cached entry
	// visible until the cache is cleared.
	require.NoError(t, os.Remove(filepath.Join(dir, "moby.json")))
	assert.True(t, store.Exists("moby"))

	store.ClearCache()
	assert.False(t, store.Exists("moby"))
}

func TestStoreListBookIDs(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ids, err := store.ListBookIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save(testMap("beta")))
	require.NoError(t, store.Save(testMap("alpha")))

	ids, err = store.ListBookIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	_, err = store.Load("bad")

	assert.Error(t, err)
}
