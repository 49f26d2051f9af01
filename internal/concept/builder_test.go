package concept

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-labs/lectern/internal/book"
)

func chapterWithBlocks(id string, texts ...string) book.Chapter {
	blocks := make([]book.Block, len(texts))
	for i, t := range texts {
		blocks[i] = book.Block{ID: id + "-b" + string(rune('a'+i)), Text: t}
	}
	return book.Chapter{
		ID:       id,
		Title:    "Chapter " + id,
		Sections: []book.Section{{ID: id + "-s1", Blocks: blocks}},
	}
}

func chapterSet(set map[string]struct{}, ids ...string) map[string]struct{} {
	if set == nil {
		set = make(map[string]struct{})
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func TestEventIDCanonical(t *testing.T) {
	assert.Equal(t, "anna_pierre", EventID("pierre", "anna"))
	assert.Equal(t, "anna_pierre", EventID("anna", "pierre"))
}

func TestDetectEventsThreshold(t *testing.T) {
	candidates := []*EntityCandidate{
		{
			ID: "a", Text: "A",
			Chapters:     chapterSet(nil, "ch1"),
			Cooccurrence: map[string]int{"b": 2},
		},
		{
			ID: "b", Text: "B",
			Chapters:     chapterSet(nil, "ch1"),
			Cooccurrence: map[string]int{"a": 2},
		},
	}

	// Two joint mentions are below the noise floor.
	assert.Empty(t, detectEvents(candidates))
}

func TestDetectEventsMutualPartnersSingleEvent(t *testing.T) {
	candidates := []*EntityCandidate{
		{
			ID: "natasha", Text: "Natasha",
			Chapters:     chapterSet(nil, "ch1", "ch2"),
			Cooccurrence: map[string]int{"pierre": 5},
		},
		{
			ID: "pierre", Text: "Pierre",
			Chapters:     chapterSet(nil, "ch2", "ch3"),
			Cooccurrence: map[string]int{"natasha": 5},
		},
	}

	events := detectEvents(candidates)

	// Mutual top partners produce exactly one event for the pair.
	require.Len(t, events, 1)
	assert.Equal(t, "natasha_pierre", events[0].ID)
	assert.Equal(t, []string{"Natasha", "Pierre"}, events[0].Participants)
	assert.Equal(t, []string{"ch2"}, events[0].ChapterIDs)
}

func TestDetectEventsSkipsEmptyChapterIntersection(t *testing.T) {
	candidates := []*EntityCandidate{
		{
			ID: "a", Text: "A",
			Chapters:     chapterSet(nil, "ch1"),
			Cooccurrence: map[string]int{"b": 10},
		},
		{
			ID: "b", Text: "B",
			Chapters:     chapterSet(nil, "ch2"),
			Cooccurrence: map[string]int{"a": 10},
		},
	}

	assert.Empty(t, detectEvents(candidates))
}

func TestDetectEventsTopPartnersBound(t *testing.T) {
	shared := chapterSet(nil, "ch1")
	hub := &EntityCandidate{
		ID: "hub", Text: "Hub",
		Chapters: shared,
		Cooccurrence: map[string]int{
			"p1": 10, "p2": 9, "p3": 8, "p4": 7, "p5": 6,
		},
	}
	candidates := []*EntityCandidate{hub}
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		candidates = append(candidates, &EntityCandidate{
			ID: id, Text: strings.ToUpper(id),
			Chapters:     shared,
			Cooccurrence: map[string]int{"hub": 5},
		})
	}

	events := detectEvents(candidates)

	// hub contributes only its top 3 partners; the low-count partners still
	// reach hub from their own side, so hub appears in at most 3+2 pairs.
	ids := make(map[string]bool)
	for _, e := range events {
		ids[e.ID] = true
	}
	assert.True(t, ids["hub_p1"])
	assert.True(t, ids["hub_p2"])
	assert.True(t, ids["hub_p3"])
}

func TestDetectEventsDeterministicOrder(t *testing.T) {
	build := func() []*BookEvent {
		shared12 := chapterSet(nil, "ch1", "ch2")
		shared1 := chapterSet(nil, "ch1")
		return detectEvents([]*EntityCandidate{
			{ID: "a", Text: "A", Chapters: shared12, Cooccurrence: map[string]int{"b": 4, "c": 3}},
			{ID: "b", Text: "B", Chapters: shared12, Cooccurrence: map[string]int{"a": 4}},
			{ID: "c", Text: "C", Chapters: shared1, Cooccurrence: map[string]int{"a": 3}},
		})
	}

	first := build()
	second := build()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	// More shared chapters rank first.
	require.Len(t, first, 2)
	assert.Equal(t, "a_b", first[0].ID)
	assert.Equal(t, "a_c", first[1].ID)
}

func TestComputeCentroids(t *testing.T) {
	chapters := []book.Chapter{
		chapterWithBlocks("ch1", "text"),
		chapterWithBlocks("ch2", "text"),
	}
	embeddings := map[string][]float32{
		"bk:ch1:0000": {1, 0, 0},
		"bk:ch1:0001": {0, 1, 0},
		"bk:ch2:0000": {0, 0, 2},
	}

	centroids := computeCentroids(chapters, embeddings)

	require.Contains(t, centroids, "ch1")
	require.Contains(t, centroids, "ch2")

	// ch1 averages (1,0,0) and (0,1,0) then normalizes.
	want := float32(1 / math.Sqrt2)
	assert.InDelta(t, want, centroids["ch1"][0], 0.0001)
	assert.InDelta(t, want, centroids["ch1"][1], 0.0001)
	assert.InDelta(t, 0, centroids["ch1"][2], 0.0001)

	// ch2 has one chunk; its centroid is that vector normalized.
	assert.InDelta(t, 1.0, centroids["ch2"][2], 0.0001)
}

func TestComputeCentroidsUnitNorm(t *testing.T) {
	chapters := []book.Chapter{chapterWithBlocks("ch1", "text")}
	embeddings := map[string][]float32{
		"bk:ch1:0000": {3, 4, 0},
		"bk:ch1:0001": {5, 12, 0},
	}

	centroids := computeCentroids(chapters, embeddings)

	var norm float64
	for _, v := range centroids["ch1"] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 0.0001)
}

func TestComputeCentroidsSkipsEmptyChapters(t *testing.T) {
	chapters := []book.Chapter{
		chapterWithBlocks("ch1", "text"),
		chapterWithBlocks("ch2", "text"),
	}
	embeddings := map[string][]float32{
		"bk:ch1:0000": {1, 0},
	}

	centroids := computeCentroids(chapters, embeddings)

	assert.Contains(t, centroids, "ch1")
	assert.NotContains(t, centroids, "ch2")
}

func TestBuilderEndToEnd(t *testing.T) {
	// Repeated capitalized names co-occurring in blocks across chapters.
	para := "That evening Pierre spoke with Natasha about the war. " +
		"Later Pierre and Natasha walked through the garden together."
	chapters := []book.Chapter{
		chapterWithBlocks("ch1", para, para, para),
		chapterWithBlocks("ch2", para, para),
	}

	builder := NewBuilder(
		NewTFIDFSalience(),
		NewCapitalizedEntityExtractor(),
		NewTermThemeClusterer(),
	)

	m, err := builder.Build(context.Background(), "war-and-peace", chapters, nil)

	require.NoError(t, err)
	assert.Equal(t, "war-and-peace", m.BookID)
	assert.False(t, m.GeneratedAt.IsZero())
	assert.Equal(t, 2, m.Stats.ChapterCount)
	assert.Equal(t, 5, m.Stats.TotalBlocks)
	assert.False(t, m.Stats.EmbeddingsUsed)

	names := make(map[string]bool)
	for _, e := range m.Entities {
		names[e.Text] = true
	}
	assert.True(t, names["Pierre"], "entities: %v", m.Entities)
	assert.True(t, names["Natasha"], "entities: %v", m.Entities)

	// Pierre and Natasha share blocks in both chapters.
	require.NotEmpty(t, m.Events)
	assert.Equal(t, "natasha_pierre", m.Events[0].ID)
	assert.ElementsMatch(t, []string{"ch1", "ch2"}, m.Events[0].ChapterIDs)
}

func TestBuilderWithEmbeddings(t *testing.T) {
	para := "Meanwhile Ahab watched the sea. The crew feared Ahab and Starbuck argued with Ahab daily."
	chapters := []book.Chapter{
		chapterWithBlocks("ch1", para, para),
	}
	embeddings := map[string][]float32{
		"moby:ch1:0000": {1, 0},
		"moby:ch1:0001": {0, 1},
	}

	builder := NewBuilder(
		NewTFIDFSalience(),
		NewCapitalizedEntityExtractor(),
		NewTermThemeClusterer(),
	)

	m, err := builder.Build(context.Background(), "moby", chapters, embeddings)

	require.NoError(t, err)
	assert.True(t, m.Stats.EmbeddingsUsed)
}
