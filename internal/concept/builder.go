package concept

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/lectern-labs/lectern/internal/book"
)

// Event detection thresholds.
const (
	// maxPartnersPerEntity bounds how many co-occurrence partners each
	// entity contributes events for.
	maxPartnersPerEntity = 3

	// minCooccurrence is the joint count below which a pair is noise.
	minCooccurrence = 3
)

// Builder orchestrates the multi-stage concept-map pipeline. The analyzers
// are injected; only event detection and centroid computation are in-core.
type Builder struct {
	salience SalienceAnalyzer
	entities EntityExtractor
	themes   ThemeClusterer
}

// NewBuilder creates a builder with the given analyzers.
func NewBuilder(salience SalienceAnalyzer, entities EntityExtractor, themes ThemeClusterer) *Builder {
	return &Builder{
		salience: salience,
		entities: entities,
		themes:   themes,
	}
}

// Build derives the concept map for a book. chunkEmbeddings (keyed by chunk
// ID) is optional; without it chapters get no centroids and themes carry no
// cohesion, which is not an error.
func (b *Builder) Build(ctx context.Context, bookID string, chapters []book.Chapter, chunkEmbeddings map[string][]float32) (*ConceptMap, error) {
	start := time.Now()

	salience, err := b.salience.Analyze(ctx, chapters)
	if err != nil {
		return nil, fmt.Errorf("salience analysis failed: %w", err)
	}

	candidates, err := b.entities.Extract(ctx, chapters, salience)
	if err != nil {
		return nil, fmt.Errorf("entity extraction failed: %w", err)
	}

	var centroids map[string][]float32
	if len(chunkEmbeddings) > 0 {
		centroids = computeCentroids(chapters, chunkEmbeddings)
	}

	themes, err := b.themes.Cluster(ctx, salience, centroids)
	if err != nil {
		return nil, fmt.Errorf("theme clustering failed: %w", err)
	}

	events := detectEvents(candidates)

	m := &ConceptMap{
		BookID:      bookID,
		GeneratedAt: time.Now().UTC(),
		Entities:    finalizeEntities(candidates),
		Themes:      themes,
		Events:      events,
		Stats: BuildStats{
			ChapterCount:     len(chapters),
			TotalBlocks:      book.TotalBlocks(chapters),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			EmbeddingsUsed:   len(chunkEmbeddings) > 0,
		},
	}

	slog.Debug("built concept map",
		slog.String("book_id", bookID),
		slog.Int("entities", len(m.Entities)),
		slog.Int("themes", len(m.Themes)),
		slog.Int("events", len(m.Events)),
		slog.Bool("embeddings_used", m.Stats.EmbeddingsUsed))

	return m, nil
}

// computeCentroids averages the embeddings of each chapter's chunks and
// L2-normalizes the result. Membership is decided by the chunk ID containing
// the chapter ID as a substring; chunk IDs embed the chapter ID, so this
// holds as long as chapter IDs are prefix-disjoint. Chapters with no
// matching chunks get no centroid.
func computeCentroids(chapters []book.Chapter, chunkEmbeddings map[string][]float32) map[string][]float32 {
	// Sorted chunk IDs keep float accumulation order deterministic.
	chunkIDs := make([]string, 0, len(chunkEmbeddings))
	for id := range chunkEmbeddings {
		chunkIDs = append(chunkIDs, id)
	}
	sort.Strings(chunkIDs)

	centroids := make(map[string][]float32, len(chapters))
	for _, ch := range chapters {
		var sum []float64
		count := 0
		for _, chunkID := range chunkIDs {
			if !strings.Contains(chunkID, ch.ID) {
				continue
			}
			vec := chunkEmbeddings[chunkID]
			if sum == nil {
				sum = make([]float64, len(vec))
			}
			if len(vec) != len(sum) {
				continue
			}
			for i, v := range vec {
				sum[i] += float64(v)
			}
			count++
		}
		if count == 0 {
			continue
		}

		var norm float64
		for i := range sum {
			sum[i] /= float64(count)
			norm += sum[i] * sum[i]
		}
		norm = math.Sqrt(norm)

		centroid := make([]float32, len(sum))
		for i, v := range sum {
			if norm > 0 {
				centroid[i] = float32(v / norm)
			}
		}
		centroids[ch.ID] = centroid
	}

	return centroids
}

// detectEvents derives at most one event per unordered entity pair from
// co-occurrence counts. Candidates are processed in ascending ID order so
// the first-write-wins dedup is deterministic.
func detectEvents(candidates []*EntityCandidate) []*BookEvent {
	byID := make(map[string]*EntityCandidate, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)

	seen := make(map[string]bool)
	var events []*BookEvent

	for _, id := range ids {
		cand := byID[id]

		// Top partners by count, ID ascending on ties.
		type partner struct {
			id    string
			count int
		}
		partners := make([]partner, 0, len(cand.Cooccurrence))
		for pid, count := range cand.Cooccurrence {
			partners = append(partners, partner{pid, count})
		}
		sort.Slice(partners, func(i, j int) bool {
			if partners[i].count != partners[j].count {
				return partners[i].count > partners[j].count
			}
			return partners[i].id < partners[j].id
		})
		if len(partners) > maxPartnersPerEntity {
			partners = partners[:maxPartnersPerEntity]
		}

		for _, p := range partners {
			if p.count < minCooccurrence {
				continue
			}
			other, ok := byID[p.id]
			if !ok {
				continue
			}

			eventID := EventID(cand.ID, other.ID)
			if seen[eventID] {
				continue
			}

			shared := sharedChapters(cand.Chapters, other.Chapters)
			if len(shared) == 0 {
				// Co-occurrence alone does not imply shared-chapter evidence.
				continue
			}

			seen[eventID] = true
			first, second := cand, other
			if other.ID < cand.ID {
				first, second = other, cand
			}
			events = append(events, &BookEvent{
				ID:           eventID,
				Participants: []string{first.Text, second.Text},
				ChapterIDs:   shared,
				Evidence:     []string{},
			})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if len(events[i].ChapterIDs) != len(events[j].ChapterIDs) {
			return len(events[i].ChapterIDs) > len(events[j].ChapterIDs)
		}
		return events[i].ID < events[j].ID
	})

	return events
}

// EventID forms the canonical event identifier for an unordered entity
// pair: the two IDs sorted lexicographically and joined with an underscore.
func EventID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// sharedChapters returns the sorted intersection of two chapter-ID sets.
func sharedChapters(a, b map[string]struct{}) []string {
	var shared []string
	for id := range a {
		if _, ok := b[id]; ok {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)
	return shared
}

// finalizeEntities converts candidates into the persisted entity records,
// ordered by descending mentions then ID for stable output.
func finalizeEntities(candidates []*EntityCandidate) []*Entity {
	entities := make([]*Entity, 0, len(candidates))
	for _, c := range candidates {
		chapterIDs := make([]string, 0, len(c.Chapters))
		for id := range c.Chapters {
			chapterIDs = append(chapterIDs, id)
		}
		sort.Strings(chapterIDs)

		entities = append(entities, &Entity{
			ID:           c.ID,
			Text:         c.Text,
			ChapterIDs:   chapterIDs,
			Mentions:     c.Mentions,
			Cooccurrence: c.Cooccurrence,
		})
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Mentions != entities[j].Mentions {
			return entities[i].Mentions > entities[j].Mentions
		}
		return entities[i].ID < entities[j].ID
	})

	return entities
}
