// Package concept derives a per-book concept map (entities, themes, and
// co-occurrence events) from chapters and optional chunk embeddings. The
// map is used to ground assistant answers about the book.
package concept

import (
	"context"
	"time"

	"github.com/lectern-labs/lectern/internal/book"
)

// Entity is an extracted entity with its attestation stats.
type Entity struct {
	ID           string         `json:"id"`
	Text         string         `json:"text"`
	ChapterIDs   []string       `json:"chapterIds"`
	Mentions     int            `json:"mentions"`
	Cooccurrence map[string]int `json:"cooccurrence,omitempty"`
}

// Theme is one thematic cluster over the book's salient terms.
type Theme struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Terms      []string `json:"terms"`
	ChapterIDs []string `json:"chapterIds"`
	// Cohesion is the mean pairwise similarity of member chapters'
	// centroids. Zero when embeddings were not supplied.
	Cohesion float64 `json:"cohesion,omitempty"`
}

// BookEvent records a pair of entities sharing chapters, derived from
// co-occurrence. The ID is canonical for the unordered pair.
type BookEvent struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	ChapterIDs   []string `json:"chapterIds"`
	Evidence     []string `json:"evidence"`
	Label        string   `json:"label,omitempty"`
}

// BuildStats summarizes one concept-map build.
type BuildStats struct {
	ChapterCount     int   `json:"chapterCount"`
	TotalBlocks      int   `json:"totalBlocks"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	EmbeddingsUsed   bool  `json:"embeddingsUsed"`
}

// ConceptMap is the derived per-book artifact.
type ConceptMap struct {
	BookID      string      `json:"bookId"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Entities    []*Entity   `json:"entities"`
	Themes      []*Theme    `json:"themes"`
	Events      []*BookEvent `json:"events"`
	Stats       BuildStats  `json:"stats"`
}

// Salience is the corpus-level term-salience analysis output.
type Salience struct {
	// Terms maps each term to its corpus-level salience score.
	Terms map[string]float64

	// ChapterTerms maps each chapter ID to its top salient terms,
	// ordered by descending in-chapter score.
	ChapterTerms map[string][]string
}

// EntityCandidate is an extractor's raw candidate before event detection.
type EntityCandidate struct {
	ID           string
	Text         string
	Chapters     map[string]struct{}
	Mentions     int
	Cooccurrence map[string]int // other candidate ID -> joint count
}

// SalienceAnalyzer performs corpus-level term-salience analysis.
type SalienceAnalyzer interface {
	Analyze(ctx context.Context, chapters []book.Chapter) (*Salience, error)
}

// EntityExtractor extracts entity candidates using the salience output.
type EntityExtractor interface {
	Extract(ctx context.Context, chapters []book.Chapter, salience *Salience) ([]*EntityCandidate, error)
}

// ThemeClusterer clusters the book's themes from salience output and
// optional per-chapter centroids.
type ThemeClusterer interface {
	Cluster(ctx context.Context, salience *Salience, centroids map[string][]float32) ([]*Theme, error)
}
