package concept

import (
	"context"
	"fmt"
	"sort"
)

const (
	// maxThemes bounds the number of clusters in the map.
	maxThemes = 12

	// minThemeChapters is the chapter support a theme needs to exist.
	minThemeChapters = 2

	// themeTermLimit caps the terms carried per theme.
	themeTermLimit = 8
)

// TermThemeClusterer groups chapters by shared salient terms. Each theme is
// anchored on one high-salience term; chapters listing the term among their
// top terms are members. When chapter centroids are supplied, a theme's
// cohesion is the mean pairwise cosine similarity of its members' centroids.
type TermThemeClusterer struct{}

// NewTermThemeClusterer creates the reference clusterer.
func NewTermThemeClusterer() *TermThemeClusterer {
	return &TermThemeClusterer{}
}

var _ ThemeClusterer = (*TermThemeClusterer)(nil)

// Cluster builds themes from salience output. centroids may be nil.
func (c *TermThemeClusterer) Cluster(ctx context.Context, salience *Salience, centroids map[string][]float32) ([]*Theme, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Invert chapter -> terms into term -> chapters.
	termChapters := make(map[string][]string)
	for chapterID, terms := range salience.ChapterTerms {
		for _, term := range terms {
			termChapters[term] = append(termChapters[term], chapterID)
		}
	}

	anchors := make([]string, 0, len(termChapters))
	for term, chs := range termChapters {
		if len(chs) >= minThemeChapters {
			anchors = append(anchors, term)
		}
	}
	sort.Slice(anchors, func(i, j int) bool {
		si, sj := salience.Terms[anchors[i]], salience.Terms[anchors[j]]
		if si != sj {
			return si > sj
		}
		return anchors[i] < anchors[j]
	})
	if len(anchors) > maxThemes {
		anchors = anchors[:maxThemes]
	}

	themes := make([]*Theme, 0, len(anchors))
	for i, anchor := range anchors {
		chapterIDs := append([]string(nil), termChapters[anchor]...)
		sort.Strings(chapterIDs)

		theme := &Theme{
			ID:         fmt.Sprintf("theme-%02d", i+1),
			Label:      anchor,
			Terms:      relatedTerms(anchor, chapterIDs, salience),
			ChapterIDs: chapterIDs,
		}
		if centroids != nil {
			theme.Cohesion = meanPairwiseSimilarity(chapterIDs, centroids)
		}
		themes = append(themes, theme)
	}

	return themes, nil
}

// relatedTerms picks the terms most shared among the theme's chapters,
// excluding the anchor itself.
func relatedTerms(anchor string, chapterIDs []string, salience *Salience) []string {
	counts := make(map[string]int)
	for _, chapterID := range chapterIDs {
		for _, term := range salience.ChapterTerms[chapterID] {
			if term != anchor {
				counts[term]++
			}
		}
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > themeTermLimit {
		terms = terms[:themeTermLimit]
	}
	return append([]string{anchor}, terms...)
}

// meanPairwiseSimilarity averages the dot products of all member centroid
// pairs. Centroids are unit-length, so the dot product is cosine similarity.
// Returns 0 when fewer than two members have centroids.
func meanPairwiseSimilarity(chapterIDs []string, centroids map[string][]float32) float64 {
	vecs := make([][]float32, 0, len(chapterIDs))
	for _, id := range chapterIDs {
		if v, ok := centroids[id]; ok {
			vecs = append(vecs, v)
		}
	}
	if len(vecs) < 2 {
		return 0
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			if len(vecs[i]) != len(vecs[j]) {
				continue
			}
			var dot float64
			for k := range vecs[i] {
				dot += float64(vecs[i][k]) * float64(vecs[j][k])
			}
			sum += dot
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
