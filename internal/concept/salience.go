package concept

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/lectern-labs/lectern/internal/book"
)

const (
	// chapterTermLimit caps the per-chapter salient-term list.
	chapterTermLimit = 20

	// minTermLength filters out fragments too short to carry meaning.
	minTermLength = 3
)

// TFIDFSalience scores terms with smoothed TF-IDF, treating each chapter as
// one document. It is deterministic and needs no model.
type TFIDFSalience struct{}

// NewTFIDFSalience creates the reference salience analyzer.
func NewTFIDFSalience() *TFIDFSalience {
	return &TFIDFSalience{}
}

var _ SalienceAnalyzer = (*TFIDFSalience)(nil)

// Analyze computes corpus-level and per-chapter term salience.
func (a *TFIDFSalience) Analyze(ctx context.Context, chapters []book.Chapter) (*Salience, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Per-chapter term frequencies and document frequencies.
	chapterFreqs := make([]map[string]int, len(chapters))
	docFreq := make(map[string]int)
	for i, ch := range chapters {
		freq := make(map[string]int)
		for _, blk := range ch.Blocks() {
			for _, term := range tokenizeProse(blk.Text) {
				freq[term]++
			}
		}
		chapterFreqs[i] = freq
		for term := range freq {
			docFreq[term]++
		}
	}

	n := len(chapters)
	idf := func(term string) float64 {
		// Smoothed IDF keeps terms present in every chapter above zero.
		return math.Log(float64(1+n)/float64(1+docFreq[term])) + 1
	}

	out := &Salience{
		Terms:        make(map[string]float64, len(docFreq)),
		ChapterTerms: make(map[string][]string, n),
	}

	// Corpus-level score: total frequency weighted by IDF.
	totalFreq := make(map[string]int, len(docFreq))
	for _, freq := range chapterFreqs {
		for term, c := range freq {
			totalFreq[term] += c
		}
	}
	for term, c := range totalFreq {
		out.Terms[term] = float64(c) * idf(term)
	}

	for i, ch := range chapters {
		freq := chapterFreqs[i]
		terms := make([]string, 0, len(freq))
		for term := range freq {
			terms = append(terms, term)
		}
		sort.Slice(terms, func(x, y int) bool {
			sx := float64(freq[terms[x]]) * idf(terms[x])
			sy := float64(freq[terms[y]]) * idf(terms[y])
			if sx != sy {
				return sx > sy
			}
			return terms[x] < terms[y]
		})
		if len(terms) > chapterTermLimit {
			terms = terms[:chapterTermLimit]
		}
		out.ChapterTerms[ch.ID] = terms
	}

	return out, nil
}

// tokenizeProse lowercases and splits text on non-letter runes, dropping
// stopwords and short fragments.
func tokenizeProse(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len(f) < minTermLength || proseStopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

var proseStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"had": true, "her": true, "was": true, "one": true, "our": true,
	"out": true, "get": true, "has": true, "him": true, "his": true,
	"how": true, "man": true, "new": true, "now": true, "old": true,
	"see": true, "two": true, "way": true, "who": true, "did": true,
	"its": true, "let": true, "say": true, "she": true, "too": true,
	"use": true, "that": true, "with": true, "have": true, "this": true,
	"will": true, "your": true, "from": true, "they": true, "know": true,
	"want": true, "been": true, "good": true, "much": true, "some": true,
	"time": true, "very": true, "when": true, "come": true, "here": true,
	"just": true, "like": true, "long": true, "make": true, "many": true,
	"more": true, "only": true, "over": true, "such": true, "them": true,
	"well": true, "were": true, "what": true, "which": true, "their": true,
	"would": true, "there": true, "could": true, "other": true, "about": true,
	"these": true, "after": true, "first": true, "never": true, "where": true,
	"those": true, "shall": true, "being": true, "while": true, "before": true,
	"should": true, "himself": true, "herself": true, "between": true,
	"because": true, "through": true, "without": true, "nothing": true,
	"another": true, "against": true, "said": true, "upon": true, "into": true,
	"than": true, "then": true, "once": true, "every": true, "under": true,
	"again": true, "might": true, "still": true, "even": true, "must": true,
	"down": true, "back": true, "went": true, "came": true, "though": true,
}
