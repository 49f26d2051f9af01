package concept

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/lectern-labs/lectern/internal/book"
)

const (
	// minEntityMentions drops phrases seen fewer times than this.
	minEntityMentions = 2

	// maxEntities caps the candidate set handed to event detection.
	maxEntities = 200
)

// CapitalizedEntityExtractor finds recurring capitalized phrases that appear
// mid-sentence, counts per-block co-occurrence, and records chapter
// attestation. Sentence-initial words are excluded since their case carries
// no signal.
type CapitalizedEntityExtractor struct{}

// NewCapitalizedEntityExtractor creates the reference extractor.
func NewCapitalizedEntityExtractor() *CapitalizedEntityExtractor {
	return &CapitalizedEntityExtractor{}
}

var _ EntityExtractor = (*CapitalizedEntityExtractor)(nil)

// Extract returns entity candidates with mentions, chapter attestation, and
// block-level co-occurrence counts.
func (e *CapitalizedEntityExtractor) Extract(ctx context.Context, chapters []book.Chapter, salience *Salience) ([]*EntityCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*EntityCandidate)

	for _, ch := range chapters {
		for _, blk := range ch.Blocks() {
			phrases := capitalizedPhrases(blk.Text)
			inBlock := make(map[string]string, len(phrases)) // id -> text
			for _, phrase := range phrases {
				id := entityID(phrase)
				if id == "" {
					continue
				}
				cand, ok := byID[id]
				if !ok {
					cand = &EntityCandidate{
						ID:           id,
						Text:         phrase,
						Chapters:     make(map[string]struct{}),
						Cooccurrence: make(map[string]int),
					}
					byID[id] = cand
				}
				cand.Mentions++
				cand.Chapters[ch.ID] = struct{}{}
				inBlock[id] = phrase
			}

			// Every distinct pair in the block co-occurs once.
			ids := make([]string, 0, len(inBlock))
			for id := range inBlock {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					byID[ids[i]].Cooccurrence[ids[j]]++
					byID[ids[j]].Cooccurrence[ids[i]]++
				}
			}
		}
	}

	candidates := make([]*EntityCandidate, 0, len(byID))
	for _, cand := range byID {
		if cand.Mentions < minEntityMentions {
			continue
		}
		candidates = append(candidates, cand)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Mentions != candidates[j].Mentions {
			return candidates[i].Mentions > candidates[j].Mentions
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > maxEntities {
		candidates = candidates[:maxEntities]
	}

	// Filtered candidates must not linger in co-occurrence maps.
	kept := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		kept[c.ID] = true
	}
	for _, c := range candidates {
		for id := range c.Cooccurrence {
			if !kept[id] {
				delete(c.Cooccurrence, id)
			}
		}
	}

	return candidates, nil
}

// capitalizedPhrases scans text for runs of capitalized words that do not
// start a sentence. "Prince Andrew went" yields nothing for "Prince" at
// sentence start but "Prince Andrew" mid-sentence.
func capitalizedPhrases(text string) []string {
	words := strings.Fields(text)
	var phrases []string
	var run []string
	sentenceStart := true

	flush := func() {
		if len(run) > 0 {
			phrases = append(phrases, strings.Join(run, " "))
			run = nil
		}
	}

	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		capitalized := trimmed != "" && unicode.IsUpper([]rune(trimmed)[0])

		switch {
		case capitalized && !sentenceStart:
			run = append(run, trimmed)
		case capitalized && sentenceStart && len(run) > 0:
			// Continuation across a sentence boundary never happens;
			// this word starts a new sentence, so the run is done.
			flush()
		default:
			flush()
		}
		sentenceStart = endsSentence(w)
	}
	flush()
	return phrases
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") ||
		strings.HasSuffix(word, "!") ||
		strings.HasSuffix(word, "?") ||
		strings.HasSuffix(word, ".\"") ||
		strings.HasSuffix(word, "!\"") ||
		strings.HasSuffix(word, "?\"")
}

// entityID slugs the phrase: lowercase, words joined by hyphens.
func entityID(phrase string) string {
	fields := strings.Fields(strings.ToLower(phrase))
	return strings.Join(fields, "-")
}
