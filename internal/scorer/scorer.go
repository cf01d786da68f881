// Package scorer assigns relevance scores to Brazilian procurement text.
// Matching is keyword based, accent insensitive and deterministic: the same
// text always produces the same score, so filter decisions are replayable.
package scorer

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Scorer rates a piece of tender text for product relevance.
type Scorer interface {
	// Score returns a 0..100 relevance score and the matched terms.
	Score(text string) (float64, []string)
}

// KeywordScorer scores text against a Vocabulary. Strong keywords carry
// more weight than general ones, and text without any core term scores
// zero regardless of other matches.
type KeywordScorer struct {
	core    []string
	general []string
	strong  []string

	keywordWeight float64
	strongWeight  float64
}

// NewKeywordScorer builds a scorer from the vocabulary. Keywords are
// folded once here so per-text scoring only folds the input.
func NewKeywordScorer(v Vocabulary) *KeywordScorer {
	v.applyDefaults()
	return &KeywordScorer{
		core:          foldAll(v.CoreTerms),
		general:       foldAll(v.Keywords),
		strong:        foldAll(v.StrongKeywords),
		keywordWeight: v.KeywordWeight,
		strongWeight:  v.StrongWeight,
	}
}

// Score rates the text. A core term must be present for a non-zero score;
// "material de escritório e segurança" matching only incidental terms
// stays out of the pipeline this way.
func (s *KeywordScorer) Score(text string) (float64, []string) {
	folded := Fold(text)
	if folded == "" || !containsAny(folded, s.core) {
		return 0, nil
	}

	matched := map[string]bool{}
	var score float64
	for _, kw := range s.general {
		if strings.Contains(folded, kw) {
			matched[kw] = true
			score += s.keywordWeight
		}
	}
	for _, kw := range s.strong {
		if strings.Contains(folded, kw) && !matched[kw] {
			matched[kw] = true
			score += s.strongWeight
		}
	}
	if score > 100 {
		score = 100
	}

	terms := make([]string, 0, len(matched))
	for kw := range matched {
		terms = append(terms, kw)
	}
	sort.Strings(terms)
	return score, terms
}

// Relevant reports whether the text matches at least one vocabulary term.
func (s *KeywordScorer) Relevant(text string) bool {
	folded := Fold(text)
	return containsAny(folded, s.general) || containsAny(folded, s.strong)
}

// StrongMatchCount counts strong keywords present in the text. Used to
// short-circuit verification when the tender title alone is conclusive.
func (s *KeywordScorer) StrongMatchCount(text string) int {
	folded := Fold(text)
	n := 0
	for _, kw := range s.strong {
		if strings.Contains(folded, kw) {
			n++
		}
	}
	return n
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func foldAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if f := Fold(t); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Fold lowercases the text and strips diacritics, so "segurança" and
// "SEGURANCA" compare equal. The transformer carries state and is built
// per call.
func Fold(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lower)
	if err != nil {
		return lower
	}
	return folded
}
