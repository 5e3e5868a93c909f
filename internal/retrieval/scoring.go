package retrieval

import (
	"math"
	"strings"
	"unicode/utf8"
)

// RelevancePolicy weighs vector similarity against keyword overlap.
// The defaults are empirical.
type RelevancePolicy struct {
	SimilarityWeight float64 `yaml:"similarity_weight" json:"similarity_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight" json:"keyword_weight"`
	Base             float64 `yaml:"base" json:"base"`
	// MinTermRunes is the shortest query term that counts as a keyword.
	MinTermRunes int `yaml:"min_term_runes" json:"min_term_runes"`
}

// DefaultRelevancePolicy returns r = min(1, 0.5·s + min(0.3, 0.3·matched/total) + 0.2)
// over terms of at least three runes.
func DefaultRelevancePolicy() RelevancePolicy {
	return RelevancePolicy{
		SimilarityWeight: 0.5,
		KeywordWeight:    0.3,
		Base:             0.2,
		MinTermRunes:     3,
	}
}

// Similarity converts a cosine distance to a similarity in [0, 1].
func Similarity(distance float64) float64 {
	return math.Max(0, math.Min(1, 1-distance))
}

// QueryTerms splits a query into lower-cased whitespace-separated terms.
func QueryTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// KeywordScore returns the keyword component for content and the number of
// qualifying terms found in it. content must already be lower-cased.
func (p RelevancePolicy) KeywordScore(terms []string, content string) (float64, int) {
	if len(terms) == 0 {
		return 0, 0
	}
	matched := 0
	for _, t := range terms {
		if utf8.RuneCountInString(t) >= p.MinTermRunes && strings.Contains(content, t) {
			matched++
		}
	}
	score := p.KeywordWeight * float64(matched) / float64(len(terms))
	return math.Min(p.KeywordWeight, score), matched
}

// Relevance combines similarity and keyword score, capped at 1.
func (p RelevancePolicy) Relevance(similarity, keywordScore float64) float64 {
	return math.Min(1, p.SimilarityWeight*similarity+keywordScore+p.Base)
}
