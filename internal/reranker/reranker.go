// Package reranker scores and reorders retrieval candidates after the
// initial vector/keyword fetch: a pure lexical boost that runs on every
// query, and an optional cross-encoder pass behind an HTTP provider.
package reranker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
)

// Candidate is a single retrieval hit carried through the boost/rerank
// stages. Score fields are cumulative: SearchVector/SearchText populate
// VectorScore/KeywordScore, ApplyLexicalBoost sets CombinedScore, and a
// successful Reranker.Rerank pass replaces it again.
type Candidate struct {
	ChunkID   string
	Name      string
	Signature string
	Content   string

	VectorScore   float64
	KeywordScore  float64
	CombinedScore float64
}

// Reranker scores (query, candidate) pairs and returns the top k reordered
// by that score. Implementations must be safe to fail: the caller treats
// any error as "rerank unavailable" and falls back to the boosted order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error)
}

// Weights used when folding token matches into a candidate's boost. A
// match in Name counts most since it usually names the very thing the
// query is looking for; Content matches count least since they're the
// most likely to be incidental.
const (
	nameWeight      = 3.0
	signatureWeight = 2.0
	contentWeight   = 1.0

	exactNameBonus = 1.0
)

// ApplyLexicalBoost tokenizes query into lowercased unicode words and adds
// a weighted match score to each candidate's VectorScore, writing the
// result to CombinedScore (clamped to [0,1]). Candidates are otherwise
// left untouched. An empty query is a no-op: CombinedScore is copied from
// VectorScore unchanged.
//
// Matching is always literal (strings.Contains / set membership on the
// tokenized word), never regexp, so query text containing regex
// metacharacters can never fail to compile a pattern.
func ApplyLexicalBoost(query string, candidates []Candidate) []Candidate {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		for i := range candidates {
			candidates[i].CombinedScore = clamp01(candidates[i].VectorScore)
		}
		return candidates
	}

	for i := range candidates {
		c := &candidates[i]
		boost := tokenMatchScore(tokens, c)
		c.CombinedScore = clamp01(c.VectorScore + boost)
	}
	return candidates
}

func tokenMatchScore(tokens []string, c *Candidate) float64 {
	nameWords := wordSet(c.Name)
	lowerName := strings.ToLower(c.Name)
	lowerSig := strings.ToLower(c.Signature)
	lowerContent := strings.ToLower(c.Content)

	var score float64
	for _, tok := range tokens {
		if nameWords[tok] {
			score += nameWeight + exactNameBonus
		} else if strings.Contains(lowerName, tok) {
			score += nameWeight
		}
		if strings.Contains(lowerSig, tok) {
			score += signatureWeight
		}
		if strings.Contains(lowerContent, tok) {
			score += contentWeight
		}
	}

	// Scale down so a handful of token matches doesn't blow past 1.0 on
	// its own; the vector score still anchors the base of the sum.
	return score / (float64(len(tokens)) * (nameWeight + signatureWeight + contentWeight))
}

func wordSet(s string) map[string]bool {
	words := tokenize(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// tokenize splits on unicode word boundaries and lowercases; punctuation
// and whitespace are dropped entirely.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ErrNoCandidates is returned by a Reranker when asked to score an empty
// candidate set.
var ErrNoCandidates = errors.New("reranker: no candidates to score")

// sortByCombinedScore orders candidates by CombinedScore descending; ties
// keep their relative input order (stable sort).
func sortByCombinedScore(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
}

// topK returns the first k candidates, or all of them if k exceeds the
// slice length or is non-positive.
func topK(candidates []Candidate, k int) []Candidate {
	if k <= 0 || k > len(candidates) {
		return candidates
	}
	return candidates[:k]
}
