package search

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/probelabs/hindsight/internal/embedding"
)

// Default retrieval tuning. Tickets get a lower limit to keep tracker noise
// out of the prompt.
const (
	DefaultThreshold   = 0.3
	DefaultPRLimit     = 10
	DefaultCommitLimit = 10
	DefaultTicketLimit = 5
	MaxRequestedLimit  = 50
)

// Match pairs a candidate with its similarity to the query vector.
type Match[T any] struct {
	Item       T       `json:"item"`
	Similarity float64 `json:"similarity"`
}

// Rank scores candidates against query and returns matches in strictly
// non-increasing similarity order, ties keeping input order. Candidates with
// no embedding or with a dimension that does not match the query are dropped.
// Matches below threshold are discarded; at most limit matches are returned
// (limit <= 0 means no cap).
func Rank[T any](query []float32, candidates []T, embeddingOf func(T) []float32, threshold float64, limit int) []Match[T] {
	matches := make([]Match[T], 0, len(candidates))
	for _, cand := range candidates {
		vec := embeddingOf(cand)
		if len(vec) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		if sim < threshold {
			continue
		}
		matches = append(matches, Match[T]{Item: cand, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

var quantityPattern = regexp.MustCompile(`(?i)\b(\d+)\s+(?:prs?|pull\s+requests?|commits?|tickets?|issues?|items?|results?)\b`)

// RequestedLimit extracts a quantity override from the query text, e.g.
// "show the last 20 PRs about auth". Returns def when the text names no
// quantity; values are capped at MaxRequestedLimit.
func RequestedLimit(text string, def int) int {
	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return def
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return def
	}
	if n > MaxRequestedLimit {
		return MaxRequestedLimit
	}
	return n
}
