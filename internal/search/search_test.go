package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	id  string
	vec []float32
}

func docVec(d doc) []float32 { return d.vec }

func TestRankOrdersBySimilarityDescending(t *testing.T) {
	query := []float32{1, 0}
	pool := []doc{
		{id: "mid", vec: []float32{0.6, 0.8}},  // 0.6
		{id: "top", vec: []float32{1, 0}},      // 1.0
		{id: "high", vec: []float32{0.8, 0.6}}, // 0.8
	}

	got := Rank(query, pool, docVec, 0.3, 10)

	require.Len(t, got, 3)
	assert.Equal(t, "top", got[0].Item.id)
	assert.Equal(t, "high", got[1].Item.id)
	assert.Equal(t, "mid", got[2].Item.id)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i].Similarity, got[i-1].Similarity)
	}
}

func TestRankAppliesThreshold(t *testing.T) {
	query := []float32{1, 0}
	pool := []doc{
		{id: "keep", vec: []float32{0.8, 0.6}},      // 0.8
		{id: "drop", vec: []float32{0, 1}},          // 0.0
		{id: "edge", vec: []float32{0.29, 0.9571}},  // just under 0.3
	}

	got := Rank(query, pool, docVec, 0.3, 10)

	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].Item.id)
	for _, m := range got {
		assert.GreaterOrEqual(t, m.Similarity, 0.3)
	}
}

func TestRankTiesKeepInputOrder(t *testing.T) {
	query := []float32{1, 0}
	pool := []doc{
		{id: "first", vec: []float32{0.8, 0.6}},
		{id: "second", vec: []float32{0.8, 0.6}},
		{id: "third", vec: []float32{0.8, 0.6}},
	}

	got := Rank(query, pool, docVec, 0.3, 10)

	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Item.id)
	assert.Equal(t, "second", got[1].Item.id)
	assert.Equal(t, "third", got[2].Item.id)
}

func TestRankHonorsLimit(t *testing.T) {
	query := []float32{1, 0}
	pool := make([]doc, 20)
	for i := range pool {
		pool[i] = doc{id: "d", vec: []float32{1, 0}}
	}

	assert.Len(t, Rank(query, pool, docVec, 0.3, 5), 5)
	assert.Len(t, Rank(query, pool, docVec, 0.3, 0), 20, "limit 0 means no cap")
}

func TestRankSkipsUnusableCandidates(t *testing.T) {
	query := []float32{1, 0}
	pool := []doc{
		{id: "empty", vec: nil},
		{id: "mismatched", vec: []float32{1, 0, 0}},
		{id: "good", vec: []float32{1, 0}},
	}

	got := Rank(query, pool, docVec, 0.3, 10)

	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].Item.id)
}

func TestRequestedLimit(t *testing.T) {
	tests := []struct {
		name string
		text string
		def  int
		want int
	}{
		{"no quantity", "why does login fail after reset", 10, 10},
		{"prs", "show 20 PRs touching auth", 10, 20},
		{"singular pr", "find 1 pr about caching", 10, 1},
		{"commits", "last 15 commits mentioning timeout", 10, 15},
		{"tickets", "give me 3 tickets on payments", 5, 3},
		{"items", "list 7 items about retries", 10, 7},
		{"capped at fifty", "show 200 PRs", 10, 50},
		{"zero falls back", "show 0 PRs", 10, 10},
		{"number without keyword", "error code 404 on login", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequestedLimit(tt.text, tt.def))
		})
	}
}
