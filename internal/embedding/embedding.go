package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/probelabs/hindsight/internal/port"
)

const (
	// MaxInputChars bounds the text sent to the embedding backend. Longer
	// inputs are truncated to respect upstream token limits.
	MaxInputChars = 8000

	// DefaultDimension is the vector size used when none is configured.
	DefaultDimension = 768
)

// ErrDimensionMismatch is returned by CosineSimilarity when the two vectors
// differ in length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Engine produces embeddings. The configured provider is preferred; any
// provider failure degrades to a deterministic hash-based vector, so Embed
// always yields a usable vector and never returns an error.
type Engine struct {
	provider port.AIProvider
	dim      int
	cache    *lru.Cache[string, []float32]
}

// NewEngine builds an engine around provider. A nil provider is allowed and
// means every call takes the deterministic path.
func NewEngine(provider port.AIProvider, dim, cacheSize int) *Engine {
	if dim <= 0 {
		dim = DefaultDimension
	}
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &Engine{provider: provider, dim: dim, cache: cache}
}

// Dimension returns the configured vector dimension.
func (e *Engine) Dimension() int { return e.dim }

// Embed returns a vector for text. Provider results are cached by content
// hash; fallback vectors are cheap to recompute and are not cached, so a
// recovered provider takes over again on the next call.
func (e *Engine) Embed(ctx context.Context, text string) []float32 {
	text = Truncate(text, MaxInputChars)
	key := cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec
	}
	if e.provider != nil {
		vec, err := e.provider.Embed(ctx, text)
		if err == nil && len(vec) > 0 {
			e.cache.Add(key, vec)
			return vec
		}
		if err != nil {
			slog.Warn("embedding provider failed, using deterministic fallback", "error", err)
		}
	}
	return Deterministic(text, e.dim)
}

// EmbedBatch embeds several texts, preferring the provider's batch call and
// degrading per-text like Embed when it fails.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = Truncate(t, MaxInputChars)
	}
	if e.provider != nil {
		vecs, err := e.provider.EmbedBatch(ctx, truncated)
		if err == nil && len(vecs) == len(truncated) {
			for i, v := range vecs {
				e.cache.Add(cacheKey(truncated[i]), v)
			}
			return vecs
		}
		if err != nil {
			slog.Warn("batch embedding failed, embedding texts one by one", "error", err, "count", len(texts))
		}
	}
	out := make([][]float32, len(truncated))
	for i, t := range truncated {
		out[i] = e.Embed(ctx, t)
	}
	return out
}

// Deterministic computes the degraded-mode embedding: stable per text, not
// semantically meaningful. Lower-cases the input, splits on whitespace, and
// for word index i, character index j with code c accumulates 0.1 at
// position (c*(i+1)*(j+1)) mod dim, then normalizes to unit length.
func Deterministic(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimension
	}
	vec := make([]float32, dim)
	words := strings.Fields(strings.ToLower(text))
	for i, word := range words {
		j := 0
		for _, r := range word {
			idx := (int(r) * (i + 1) * (j + 1)) % dim
			vec[idx] += 0.1
			j++
		}
	}
	return NormalizeL2(vec)
}

// NormalizeL2 scales vec to unit L2 norm in place and returns it. A zero
// vector is left unchanged (norm treated as 1 to avoid dividing by zero).
func NormalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Vectors of unequal length are an error, never silently truncated.
// Returns 0 when either vector has zero norm.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Truncate bounds s to at most n characters.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
