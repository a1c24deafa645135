package store

import (
	"fmt"
	"strconv"
	"strings"
)

// vectorToString encodes a vector in pgvector text format: [0.1,0.2,0.3].
// An empty vector encodes as "" so the column stays NULL.
func vectorToString(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// vectorFromString parses pgvector text format back into a vector. Empty or
// NULL-coalesced input decodes to nil, which candidates treat as "no
// embedding".
func vectorFromString(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", truncateLiteral(s))
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func truncateLiteral(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
