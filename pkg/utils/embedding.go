package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEmbedding parses a comma- or space-separated list of floats such as "0.1,0.2,0.3".
// An empty string yields a nil slice.
func ParseEmbedding(s string) ([]float32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '[' || r == ']'
	})
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
