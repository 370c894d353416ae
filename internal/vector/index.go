package vector

import "io"

// VectorIndex is an append-only nearest-neighbour index over fixed-dimension vectors.
// Vectors are addressed by ordinal position; there is no delete or update.
type VectorIndex interface {
	Append(vector []float32) (int, error)
	Search(query []float32, k int) ([]*VectorResult, error)
	Reset()
	Size() int
	Dimensions() int
	Type() string
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	Position int
	Distance float64
}
