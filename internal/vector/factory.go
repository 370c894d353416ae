// Package vector provides the in-memory vector index, its blob codec and a factory.
package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat is exact brute-force L2 search.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeMemory is accepted as an alias of flat.
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "flat" (default), "memory" (alias of flat).
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, IndexTypeMemory, "":
		return NewFlatIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat)", indexType)
	}
}
