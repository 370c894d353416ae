package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/hyperjump/kensaku/internal/models"
)

// maxPrealloc bounds the capacity reserved from an untrusted count header.
const maxPrealloc = 1 << 16

// FlatIndex is an exact nearest-neighbour index using brute-force L2 distance.
// Vectors are stored contiguously; position i occupies data[i*dim:(i+1)*dim].
type FlatIndex struct {
	dimensions int
	count      int
	data       []float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimensions returns the configured vector length.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Append copies vector into the index and returns its position.
func (f *FlatIndex) Append(vector []float32) (int, error) {
	if len(vector) != f.dimensions {
		return 0, models.NewDimensionError(f.dimensions, len(vector))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, vector...)
	pos := f.count
	f.count++
	return pos, nil
}

// Search returns up to k positions ordered by ascending distance to query.
// Ties keep the lower position first.
func (f *FlatIndex) Search(query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, models.NewDimensionError(f.dimensions, len(query))
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d", models.ErrInvalidLimit, k)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.count == 0 {
		return nil, nil
	}
	results := make([]*VectorResult, f.count)
	for i := 0; i < f.count; i++ {
		vec := f.data[i*f.dimensions : (i+1)*f.dimensions]
		results[i] = &VectorResult{Position: i, Distance: L2Distance(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Reset drops every vector.
func (f *FlatIndex) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
	f.count = 0
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Encode writes the index to w. Format: dimension (4), n (4), then n*dimension float32, little endian.
func (f *FlatIndex) Encode(w io.Writer) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.count)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, 4)
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return bw.Flush()
}

// Decode replaces the index contents with the vectors read from r.
// The stored dimension must match; on any error the index is left unchanged.
func (f *FlatIndex) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	var dim, n uint32
	if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != f.dimensions {
		return models.NewDimensionError(f.dimensions, int(dim))
	}
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	total := int(n) * f.dimensions
	data := make([]float32, 0, min(total, maxPrealloc))
	buf := make([]byte, f.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		for j := 0; j < f.dimensions; j++ {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:])))
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	f.count = int(n)
	return nil
}
