// Package vecindex provides positional vector storage and similarity search.
package vecindex

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's length disagrees with the
// dimension the index was established with.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrCorruptIndex is returned when a persisted index file cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt vector index")

// Result is a single search hit. Pos is the vector's insertion position,
// which is also the paired chunk's ID in the chunk store.
type Result struct {
	Pos   int
	Score float64
}

// VectorIndex stores embedding vectors in insertion order and answers
// nearest-neighbor queries. Implementations are exact or approximate; the
// interface is the same either way so one can be swapped for the other.
type VectorIndex interface {
	// Insert appends vectors in order. The first vector ever inserted fixes
	// the index dimension; later vectors of a different length fail with
	// ErrDimensionMismatch.
	Insert(ctx context.Context, vectors [][]float32) error
	// Search returns the k entries most similar to query, best first.
	// Fewer than k are returned when the index holds fewer vectors; an
	// empty index yields an empty result.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	// Clear removes all vectors and unsets the dimension.
	Clear()
	Save(path string) error
	Load(path string) error
	Size() int
	// Dimensions returns the established dimension, or 0 while empty.
	Dimensions() int
}
