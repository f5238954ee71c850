package vecindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// File header for the persisted index: magic, format version, dimension,
// vector count, then count*dimension little-endian float32 values.
var indexMagic = [4]byte{'D', 'Q', 'V', 'I'}

const indexVersion uint32 = 1

// FlatIndex is an exact brute-force vector index scoring by inner product.
// With L2-normalized vectors the score equals cosine similarity. Suitable
// for the modest collection sizes a single-user pipeline holds.
type FlatIndex struct {
	dimensions int // 0 until the first insert
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index. The dimension is fixed by the first
// inserted vector rather than up front, so the same index works with any
// embedding model until it holds data.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Insert appends vectors in order.
func (f *FlatIndex) Insert(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dimensions == 0 {
		if len(vectors[0]) == 0 {
			return fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
		}
		f.dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), f.dimensions)
		}
	}
	for _, v := range vectors {
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search returns the top-k vectors by inner product, best first.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	scored := make([]Result, len(f.vectors))
	for i, vec := range f.vectors {
		scored[i] = Result{Pos: i, Score: InnerProduct(query, vec)}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Clear removes all vectors; the next insert establishes a fresh dimension.
func (f *FlatIndex) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = nil
	f.dimensions = 0
}

// Size returns the number of stored vectors.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the established dimension, or 0 while the index is empty.
func (f *FlatIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

// Save writes the index to path, preserving insertion order. Parent
// directories are created if needed.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(indexMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []uint32{indexVersion, uint32(f.dimensions), uint32(len(f.vectors))}
	for _, v := range header {
		if err := binary.Write(file, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, vec := range f.vectors {
		if _, err := file.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents,
// including the dimension. Malformed or truncated files fail with
// ErrCorruptIndex.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	var magic [4]byte
	if _, err := io.ReadFull(file, magic[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if magic != indexMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, magic[:])
	}
	var version, dim, count uint32
	for _, p := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(file, binary.LittleEndian, p); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
	}
	if version != indexVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, version)
	}
	if count > 0 && dim == 0 {
		return fmt.Errorf("%w: %d vectors with zero dimension", ErrCorruptIndex, count)
	}
	vectors := make([][]float32, 0, count)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(file, buf); err != nil {
			return fmt.Errorf("%w: vector %d: %v", ErrCorruptIndex, i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	f.mu.Lock()
	f.vectors = vectors
	if count == 0 {
		f.dimensions = 0
	} else {
		f.dimensions = int(dim)
	}
	f.mu.Unlock()
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
