// Package chunkstore holds the ordered sequence of text chunks extracted
// from indexed documents and persists it as a chunk records file.
package chunkstore

import (
	"errors"
	"fmt"
	"sync"

	"docqa/internal/models"
)

// ErrNotFound is returned when a chunk ID is out of range.
var ErrNotFound = errors.New("chunk not found")

// ErrCorruptStore is returned when a chunk records file cannot be read back.
var ErrCorruptStore = errors.New("corrupt chunk store")

// Store is an append-only ordered chunk store. Chunk IDs are indices into
// the backing sequence, so ID i here pairs with position i in the vector
// index. Existing chunks are never mutated; only Clear and Load replace them.
type Store struct {
	chunkSize int
	chunks    []models.Chunk
	mu        sync.RWMutex
}

// NewStore creates a store that windows appended text into chunkSize
// characters (DefaultChunkSize when chunkSize <= 0).
func NewStore(chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{chunkSize: chunkSize}
}

// ChunkSize returns the configured window size in characters.
func (s *Store) ChunkSize() int {
	return s.chunkSize
}

// Append windows the document's text segments and appends the resulting
// chunks, assigning each the next sequential ID. Returns the new IDs in
// order. Empty input appends nothing.
func (s *Store) Append(documentID string, segments []string) []int {
	windows := SplitSegments(segments, s.chunkSize)
	if len(windows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, len(windows))
	for i, text := range windows {
		id := len(s.chunks)
		s.chunks = append(s.chunks, models.Chunk{
			ID:         id,
			DocumentID: documentID,
			SequenceNo: i,
			Text:       text,
		})
		ids[i] = id
	}
	return ids
}

// Get returns the chunk with the given ID.
func (s *Store) Get(id int) (models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.chunks) {
		return models.Chunk{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return s.chunks[id], nil
}

// GetMany returns the chunks for ids, preserving the order of ids as given
// (the caller controls ranking order).
func (s *Store) GetMany(ids []int) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(s.chunks) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		out[i] = s.chunks[id]
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Clear empties the store. All previously issued IDs become invalid.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}
