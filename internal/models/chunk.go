// Package models defines core data structures for chunks and query results.
package models

// Chunk is a fixed-size slice of a document's extracted text, the unit of
// retrieval. IDs are sequential integers assigned at append time; a chunk's
// ID is also its position in the vector index.
type Chunk struct {
	ID         int    `json:"id"`
	DocumentID string `json:"document_id"`
	SequenceNo int    `json:"sequence_no"`
	Text       string `json:"text"`
}
