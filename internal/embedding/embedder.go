// Package embedding provides text embedding backends for the retrieval pipeline.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text. Identical
// input always yields the identical vector, and the dimension is fixed for
// the lifetime of the embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
