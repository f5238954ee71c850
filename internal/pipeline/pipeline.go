// Package pipeline wires chunking, embedding, vector search and generation
// into the retrieval pipeline behind the HTTP and CLI surfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/chunkstore"
	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/generate"
	"docqa/internal/models"
	"docqa/internal/vecindex"
)

// ErrEmptyIndex is returned by Query when no document has been indexed yet.
var ErrEmptyIndex = errors.New("index is empty")

// ErrInconsistentState is returned when the persisted chunk store and vector
// index disagree, or when only one of the pair exists on disk.
var ErrInconsistentState = errors.New("inconsistent persisted state")

// Pipeline owns the chunk store and vector index as a pair: chunk ID i in
// the store is always vector position i in the index. All operations are
// serialized by a single mutex, so two concurrent IndexDocument calls
// cannot interleave their appends.
type Pipeline struct {
	store     *chunkstore.Store
	index     vecindex.VectorIndex
	extractor *extract.Extractor
	embedder  embedding.Embedder
	generator generate.Generator

	chunksPath string
	indexPath  string

	topK        int
	maxTokens   int
	temperature float32

	log *zap.Logger
	mu  sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New creates a pipeline and restores any persisted snapshot pair. When
// neither snapshot file exists the pipeline starts empty; anything else
// that prevents a clean restore is an error.
func New(cfg *config.Config, embedder embedding.Embedder, generator generate.Generator, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		store:       chunkstore.NewStore(cfg.Retrieval.ChunkSize),
		index:       vecindex.NewFlatIndex(),
		extractor:   extract.NewExtractor(),
		embedder:    embedder,
		generator:   generator,
		chunksPath:  cfg.Storage.ChunksPath,
		indexPath:   cfg.Storage.IndexPath,
		topK:        cfg.Retrieval.TopK,
		maxTokens:   cfg.Generation.MaxTokens,
		temperature: cfg.Generation.Temperature,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

// IndexDocument extracts the document at path, chunks it, embeds the chunks
// and appends them to the store and index, then persists the snapshot pair.
// Returns the number of chunks added.
func (p *Pipeline) IndexDocument(ctx context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	segments, err := p.extractor.Extract(path)
	if err != nil {
		return 0, err
	}
	windows := chunkstore.SplitSegments(segments, p.store.ChunkSize())
	if len(windows) == 0 {
		return 0, fmt.Errorf("%w: no text extracted from %s", extract.ErrUnreadable, path)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, windows)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	// Validate dimensions before touching either side, so a mismatch
	// cannot leave the store ahead of the index.
	if err := p.checkDimensions(vectors); err != nil {
		return 0, err
	}

	docID := uuid.NewString()
	ids := p.store.Append(docID, segments)
	if err := p.index.Insert(ctx, vectors); err != nil {
		// Roll back to the last saved snapshot so the pair stays aligned.
		p.store.Clear()
		p.index.Clear()
		if loadErr := p.load(); loadErr != nil {
			return 0, fmt.Errorf("%w (and restore failed: %v)", err, loadErr)
		}
		return 0, err
	}

	if err := p.save(); err != nil {
		return 0, err
	}
	p.log.Info("indexed document",
		zap.String("path", path),
		zap.String("document_id", docID),
		zap.Int("chunks", len(ids)),
		zap.Int("total", p.store.Count()))
	return len(ids), nil
}

// QueryOption overrides a generation parameter for a single query.
type QueryOption func(*queryParams)

type queryParams struct {
	topK        int
	maxTokens   int
	temperature float32
}

// WithTopK overrides how many contexts are retrieved.
func WithTopK(k int) QueryOption {
	return func(q *queryParams) {
		if k > 0 {
			q.topK = k
		}
	}
}

// WithMaxTokens overrides the answer length cap.
func WithMaxTokens(n int) QueryOption {
	return func(q *queryParams) {
		if n > 0 {
			q.maxTokens = n
		}
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) QueryOption {
	return func(q *queryParams) {
		if t > 0 {
			q.temperature = t
		}
	}
}

// Query answers a question from the indexed documents. It embeds the
// question, retrieves the most similar chunks, and asks the generator to
// answer from them. Returns ErrEmptyIndex without calling any backend when
// nothing has been indexed.
func (p *Pipeline) Query(ctx context.Context, question string, opts ...QueryOption) (*models.QueryResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store.Count() == 0 {
		return nil, ErrEmptyIndex
	}

	params := queryParams{topK: p.topK, maxTokens: p.maxTokens, temperature: p.temperature}
	for _, opt := range opts {
		opt(&params)
	}

	queryVec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	hits, err := p.index.Search(ctx, queryVec, params.topK)
	if err != nil {
		return nil, err
	}
	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.Pos
	}
	chunks, err := p.store.GetMany(positions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInconsistentState, err)
	}

	contexts := make([]models.Context, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		contexts[i] = models.Context{Text: c.Text, Score: hits[i].Score}
		texts[i] = c.Text
	}

	answer, err := p.generator.Generate(ctx, BuildPrompt(texts, question), params.maxTokens, params.temperature)
	if err != nil {
		return nil, err
	}
	p.log.Debug("answered query",
		zap.Int("contexts", len(contexts)),
		zap.Int("top_k", params.topK))
	return &models.QueryResult{Answer: answer, Contexts: contexts}, nil
}

// Clear empties the store and index and removes the snapshot pair from
// disk. Clearing an already empty pipeline is a no-op.
func (p *Pipeline) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.store.Clear()
	p.index.Clear()
	for _, path := range []string{p.chunksPath, p.indexPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	p.log.Info("cleared index")
	return nil
}

// Count returns the number of indexed chunks.
func (p *Pipeline) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Count()
}

// Dimensions returns the vector dimension, or 0 while empty.
func (p *Pipeline) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index.Dimensions()
}

// checkDimensions verifies every vector matches the index dimension (or,
// for a fresh index, that they all agree with each other).
func (p *Pipeline) checkDimensions(vectors [][]float32) error {
	dims := p.index.Dimensions()
	if dims == 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: got %d, want %d", vecindex.ErrDimensionMismatch, len(v), dims)
		}
	}
	return nil
}

// save persists the snapshot pair. Callers hold the mutex.
func (p *Pipeline) save() error {
	if err := p.store.Save(p.chunksPath); err != nil {
		return fmt.Errorf("failed to save chunk store: %w", err)
	}
	if err := p.index.Save(p.indexPath); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}
	return nil
}

// load restores the snapshot pair. Both files missing means a fresh start;
// one missing, or a chunk count that disagrees with the vector count, means
// the pair was half-written and nothing is restored.
func (p *Pipeline) load() error {
	_, chunksErr := os.Stat(p.chunksPath)
	_, indexErr := os.Stat(p.indexPath)
	chunksMissing := os.IsNotExist(chunksErr)
	indexMissing := os.IsNotExist(indexErr)

	if chunksMissing && indexMissing {
		return nil
	}
	if chunksMissing != indexMissing {
		return fmt.Errorf("%w: only one of %s and %s exists", ErrInconsistentState, p.chunksPath, p.indexPath)
	}

	if err := p.store.Load(p.chunksPath); err != nil {
		return err
	}
	if err := p.index.Load(p.indexPath); err != nil {
		p.store.Clear()
		return err
	}
	if p.store.Count() != p.index.Size() {
		count, size := p.store.Count(), p.index.Size()
		p.store.Clear()
		p.index.Clear()
		return fmt.Errorf("%w: %d chunks but %d vectors", ErrInconsistentState, count, size)
	}
	p.log.Info("restored snapshot",
		zap.Int("chunks", p.store.Count()),
		zap.Int("dimensions", p.index.Dimensions()))
	return nil
}
