package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa/internal/chunkstore"
	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/generate"
	"docqa/internal/vecindex"
)

// fakeGenerator records what it was asked and returns a canned answer.
type fakeGenerator struct {
	prompts      []string
	maxTokens    []int
	temperatures []float32
	answer       string
	err          error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.maxTokens = append(g.maxTokens, maxTokens)
	g.temperatures = append(g.temperatures, temperature)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

// countingEmbedder counts calls into the wrapped embedder.
type countingEmbedder struct {
	embedding.Embedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.Embedder.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	return e.Embedder.EmbedBatch(ctx, texts)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.ChunksPath = filepath.Join(dir, "chunks.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "vectors.idx")
	cfg.Retrieval.ChunkSize = 16
	return cfg
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexDocument(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, embedding.NewMockEmbedder(8), &fakeGenerator{answer: "ok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 40 characters at chunk size 16 gives 3 chunks.
	n, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("a", 40)))
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if n != 3 {
		t.Errorf("chunks added = %d, want 3", n)
	}
	if p.Count() != 3 {
		t.Errorf("Count() = %d, want 3", p.Count())
	}
	if p.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d, want 8", p.Dimensions())
	}

	// The snapshot pair is written after every ingest.
	for _, path := range []string{cfg.Storage.ChunksPath, cfg.Storage.IndexPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("snapshot %s: %v", path, err)
		}
	}
}

func TestIndexDocument_unreadable(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, embedding.NewMockEmbedder(8), &fakeGenerator{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, "")); !errors.Is(err, extract.ErrUnreadable) {
		t.Errorf("empty document error = %v, want ErrUnreadable", err)
	}
	if _, err := p.IndexDocument(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, extract.ErrUnreadable) {
		t.Errorf("missing document error = %v, want ErrUnreadable", err)
	}
	if p.Count() != 0 {
		t.Errorf("Count() = %d after failed ingests, want 0", p.Count())
	}
}

func TestQuery(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{answer: "the answer"}
	p, err := New(cfg, embedding.NewMockEmbedder(8), gen)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, "alpha beta gamma delta epsilon zeta eta theta")); err != nil {
		t.Fatal(err)
	}

	res, err := p.Query(context.Background(), "what is alpha?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Answer != "the answer" {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(res.Contexts) != 3 {
		t.Errorf("got %d contexts, want default 3", len(res.Contexts))
	}
	for i := 1; i < len(res.Contexts); i++ {
		if res.Contexts[i].Score > res.Contexts[i-1].Score {
			t.Errorf("contexts not sorted best first: %v", res.Contexts)
		}
	}

	// The prompt carries the retrieved texts and the question.
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "what is alpha?") {
		t.Errorf("prompt missing question: %q", prompt)
	}
	for _, c := range res.Contexts {
		if !strings.Contains(prompt, c.Text) {
			t.Errorf("prompt missing context %q", c.Text)
		}
	}
	if gen.maxTokens[0] != 300 {
		t.Errorf("maxTokens = %d, want default 300", gen.maxTokens[0])
	}
	if gen.temperatures[0] != 0.7 {
		t.Errorf("temperature = %f, want default 0.7", gen.temperatures[0])
	}
}

func TestQuery_overrides(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{answer: "ok"}
	p, err := New(cfg, embedding.NewMockEmbedder(8), gen)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("text ", 20))); err != nil {
		t.Fatal(err)
	}

	res, err := p.Query(context.Background(), "q",
		WithTopK(2), WithMaxTokens(50), WithTemperature(0.2))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Contexts) != 2 {
		t.Errorf("got %d contexts, want 2", len(res.Contexts))
	}
	if gen.maxTokens[0] != 50 {
		t.Errorf("maxTokens = %d, want 50", gen.maxTokens[0])
	}
	if gen.temperatures[0] != 0.2 {
		t.Errorf("temperature = %f, want 0.2", gen.temperatures[0])
	}
}

func TestQuery_empty(t *testing.T) {
	cfg := testConfig(t)
	emb := &countingEmbedder{Embedder: embedding.NewMockEmbedder(8)}
	gen := &fakeGenerator{answer: "ok"}
	p, err := New(cfg, emb, gen)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Query(context.Background(), "anything"); !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("error = %v, want ErrEmptyIndex", err)
	}
	// Neither backend should have been reached.
	if emb.calls != 0 {
		t.Errorf("embedder called %d times on empty index", emb.calls)
	}
	if len(gen.prompts) != 0 {
		t.Errorf("generator called %d times on empty index", len(gen.prompts))
	}
}

func TestQuery_generationUnavailable(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{err: generate.ErrUnavailable}
	p, err := New(cfg, embedding.NewMockEmbedder(8), gen)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("x", 32))); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Query(context.Background(), "q"); !errors.Is(err, generate.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestRestore(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGenerator{answer: "ok"}
	p, err := New(cfg, embedding.NewMockEmbedder(8), gen)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, "the quick brown fox jumps over the lazy dog")); err != nil {
		t.Fatal(err)
	}
	before, err := p.Query(context.Background(), "fox")
	if err != nil {
		t.Fatal(err)
	}

	// A new pipeline over the same paths picks up where the first left off.
	p2, err := New(cfg, embedding.NewMockEmbedder(8), gen)
	if err != nil {
		t.Fatalf("New after restore: %v", err)
	}
	if p2.Count() != p.Count() {
		t.Errorf("restored Count() = %d, want %d", p2.Count(), p.Count())
	}
	after, err := p2.Query(context.Background(), "fox")
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Contexts) != len(before.Contexts) {
		t.Fatalf("restored %d contexts, want %d", len(after.Contexts), len(before.Contexts))
	}
	for i := range after.Contexts {
		if after.Contexts[i].Text != before.Contexts[i].Text {
			t.Errorf("context %d = %q, want %q", i, after.Contexts[i].Text, before.Contexts[i].Text)
		}
	}
}

func TestRestore_missingPair(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, embedding.NewMockEmbedder(8), &fakeGenerator{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("y", 32))); err != nil {
		t.Fatal(err)
	}

	// Removing one half of the pair makes the next startup refuse it.
	if err := os.Remove(cfg.Storage.IndexPath); err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfg, embedding.NewMockEmbedder(8), &fakeGenerator{}); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("error = %v, want ErrInconsistentState", err)
	}
}

func TestRestore_countMismatch(t *testing.T) {
	cfg := testConfig(t)

	// Write a pair whose counts disagree: two chunks but one vector.
	store := chunkstore.NewStore(cfg.Retrieval.ChunkSize)
	store.Append("doc", []string{strings.Repeat("z", 20)})
	if err := store.Save(cfg.Storage.ChunksPath); err != nil {
		t.Fatal(err)
	}
	idx := vecindex.NewFlatIndex()
	if err := idx.Insert(context.Background(), [][]float32{{1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(cfg.Storage.IndexPath); err != nil {
		t.Fatal(err)
	}

	if _, err := New(cfg, embedding.NewMockEmbedder(3), &fakeGenerator{}); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("error = %v, want ErrInconsistentState", err)
	}
}

func TestClear(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, embedding.NewMockEmbedder(8), &fakeGenerator{answer: "ok"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("w", 48))); err != nil {
		t.Fatal(err)
	}

	if err := p.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if p.Count() != 0 {
		t.Errorf("Count() = %d after clear", p.Count())
	}
	if p.Dimensions() != 0 {
		t.Errorf("Dimensions() = %d after clear", p.Dimensions())
	}
	for _, path := range []string{cfg.Storage.ChunksPath, cfg.Storage.IndexPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("snapshot %s still exists after clear", path)
		}
	}
	if _, err := p.Query(context.Background(), "q"); !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("query after clear = %v, want ErrEmptyIndex", err)
	}

	// Clearing again is a no-op.
	if err := p.Clear(context.Background()); err != nil {
		t.Errorf("second Clear: %v", err)
	}

	// A fresh document can be indexed after a clear, with a new dimension.
	p2, err := New(cfg, embedding.NewMockEmbedder(4), &fakeGenerator{answer: "ok"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p2.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("v", 20))); err != nil {
		t.Fatal(err)
	}
	if p2.Dimensions() != 4 {
		t.Errorf("Dimensions() = %d, want 4", p2.Dimensions())
	}
}

// variableEmbedder switches dimension mid-flight to exercise the pre-insert
// dimension check.
type variableEmbedder struct {
	dims int
}

func (e *variableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, e.dims), nil
}

func (e *variableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dims)
	}
	return out, nil
}

func (e *variableEmbedder) Dimensions() int { return e.dims }
func (e *variableEmbedder) Close() error    { return nil }

func TestIndexDocument_dimensionMismatch(t *testing.T) {
	cfg := testConfig(t)
	emb := &variableEmbedder{dims: 8}
	p, err := New(cfg, emb, &fakeGenerator{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("a", 32))); err != nil {
		t.Fatal(err)
	}

	emb.dims = 16
	if _, err := p.IndexDocument(context.Background(), writeDoc(t, strings.Repeat("b", 32))); !errors.Is(err, vecindex.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
	// The failed ingest must not have touched either side.
	if p.Count() != 2 {
		t.Errorf("Count() = %d after rejected ingest, want 2", p.Count())
	}
}
