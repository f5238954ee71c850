package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9090
storage:
  chunks_path: ./data/chunks.db
  index_path: ./data/vectors.idx
retrieval:
  chunk_size: 256
  top_k: 5
generation:
  max_tokens: 150
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port=%d", cfg.Server.Port)
	}
	if cfg.Retrieval.ChunkSize != 256 || cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval=%+v", cfg.Retrieval)
	}
	if cfg.Generation.MaxTokens != 150 {
		t.Errorf("Generation.MaxTokens=%d", cfg.Generation.MaxTokens)
	}
	// ./ paths expand relative to the config directory.
	if cfg.Storage.ChunksPath != filepath.Join(dir, "data/chunks.db") {
		t.Errorf("ChunksPath=%s", cfg.Storage.ChunksPath)
	}
}

func TestLoad_missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Retrieval.ChunkSize != 512 {
		t.Errorf("ChunkSize=%d", cfg.Retrieval.ChunkSize)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("TopK=%d", cfg.Retrieval.TopK)
	}
	if cfg.Generation.MaxTokens != 300 {
		t.Errorf("MaxTokens=%d", cfg.Generation.MaxTokens)
	}
	if cfg.Generation.Temperature != 0.7 {
		t.Errorf("Temperature=%f", cfg.Generation.Temperature)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Provider=%s", cfg.Embedding.Provider)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port=%d", cfg.Server.Port)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	var w WatchConfig
	if !w.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
	f := false
	w.Recursive = &f
	if w.RecursiveOrDefault() {
		t.Error("explicit false should win")
	}
}
