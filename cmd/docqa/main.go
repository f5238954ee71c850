// Package main is the docqa CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/embedding"
	"docqa/internal/generate"
	"docqa/internal/pipeline"
	"docqa/internal/server"
	"docqa/internal/watcher"
	"docqa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docqa/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. A missing default config falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "clear":
		runClear()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("docqa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// components holds the wired pipeline and the embedder that must be closed
// on shutdown.
type components struct {
	Pipeline *pipeline.Pipeline
	Embedder embedding.Embedder
}

func (c *components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	var embedder embedding.Embedder
	var err error
	switch cfg.Embedding.Provider {
	case "openai", "":
		embedder, err = embedding.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), cfg.Embedding.Model)
	case "onnx":
		embedder, err = embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.Embedding.Dimensions, cfg.Embedding.MaxTokens)
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)

	var generator generate.Generator
	if cfg.Embedding.Provider == "mock" {
		generator = generate.NewEchoGenerator()
	} else {
		generator, err = generate.NewOpenAIGenerator(os.Getenv("OPENAI_API_KEY"), cfg.Generation.Model)
		if err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
	}

	p, err := pipeline.New(cfg, embedder, generator, pipeline.WithLogger(logger))
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	return &components{Pipeline: p, Embedder: embedder}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		p := comps.Pipeline
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				if _, err := p.IndexDocument(context.Background(), path); err != nil {
					logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(comps.Pipeline, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: docqa index [flags] <file> [<file> ...]")
		os.Exit(1)
	}

	comps, logger := mustComponents(*configPath)
	defer comps.Close()
	defer logger.Sync()

	total := 0
	for _, path := range fs.Args() {
		n, err := comps.Pipeline.IndexDocument(context.Background(), path)
		if err != nil {
			fmt.Printf("Failed to index %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %s (%d chunks)\n", path, n)
		total += n
	}
	fmt.Printf("Done: %d chunks, %d total in index\n", total, comps.Pipeline.Count())
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	topK := fs.Int("top-k", 0, "number of contexts to retrieve (default from config)")
	maxTokens := fs.Int("max-tokens", 0, "answer length cap (default from config)")
	temperature := fs.Float64("temperature", 0, "sampling temperature (default from config)")
	showContexts := fs.Bool("contexts", false, "print the retrieved contexts with scores")
	_ = fs.Parse(os.Args[2:])
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("Usage: docqa ask [flags] <question>")
		os.Exit(1)
	}

	comps, logger := mustComponents(*configPath)
	defer comps.Close()
	defer logger.Sync()

	var opts []pipeline.QueryOption
	if *topK > 0 {
		opts = append(opts, pipeline.WithTopK(*topK))
	}
	if *maxTokens > 0 {
		opts = append(opts, pipeline.WithMaxTokens(*maxTokens))
	}
	if *temperature > 0 {
		opts = append(opts, pipeline.WithTemperature(float32(*temperature)))
	}

	result, err := comps.Pipeline.Query(context.Background(), question, opts...)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result.Answer)
	if *showContexts {
		fmt.Println()
		for i, c := range result.Contexts {
			fmt.Printf("[%d] (%.4f) %s\n", i+1, c.Score, utils.Truncate(c.Text, 200))
		}
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	comps, logger := mustComponents(*configPath)
	defer comps.Close()
	defer logger.Sync()

	if err := comps.Pipeline.Clear(context.Background()); err != nil {
		fmt.Printf("Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Index cleared")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := zap.NewNop()
	// Status never talks to a backend, so a mock embedder is enough to
	// open the snapshot pair.
	statusCfg := *cfg
	statusCfg.Embedding.Provider = "mock"
	comps, err := initializeComponents(&statusCfg, logger)
	if err != nil {
		fmt.Printf("Failed to read index: %v\n", err)
		os.Exit(1)
	}
	defer comps.Close()

	fmt.Printf("Chunks:      %d\n", comps.Pipeline.Count())
	fmt.Printf("Dimensions:  %d\n", comps.Pipeline.Dimensions())
	fmt.Printf("Chunk size:  %d\n", cfg.Retrieval.ChunkSize)
	fmt.Printf("Top k:       %d\n", cfg.Retrieval.TopK)
	fmt.Printf("Provider:    %s\n", cfg.Embedding.Provider)
	fmt.Printf("Chunks path: %s\n", cfg.Storage.ChunksPath)
	fmt.Printf("Index path:  %s\n", cfg.Storage.IndexPath)
	if diskBytes, err := utils.DiskUsageBytes(cfg.Storage.ChunksPath, cfg.Storage.IndexPath); err == nil {
		fmt.Printf("Disk usage:  %d bytes\n", diskBytes)
	}
}

func mustComponents(configPath string) (*components, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return comps, logger
}

func printUsage() {
	fmt.Println(`docqa - Ask questions about your documents

Usage:
  docqa server [flags]            Start the HTTP server
  docqa index [flags] <file>...   Index documents
  docqa ask [flags] <question>    Ask a question
  docqa clear [flags]             Remove all indexed documents
  docqa status [flags]            Show index status
  docqa version                   Show version
  docqa help                      Show this help

Flags:
  --config string    Config file path (default: /usr/local/etc/docqa/config.yaml)
  --debug            Enable debug logging (server)

Ask Flags:
  --top-k int          Number of contexts to retrieve
  --max-tokens int     Answer length cap
  --temperature float  Sampling temperature
  --contexts           Print retrieved contexts with scores

The OPENAI_API_KEY environment variable (or a .env file) is required for
the openai embedding and generation provider.`)
}
