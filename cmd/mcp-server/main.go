// Package main provides the MCP server entry point for the arXiv paper index.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/arxiv-corpus/internal/config"
	"github.com/bull/arxiv-corpus/internal/embedding"
	mcpserver "github.com/bull/arxiv-corpus/internal/mcp"
	"github.com/bull/arxiv-corpus/internal/retrieval"
	"github.com/bull/arxiv-corpus/internal/storage"
	"github.com/bull/arxiv-corpus/internal/vectorindex"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// Stdout carries the stdio transport; every log line goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	v, err := config.NewViper(os.Getenv("ARXIV_CORPUS_CONFIG"))
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	port := getEnv("PORT", "8080")

	// Queries must be embedded by the model that built the index.
	manifest, err := vectorindex.ReadManifest(cfg.IndexDir)
	if err != nil {
		return err
	}
	if manifest.Model != cfg.Embedding.Model {
		logger.Warn("Configured embedding model differs from index, using index model",
			"configured", cfg.Embedding.Model, "index", manifest.Model)
	}
	dimensions := 0
	if cfg.Embedding.Dimensions > 0 {
		dimensions = manifest.Dimension
	}

	embeddingClient, err := embedding.NewClient(embedding.ClientOptions{BaseURL: cfg.Embedding.BaseURL})
	if err != nil {
		return err
	}
	embedder := embedding.NewEmbedder(embeddingClient, embedding.Options{
		Model:      manifest.Model,
		Dimensions: dimensions,
	})

	opts := retrieval.Options{
		PoolK:         cfg.Retrieval.PoolK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		MaxResults:    cfg.Retrieval.MaxResults,
		Backend:       cfg.Retrieval.Backend,
	}
	serverCfg := &mcpserver.Config{Version: version}
	if cfg.Qdrant.Enabled {
		mirror, err := storage.NewQdrantStorage(storage.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
		}, logger)
		if err != nil {
			return err
		}
		defer mirror.Close()
		opts.Mirror = mirror
		serverCfg.Mirror = mirror
	}

	index, err := retrieval.Load(cfg.IndexDir, embedder, opts, logger)
	if err != nil {
		return err
	}
	stats := index.Stats()
	logger.Info("Index loaded", "dir", cfg.IndexDir, "rows", stats.Rows, "model", stats.Model, "built_at", stats.BuiltAt, "backend", cfg.Retrieval.Backend)
	serverCfg.Index = index

	server := mcpserver.NewServer(serverCfg)
	mux := mcpserver.NewMux(server, &mcpserver.HTTPHandlerOptions{Logger: logger})
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	// Check if running in server mode (HTTP) or stdio mode (local development)
	if getEnv("SERVER_MODE", "false") == "true" {
		logger.Info("Starting HTTP server (MCP at /mcp, health at /health)", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode still serves /health and / in the background for local testing.
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting arXiv paper MCP server (stdio mode)")
	return server.Run(ctx)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
