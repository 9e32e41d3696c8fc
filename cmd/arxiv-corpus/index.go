package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/embedding"
	"github.com/bull/arxiv-corpus/internal/indexer"
	"github.com/bull/arxiv-corpus/internal/storage"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Merge processed batches and build the vector index",
	Long: `Merges every processed batch into data_dir/merged.jsonl (first seen id
wins), deletes the merged batches, embeds every abstract and writes
embeddings.npy, metadata.jsonl, flat.index and manifest.json into index_dir.

With no pending batches the index is rebuilt from the existing snapshot.
Any unreadable batch aborts the run before anything is written.

With --qdrant (or qdrant.enabled) the collection is recreated and every row is
upserted with its vector after the local index is written.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("model", "", "embedding model")
	indexCmd.Flags().Int("limit", 0, "keep only the first N merged rows (0 keeps all)")
	indexCmd.Flags().Bool("qdrant", false, "publish the index to Qdrant")

	flagBindings["index"] = map[string]string{
		"embedding.model": "model",
		"qdrant.enabled":  "qdrant",
	}
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := corpus.NewDirStore(cfg.DataDir)
	if err != nil {
		return err
	}

	client, err := embedding.NewClient(embedding.ClientOptions{BaseURL: cfg.Embedding.BaseURL})
	if err != nil {
		return fmt.Errorf("Failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, embedding.Options{
		Model:      cfg.Embedding.Model,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
		Progress:   progressWriter(cmd),
	})

	opts := indexer.Options{IndexDir: cfg.IndexDir}
	if cfg.Qdrant.Enabled {
		fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.Qdrant.Host, cfg.Qdrant.Port)
		mirror, err := storage.NewQdrantStorage(storage.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			Collection: cfg.Qdrant.Collection,
		}, logger)
		if err != nil {
			return fmt.Errorf("Failed to connect to Qdrant: %w", err)
		}
		defer mirror.Close()
		opts.Publisher = mirror
	}

	builder := indexer.NewBuilder(store, embedder, opts, logger)
	result, err := builder.Build(ctx, limit)
	if errors.Is(err, corpus.ErrNoPending) {
		return fmt.Errorf("nothing to index: no processed batches and no snapshot in %s", cfg.DataDir)
	}
	if err != nil {
		return fmt.Errorf("Indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Index complete!")
	fmt.Printf("  Merged files: %d\n", len(result.Merge.Files))
	fmt.Printf("  Rows: %d (previous %d, duplicates %d, rejected %d, truncated %d)\n",
		result.Rows, result.Merge.Previous, result.Merge.Duplicates, result.Merge.Rejected, result.Merge.Truncated)
	fmt.Printf("  Model: %s (%d dimensions)\n", result.Model, result.Dimension)
	fmt.Printf("  Index: %s\n", cfg.IndexDir)
	if result.Published {
		fmt.Printf("  Qdrant collection: %s\n", cfg.Qdrant.Collection)
	}
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	return nil
}
