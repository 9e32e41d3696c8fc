package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/vectorindex"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending batches, snapshot size and index manifest",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := corpus.NewDirStore(cfg.DataDir)
	if err != nil {
		return err
	}

	fmt.Printf("Data directory: %s\n", cfg.DataDir)
	for _, stage := range []corpus.Stage{corpus.StageRaw, corpus.StageProcessed, corpus.StageArchive} {
		names, err := store.ListPending(stage)
		if err != nil {
			return err
		}
		fmt.Printf("  %-10s %d batches\n", stage+":", len(names))
	}

	rows, err := store.ReadSnapshot()
	switch {
	case errors.Is(err, corpus.ErrNotFound):
		fmt.Println("  snapshot:  none")
	case err != nil:
		return fmt.Errorf("read snapshot: %w", err)
	default:
		fmt.Printf("  snapshot:  %d rows\n", len(rows))
	}

	fmt.Println()
	fmt.Printf("Index directory: %s\n", cfg.IndexDir)
	m, err := vectorindex.ReadManifest(cfg.IndexDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Println("  no index built yet")
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("  rows:      %d\n", m.Rows)
	fmt.Printf("  model:     %s (%d dimensions, %s)\n", m.Model, m.Dimension, m.Metric)
	fmt.Printf("  built:     %s (%s ago)\n", m.BuiltAt.Format(time.RFC3339), time.Since(m.BuiltAt).Round(time.Minute))
	return nil
}
