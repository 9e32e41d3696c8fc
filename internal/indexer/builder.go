// Package indexer folds enriched batches into the corpus snapshot and builds
// the vector index artifacts from it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/arxiv-corpus/internal/corpus"
	"github.com/bull/arxiv-corpus/internal/record"
	"github.com/bull/arxiv-corpus/internal/vectorindex"
)

// TextEmbedder produces one unit-length vector per text, in input order.
type TextEmbedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Publisher mirrors a finished build into an external vector store.
type Publisher interface {
	Publish(ctx context.Context, rows []record.MetadataRow, vectors [][]float32) error
}

// Options configures a Builder.
type Options struct {
	// IndexDir receives the index artifacts.
	IndexDir string
	// Publisher is optional. When set, every build is mirrored after the
	// local artifacts are written.
	Publisher Publisher
}

// MergeResult reports one merge.
type MergeResult struct {
	Files      []string
	Previous   int // rows already in the snapshot
	Read       int // rows read from pending batches
	Rejected   int
	Duplicates int
	Truncated  int
	Rows       int
}

// BuildResult reports one index build.
type BuildResult struct {
	Merge     *MergeResult
	Model     string
	Rows      int
	Dimension int
	Published bool
	Duration  time.Duration
}

// Builder runs the merge and index steps. Every error is fatal for the run.
type Builder struct {
	store    corpus.Store
	embedder TextEmbedder
	opts     Options
	logger   *slog.Logger

	now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(store corpus.Store, embedder TextEmbedder, opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:    store,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Merge folds every pending processed batch into the snapshot.
//
// Merge input is the existing snapshot followed by pending batches in name
// order; the first row seen for an id wins. A positive limit keeps only that
// many leading rows. The snapshot is written before any batch is removed, so
// an interrupted run can be repeated without duplicating rows.
//
// With no pending batches the existing snapshot is returned unchanged. With
// neither, Merge returns corpus.ErrNoPending.
func (b *Builder) Merge(ctx context.Context, limit int) ([]record.CorpusRow, *MergeResult, error) {
	result := &MergeResult{}

	names, err := b.store.ListPending(corpus.StageProcessed)
	if err != nil {
		return nil, nil, fmt.Errorf("list processed batches: %w", err)
	}
	result.Files = names

	previous, err := b.store.ReadSnapshot()
	if err != nil && !errors.Is(err, corpus.ErrNotFound) {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	result.Previous = len(previous)

	if len(names) == 0 {
		if len(previous) == 0 {
			return nil, nil, corpus.ErrNoPending
		}
		b.logger.Info("No processed batches to merge, using snapshot", "rows", len(previous))
		rows := truncate(previous, limit, result)
		if result.Truncated > 0 {
			if err := b.store.WriteSnapshot(rows); err != nil {
				return nil, nil, fmt.Errorf("write snapshot: %w", err)
			}
		}
		result.Rows = len(rows)
		return rows, result, nil
	}

	b.logger.Info("Merging processed batches", "files", len(names), "snapshot_rows", len(previous))

	merged := append([]record.CorpusRow(nil), previous...)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		docs, err := corpus.ReadRecords[record.EnrichedDocument](b.store, corpus.StageProcessed, name)
		if err != nil {
			return nil, nil, fmt.Errorf("merge %s: %w", name, err)
		}
		result.Read += len(docs)
		for i, doc := range docs {
			if err := doc.Validate(); err != nil {
				b.logger.Warn("Rejecting enriched record", "file", name, "line", i+1, "error", err)
				result.Rejected++
				continue
			}
			doc.Normalize()
			merged = append(merged, record.CorpusRow{EnrichedDocument: doc})
		}
		b.logger.Debug("Read processed batch", "file", name, "records", len(docs))
	}

	deduped := record.DedupByID(merged)
	result.Duplicates = len(merged) - len(deduped)
	rows := truncate(deduped, limit, result)
	result.Rows = len(rows)

	if err := b.store.WriteSnapshot(rows); err != nil {
		return nil, nil, fmt.Errorf("write snapshot: %w", err)
	}
	for _, name := range names {
		if err := b.store.Remove(corpus.StageProcessed, name); err != nil {
			return nil, nil, fmt.Errorf("remove merged batch %s: %w", name, err)
		}
	}

	b.logger.Info("Merge complete",
		"rows", result.Rows,
		"duplicates", result.Duplicates,
		"rejected", result.Rejected,
		"truncated", result.Truncated,
	)
	return rows, result, nil
}

func truncate(rows []record.CorpusRow, limit int, result *MergeResult) []record.CorpusRow {
	if limit > 0 && len(rows) > limit {
		result.Truncated = len(rows) - limit
		return rows[:limit]
	}
	return rows
}

// Build merges pending batches, embeds every abstract and writes the index
// artifacts in ordinal order. Nothing is written to the index directory
// unless every step before it succeeded.
func (b *Builder) Build(ctx context.Context, limit int) (*BuildResult, error) {
	start := b.now()

	rows, merge, err := b.Merge(ctx, limit)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(rows))
	meta := make([]record.MetadataRow, len(rows))
	for i, row := range rows {
		texts[i] = row.Abstract
		meta[i] = row.Metadata()
	}

	b.logger.Info("Embedding abstracts", "rows", len(rows), "model", b.embedder.Model())
	vectors, err := b.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed abstracts: %w", err)
	}
	if len(vectors) != len(rows) {
		return nil, fmt.Errorf("%w: %d embeddings for %d rows", vectorindex.ErrMisaligned, len(vectors), len(rows))
	}

	manifest := vectorindex.Manifest{Model: b.embedder.Model(), BuiltAt: b.now().UTC()}
	if err := vectorindex.WriteArtifacts(b.opts.IndexDir, manifest, vectors, meta); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	result := &BuildResult{
		Merge:     merge,
		Model:     manifest.Model,
		Rows:      len(rows),
		Dimension: len(vectors[0]),
	}

	if b.opts.Publisher != nil {
		if err := b.opts.Publisher.Publish(ctx, meta, vectors); err != nil {
			return nil, fmt.Errorf("publish index: %w", err)
		}
		result.Published = true
	}

	result.Duration = b.now().Sub(start)
	b.logger.Info("Index build complete",
		"rows", result.Rows,
		"dimension", result.Dimension,
		"model", result.Model,
		"published", result.Published,
		"duration", result.Duration,
	)
	return result, nil
}
