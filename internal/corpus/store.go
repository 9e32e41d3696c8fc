// Package corpus owns the staging areas shared by the pipeline stages.
//
// Stages never touch directories directly. The harvester writes raw batches,
// the enricher reads raw batches, writes processed batches and archives the
// raw input, and the index builder folds processed batches into the snapshot.
package corpus

import (
	"fmt"
	"io"

	"github.com/bull/arxiv-corpus/internal/record"
)

// Stage names a staging area.
type Stage string

const (
	StageRaw       Stage = "raw"
	StageProcessed Stage = "processed"
	StageArchive   Stage = "archive"
)

// SnapshotName is the file name of the merged corpus snapshot. It is stored
// outside every staging area so it is never listed as pending input.
const SnapshotName = "merged.jsonl"

// BatchExt is the extension of every staging file.
const BatchExt = ".jsonl"

// Store is the corpus-store abstraction injected into each stage.
type Store interface {
	// ListPending returns batch file names in stage, sorted ascending.
	ListPending(stage Stage) ([]string, error)
	// Open opens a batch for reading. Missing batches yield ErrNotFound.
	Open(stage Stage, name string) (io.ReadCloser, error)
	// Put writes a batch atomically: readers see either the previous content
	// or the complete new content.
	Put(stage Stage, name string, write func(io.Writer) error) error
	// Archive moves a raw batch into the archive area.
	Archive(name string) error
	// Remove deletes a batch. Removing a missing batch is not an error.
	Remove(stage Stage, name string) error
	// WriteSnapshot replaces the merged corpus snapshot atomically.
	WriteSnapshot(rows []record.CorpusRow) error
	// ReadSnapshot returns the current snapshot, or ErrNotFound if none exists.
	ReadSnapshot() ([]record.CorpusRow, error)
}

// WriteRecords encodes rows as JSONL into stage/name.
func WriteRecords[T any](s Store, stage Stage, name string, rows []T) error {
	return s.Put(stage, name, func(w io.Writer) error {
		return record.WriteJSONL(w, rows)
	})
}

// ReadRecords decodes every record of stage/name.
func ReadRecords[T any](s Store, stage Stage, name string) ([]T, error) {
	rc, err := s.Open(stage, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := record.ReadJSONL[T](rc)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", stage, name, err)
	}
	return rows, nil
}
