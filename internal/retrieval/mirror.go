package retrieval

import (
	"context"

	"github.com/bull/arxiv-corpus/internal/storage"
)

// Backends select where Search draws its candidate pool from.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// Mirror is the Qdrant copy of the index, as published by the index build.
type Mirror interface {
	Search(ctx context.Context, embedding []float32, limit int, filter storage.Filter) ([]storage.ScoredPaper, error)
	GetPaper(ctx context.Context, arxivID string) (*storage.Paper, error)
}

// mirrorFilter pushes the filters Qdrant indexes as keywords down into the
// query. Authors, affiliations and years are still matched locally.
func mirrorFilter(f Filters) storage.Filter {
	return storage.Filter{
		Categories: f.Categories,
		Languages:  f.Languages,
	}
}
