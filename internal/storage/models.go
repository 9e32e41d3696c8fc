package storage

import "github.com/bull/arxiv-corpus/internal/record"

// Paper is one point in the papers collection: the metadata row plus the
// ordinal of its vector in the local index.
type Paper struct {
	record.MetadataRow
	Ordinal int
}

// ScoredPaper is a Paper returned from vector search.
type ScoredPaper struct {
	Paper
	Score float64
}

// Filter narrows a search to points whose payload matches. Empty fields are
// ignored; values within one field are alternatives.
type Filter struct {
	Categories []string
	Languages  []string
}

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "papers"

// upsertBatchSize is the number of points sent per upsert request.
const upsertBatchSize = 100

// CollectionInfo contains collection statistics.
type CollectionInfo struct {
	PointsCount uint64
}
