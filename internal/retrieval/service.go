// Package retrieval answers free-text queries against a built paper index.
//
// A query is embedded with the same model as the index, the PoolK nearest
// rows are fetched, rows under the similarity floor are dropped, filters are
// applied and the rest are ranked by score.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bull/arxiv-corpus/internal/record"
	"github.com/bull/arxiv-corpus/internal/storage"
	"github.com/bull/arxiv-corpus/internal/vectorindex"
)

const (
	DefaultPoolK         = 200
	DefaultMinSimilarity = 0.40
	DefaultMaxResults    = 20
)

// QueryEmbedder embeds query text with the model the index was built with.
type QueryEmbedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Options holds the service defaults. Zero values take the package defaults.
type Options struct {
	PoolK         int
	MinSimilarity float64
	MaxResults    int

	// Mirror, when set, answers Get for ids missing from the local index.
	Mirror Mirror
	// Backend is BackendLocal (the default) or BackendQdrant. With
	// BackendQdrant the candidate pool comes from Mirror, pre-filtered on
	// categories and languages, so facets describe that filtered pool.
	Backend string
}

// Query is one search request. Zero numeric fields use the service defaults.
type Query struct {
	Text          string
	Filters       Filters
	PoolK         int
	MinSimilarity float64
	MaxResults    int
}

// Result is one ranked row.
type Result struct {
	record.MetadataRow
	Score float64 `json:"score"`
}

// Response carries the ranked results and the facets of the candidate pool
// before filtering.
type Response struct {
	Results []Result
	// Pool is the number of candidates above the similarity floor before
	// filtering.
	Pool   int
	Facets Facets
}

// Stats describes the loaded index.
type Stats struct {
	Rows      int
	Dimension int
	Model     string
	BuiltAt   time.Time
	Languages map[string]int
}

// Service serves queries from loaded index artifacts. It is safe for
// concurrent use.
type Service struct {
	artifacts *vectorindex.Artifacts
	byID      map[string]int
	embedder  QueryEmbedder
	opts      Options
	logger    *slog.Logger
}

// Load reads and verifies the artifacts in dir.
func Load(dir string, embedder QueryEmbedder, opts Options, logger *slog.Logger) (*Service, error) {
	a, err := vectorindex.LoadArtifacts(dir)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", dir, err)
	}
	return New(a, embedder, opts, logger), nil
}

// New creates a Service over already-loaded artifacts.
func New(a *vectorindex.Artifacts, embedder QueryEmbedder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PoolK <= 0 {
		opts.PoolK = DefaultPoolK
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = DefaultMinSimilarity
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Backend == "" || opts.Mirror == nil {
		opts.Backend = BackendLocal
	}

	byID := make(map[string]int, len(a.Metadata))
	for i, row := range a.Metadata {
		if _, dup := byID[row.ID]; !dup {
			byID[row.ID] = i
		}
	}

	logger.Info("Loaded paper index", "rows", len(a.Metadata), "model", a.Manifest.Model, "dimension", a.Manifest.Dimension, "backend", opts.Backend)
	return &Service{
		artifacts: a,
		byID:      byID,
		embedder:  embedder,
		opts:      opts,
		logger:    logger,
	}
}

// Search runs q against the index.
func (s *Service) Search(ctx context.Context, q Query) (*Response, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	poolK := q.PoolK
	if poolK <= 0 {
		poolK = s.opts.PoolK
	}
	floor := q.MinSimilarity
	if floor == 0 {
		floor = s.opts.MinSimilarity
	}
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = s.opts.MaxResults
	}

	vectors, err := s.embedder.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	candidates, err := s.candidates(ctx, vectors[0], poolK, q.Filters)
	if err != nil {
		return nil, err
	}

	pool := make([]Result, 0, len(candidates))
	poolRows := make([]record.MetadataRow, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < floor {
			continue
		}
		pool = append(pool, c)
		poolRows = append(poolRows, c.MetadataRow)
	}

	results := make([]Result, 0, min(len(pool), maxResults))
	for _, r := range pool {
		if q.Filters.Match(r.MetadataRow) {
			results = append(results, r)
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	s.logger.Debug("Search complete", "query", text, "pool", len(pool), "results", len(results))
	return &Response{
		Results: results,
		Pool:    len(pool),
		Facets:  collectFacets(poolRows),
	}, nil
}

// candidates returns the k nearest rows to vector, best first.
func (s *Service) candidates(ctx context.Context, vector []float32, k int, f Filters) ([]Result, error) {
	if s.opts.Backend == BackendQdrant {
		papers, err := s.opts.Mirror.Search(ctx, vector, k, mirrorFilter(f))
		if err != nil {
			return nil, fmt.Errorf("search mirror: %w", err)
		}
		out := make([]Result, len(papers))
		for i, p := range papers {
			out[i] = Result{MetadataRow: p.MetadataRow, Score: p.Score}
		}
		return out, nil
	}

	hits, err := s.artifacts.Index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{MetadataRow: s.artifacts.Row(h), Score: float64(h.Score)}
	}
	return out, nil
}

// Get returns the metadata row for an arXiv id. Version suffixes are ignored.
// Ids missing locally are looked up in the mirror when one is configured.
func (s *Service) Get(ctx context.Context, id string) (*record.MetadataRow, error) {
	id = strings.TrimSpace(id)
	i, ok := s.byID[id]
	if !ok {
		i, ok = s.byID[stripVersion(id)]
	}
	if ok {
		row := s.artifacts.Metadata[i]
		return &row, nil
	}
	if s.opts.Mirror == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	paper, err := s.opts.Mirror.GetPaper(ctx, stripVersion(id))
	if errors.Is(err, storage.ErrPaperNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get from mirror: %w", err)
	}
	s.logger.Debug("Paper served from mirror", "arxiv_id", paper.ID)
	row := paper.MetadataRow
	return &row, nil
}

func stripVersion(id string) string {
	i := strings.LastIndexByte(id, 'v')
	if i <= 0 || i == len(id)-1 {
		return id
	}
	for _, c := range id[i+1:] {
		if c < '0' || c > '9' {
			return id
		}
	}
	return id[:i]
}

// Stats reports on the loaded index.
func (s *Service) Stats() Stats {
	langs := map[string]int{}
	for _, r := range s.artifacts.Metadata {
		langs[r.Language]++
	}
	m := s.artifacts.Manifest
	return Stats{
		Rows:      len(s.artifacts.Metadata),
		Dimension: m.Dimension,
		Model:     m.Model,
		BuiltAt:   m.BuiltAt,
		Languages: langs,
	}
}
