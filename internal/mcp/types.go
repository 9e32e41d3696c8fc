// Package mcp exposes the paper index over the Model Context Protocol.
package mcp

import "time"

// SearchPapersInput defines the input parameters for the search_papers tool.
type SearchPapersInput struct {
	// Query is the free-text search query.
	Query string `json:"query" jsonschema:"required,description=Free-text query describing the papers to find"`
	// MaxResults is the maximum number of papers to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=100,default=20,description=Maximum number of papers to return"`
	// MinSimilarity is the cosine similarity floor.
	MinSimilarity float64 `json:"min_similarity,omitempty" jsonschema:"minimum=-1,maximum=1,default=0.4,description=Minimum cosine similarity (0 uses the server default)"`
	Authors       []string `json:"authors,omitempty" jsonschema:"description=Keep papers by any of these authors (exact names)"`
	Categories    []string `json:"categories,omitempty" jsonschema:"description=Keep papers in any of these arXiv categories (e.g. cs.AI)"`
	Affiliations  []string `json:"affiliations,omitempty" jsonschema:"description=Keep papers with any of these affiliations"`
	Languages     []string `json:"languages,omitempty" jsonschema:"description=Keep papers whose abstract is in one of these ISO 639-1 languages"`
	YearFrom      int      `json:"year_from,omitempty" jsonschema:"description=Earliest publication year (inclusive)"`
	YearTo        int      `json:"year_to,omitempty" jsonschema:"description=Latest publication year (inclusive)"`
}

// SearchPapersOutput contains the search results.
type SearchPapersOutput struct {
	// Results is the list of matching papers, best first.
	Results []PaperResult `json:"results"`
	// Pool is the number of candidates above the similarity floor before filters.
	Pool int `json:"pool"`
	// Facets lists filter values present in the candidate pool.
	Facets FacetsOutput `json:"facets"`
	// Message provides informational context (e.g., "No matching papers found").
	Message string `json:"message,omitempty"`
}

// FacetsOutput lists the distinct filter values of a candidate pool.
type FacetsOutput struct {
	Authors      []string `json:"authors"`
	Categories   []string `json:"categories"`
	Affiliations []string `json:"affiliations"`
	Languages    []string `json:"languages"`
	MinYear      int      `json:"min_year,omitempty"`
	MaxYear      int      `json:"max_year,omitempty"`
}

// PaperResult is one paper with its similarity score.
type PaperResult struct {
	Paper
	// Score is the cosine similarity to the query.
	Score float64 `json:"score"`
}

// Paper is the metadata exposed for one indexed paper.
type Paper struct {
	ArxivID       string   `json:"arxiv_id"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary,omitempty"`
	Abstract      string   `json:"abstract"`
	Authors       []string `json:"authors"`
	Categories    []string `json:"categories"`
	Affiliations  []string `json:"affiliations"`
	Keywords      []string `json:"keywords"`
	Language      string   `json:"language"`
	PublishedDate string   `json:"published_date"`
	URLPDF        string   `json:"url_pdf,omitempty"`
}

// GetPaperInput defines the input parameters for the get_paper tool.
type GetPaperInput struct {
	ArxivID string `json:"arxiv_id" jsonschema:"required,description=The arXiv identifier (e.g. 2401.00001). A version suffix is ignored."`
}

// GetPaperOutput contains the requested paper.
type GetPaperOutput struct {
	// Found indicates whether the paper is in the index.
	Found bool   `json:"found"`
	Paper *Paper `json:"paper,omitempty"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the loaded index and its optional Qdrant mirror.
type StatusOutput struct {
	Rows      int            `json:"rows"`
	Dimension int            `json:"dimension"`
	Model     string         `json:"model"`
	BuiltAt   time.Time      `json:"built_at"`
	Languages map[string]int `json:"languages"`
	// QdrantCollection and QdrantPoints are set when a mirror is configured.
	QdrantCollection string  `json:"qdrant_collection,omitempty"`
	QdrantPoints     *uint64 `json:"qdrant_points,omitempty"`
	// QdrantWarning explains why the mirror could not be read, or that it
	// disagrees with the local index.
	QdrantWarning string `json:"qdrant_warning,omitempty"`
}
