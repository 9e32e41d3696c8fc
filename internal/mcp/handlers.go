package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/arxiv-corpus/internal/record"
	"github.com/bull/arxiv-corpus/internal/retrieval"
)

// makeSearchHandler creates the search_papers tool handler.
// Search flow:
// 1. Embed the query with the index model
// 2. Take the nearest pool of rows and drop those under the similarity floor
// 3. Apply attribute filters
// 4. Return the best MaxResults papers with scores and the pool facets
func makeSearchHandler(index Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchPapersInput,
) (*mcp.CallToolResult, SearchPapersOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchPapersInput) (
		*mcp.CallToolResult, SearchPapersOutput, error,
	) {
		resp, err := index.Search(ctx, retrieval.Query{
			Text: input.Query,
			Filters: retrieval.Filters{
				Authors:      input.Authors,
				Categories:   input.Categories,
				Affiliations: input.Affiliations,
				Languages:    input.Languages,
				YearFrom:     input.YearFrom,
				YearTo:       input.YearTo,
			},
			MinSimilarity: input.MinSimilarity,
			MaxResults:    input.MaxResults,
		})
		if err != nil {
			if errors.Is(err, retrieval.ErrEmptyQuery) {
				return nil, SearchPapersOutput{}, fmt.Errorf("query must not be empty")
			}
			return nil, SearchPapersOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]PaperResult, 0, len(resp.Results))
		for _, r := range resp.Results {
			results = append(results, PaperResult{Paper: toPaper(r.MetadataRow), Score: r.Score})
		}

		out := SearchPapersOutput{
			Results: results,
			Pool:    resp.Pool,
			Facets: FacetsOutput{
				Authors:      resp.Facets.Authors,
				Categories:   resp.Facets.Categories,
				Affiliations: resp.Facets.Affiliations,
				Languages:    resp.Facets.Languages,
				MinYear:      resp.Facets.MinYear,
				MaxYear:      resp.Facets.MaxYear,
			},
		}
		switch {
		case resp.Pool == 0:
			out.Message = "No matching papers found. Try broader search terms or a lower min_similarity."
		case len(results) == 0:
			out.Message = "No papers matched the filters. See facets for values present in the candidates."
		}
		return nil, out, nil
	}
}

// makeGetHandler creates the get_paper tool handler.
func makeGetHandler(index Searcher) func(
	context.Context, *mcp.CallToolRequest, GetPaperInput,
) (*mcp.CallToolResult, GetPaperOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetPaperInput) (
		*mcp.CallToolResult, GetPaperOutput, error,
	) {
		row, err := index.Get(ctx, input.ArxivID)
		if err != nil {
			if errors.Is(err, retrieval.ErrNotFound) {
				return nil, GetPaperOutput{Found: false}, nil
			}
			return nil, GetPaperOutput{}, fmt.Errorf("failed to get paper: %w", err)
		}
		paper := toPaper(*row)
		return nil, GetPaperOutput{Found: true, Paper: &paper}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// Mirror failures are reported in the output rather than failing the tool.
func makeStatusHandler(index Searcher, mirror Mirror) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats := index.Stats()
		out := StatusOutput{
			Rows:      stats.Rows,
			Dimension: stats.Dimension,
			Model:     stats.Model,
			BuiltAt:   stats.BuiltAt,
			Languages: stats.Languages,
		}

		if mirror != nil {
			out.QdrantCollection = mirror.Collection()
			info, err := mirror.GetCollectionInfo(ctx)
			if err != nil {
				out.QdrantWarning = fmt.Sprintf("qdrant_error: %v", err)
			} else {
				points := info.PointsCount
				out.QdrantPoints = &points
				if int(points) != stats.Rows {
					out.QdrantWarning = fmt.Sprintf("Qdrant holds %d points but the local index has %d rows. Re-run the index build with publishing enabled.", points, stats.Rows)
				}
			}
		}
		return nil, out, nil
	}
}

func toPaper(r record.MetadataRow) Paper {
	return Paper{
		ArxivID:       r.ID,
		Title:         r.Title,
		Summary:       record.Deref(r.Summary),
		Abstract:      r.Abstract,
		Authors:       nonNil(r.Authors),
		Categories:    nonNil(r.Categories),
		Affiliations:  nonNil(r.Affiliations),
		Keywords:      nonNil(r.Keywords),
		Language:      r.Language,
		PublishedDate: r.PublishedDate,
		URLPDF:        record.Deref(r.URLPDF),
	}
}

// nonNil ensures slices marshal as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
