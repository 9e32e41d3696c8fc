package storage

import (
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/arxiv-corpus/internal/record"
)

// paperNamespace scopes point ids so the same arXiv id always maps to the
// same point.
var paperNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://arxiv.org/abs/"))

// PointID returns the deterministic point id for an arXiv id.
func PointID(arxivID string) string {
	return uuid.NewSHA1(paperNamespace, []byte(arxivID)).String()
}

// keywordFields are indexed for payload filtering.
var keywordFields = []string{
	"arxiv_id",
	"categories",
	"authors",
	"affiliations",
	"language",
}

func toPayload(p Paper) map[string]any {
	return map[string]any{
		"arxiv_id":       p.ID,
		"title":          p.Title,
		"abstract":       p.Abstract,
		"summary":        record.Deref(p.Summary),
		"authors":        anyList(p.Authors),
		"categories":     anyList(p.Categories),
		"affiliations":   anyList(p.Affiliations),
		"keywords":       anyList(p.Keywords),
		"language":       p.Language,
		"published_date": p.PublishedDate,
		"url_pdf":        record.Deref(p.URLPDF),
		"ordinal":        int64(p.Ordinal),
	}
}

// fromPayload is the inverse of toPayload. Empty optional strings decode to nil.
func fromPayload(payload map[string]*qdrant.Value) Paper {
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	list := func(key string) []string {
		out := []string{}
		if v, ok := payload[key]; ok && v.GetListValue() != nil {
			for _, item := range v.GetListValue().Values {
				out = append(out, item.GetStringValue())
			}
		}
		return out
	}

	var ordinal int
	if v, ok := payload["ordinal"]; ok {
		ordinal = int(v.GetIntegerValue())
	}

	return Paper{
		MetadataRow: record.MetadataRow{
			ID:            str("arxiv_id"),
			Title:         str("title"),
			Abstract:      str("abstract"),
			Summary:       record.StringPtr(str("summary")),
			Authors:       list("authors"),
			Categories:    list("categories"),
			Affiliations:  list("affiliations"),
			Keywords:      list("keywords"),
			Language:      str("language"),
			PublishedDate: str("published_date"),
			URLPDF:        record.StringPtr(str("url_pdf")),
		},
		Ordinal: ordinal,
	}
}

func anyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if len(f.Categories) > 0 {
		must = append(must, qdrant.NewMatchKeywords("categories", f.Categories...))
	}
	if len(f.Languages) > 0 {
		must = append(must, qdrant.NewMatchKeywords("language", f.Languages...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
