package arxiv

import (
	"strings"

	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/atom"

	"github.com/bull/arxiv-corpus/internal/record"
)

const (
	arxivPrefix      = "arxiv"
	opensearchPrefix = "opensearch"
	pdfMediaType     = "application/pdf"
)

// EntryToRaw converts one Atom entry into a RawDocument. Missing optional
// fields become nil. An entry without a resolvable id yields an empty ID and
// is dropped by the caller.
func EntryToRaw(e *atom.Entry, crawlDate string) record.RawDocument {
	doc := record.RawDocument{
		Version:    record.Version,
		ID:         NormalizeID(e.ID),
		Title:      collapseSpace(e.Title),
		Abstract:   strings.TrimSpace(e.Summary),
		Authors:    []string{},
		Categories: []string{},
		Published:  e.Published,
		Updated:    e.Updated,
		URLAbs:     strings.TrimSpace(e.ID),
		CrawlDate:  crawlDate,
	}

	for _, a := range e.Authors {
		if a == nil {
			continue
		}
		if name := strings.TrimSpace(a.Name); name != "" {
			doc.Authors = append(doc.Authors, name)
		}
	}

	for _, c := range e.Categories {
		if c == nil {
			continue
		}
		if term := strings.TrimSpace(c.Term); term != "" {
			doc.Categories = append(doc.Categories, term)
		}
	}

	for _, l := range e.Links {
		if l != nil && l.Type == pdfMediaType && l.Href != "" {
			href := l.Href
			doc.URLPDF = &href
			break
		}
	}

	doc.PrimaryCategory = extensionAttr(e.Extensions, arxivPrefix, "primary_category", "term")
	doc.Comment = record.StringPtr(extensionValue(e.Extensions, arxivPrefix, "comment"))
	doc.JournalRef = record.StringPtr(extensionValue(e.Extensions, arxivPrefix, "journal_ref"))
	doc.DOI = record.StringPtr(extensionValue(e.Extensions, arxivPrefix, "doi"))

	return doc
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	if exts == nil {
		return ""
	}
	vals := exts[prefix][name]
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0].Value)
}

func extensionAttr(exts ext.Extensions, prefix, name, attr string) string {
	if exts == nil {
		return ""
	}
	vals := exts[prefix][name]
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Attrs[attr]
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
