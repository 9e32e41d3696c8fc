package retrieval

import (
	"sort"
	"time"

	"github.com/bull/arxiv-corpus/internal/record"
)

// Filters narrow a candidate pool. Empty fields match everything. Within a
// list field a row matches when it carries any of the selected values.
type Filters struct {
	Authors      []string `json:"authors,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Affiliations []string `json:"affiliations,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	// YearFrom and YearTo bound the publication year inclusively; zero
	// leaves that side open. Rows without a parseable date always pass.
	YearFrom int `json:"year_from,omitempty"`
	YearTo   int `json:"year_to,omitempty"`
}

// Match reports whether row passes every filter.
func (f Filters) Match(row record.MetadataRow) bool {
	if year, ok := PublicationYear(row.PublishedDate); ok {
		if f.YearFrom != 0 && year < f.YearFrom {
			return false
		}
		if f.YearTo != 0 && year > f.YearTo {
			return false
		}
	}
	if len(f.Languages) > 0 && !containsAny([]string{row.Language}, f.Languages) {
		return false
	}
	if !containsAny(row.Authors, f.Authors) {
		return false
	}
	if !containsAny(row.Categories, f.Categories) {
		return false
	}
	if !containsAny(row.Affiliations, f.Affiliations) {
		return false
	}
	return true
}

func containsAny(values, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, v := range values {
		for _, s := range selected {
			if v == s {
				return true
			}
		}
	}
	return false
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "20060102"}

// PublicationYear parses the year of an arXiv published date.
func PublicationYear(date string) (int, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}

// Facets lists the distinct filter values present in a candidate pool, so a
// caller can offer them as choices.
type Facets struct {
	Authors      []string `json:"authors"`
	Categories   []string `json:"categories"`
	Affiliations []string `json:"affiliations"`
	Languages    []string `json:"languages"`
	MinYear      int      `json:"min_year,omitempty"`
	MaxYear      int      `json:"max_year,omitempty"`
}

func collectFacets(rows []record.MetadataRow) Facets {
	authors := map[string]struct{}{}
	categories := map[string]struct{}{}
	affiliations := map[string]struct{}{}
	languages := map[string]struct{}{}

	var f Facets
	for _, r := range rows {
		addAll(authors, r.Authors)
		addAll(categories, r.Categories)
		addAll(affiliations, r.Affiliations)
		if r.Language != "" {
			languages[r.Language] = struct{}{}
		}
		if year, ok := PublicationYear(r.PublishedDate); ok {
			if f.MinYear == 0 || year < f.MinYear {
				f.MinYear = year
			}
			if year > f.MaxYear {
				f.MaxYear = year
			}
		}
	}
	f.Authors = sortedKeys(authors)
	f.Categories = sortedKeys(categories)
	f.Affiliations = sortedKeys(affiliations)
	f.Languages = sortedKeys(languages)
	return f
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
