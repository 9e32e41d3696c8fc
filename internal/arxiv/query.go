package arxiv

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// BuildQuery combines categories and a free-text query into a search_query
// expression: "(cat:A OR cat:B) AND q", the category clause alone, the query
// alone, or "all" when both are empty.
func BuildQuery(categories []string, query string) string {
	var cats []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, "cat:"+c)
		}
	}
	query = strings.TrimSpace(query)

	clause := ""
	if len(cats) > 0 {
		clause = "(" + strings.Join(cats, " OR ") + ")"
	}
	switch {
	case clause != "" && query != "":
		return clause + " AND " + query
	case query != "":
		return query
	case clause != "":
		return clause
	default:
		return "all"
	}
}

// CategorySlug renders categories for a batch file name: dots become
// underscores and categories are joined by "-". No categories yields "all".
func CategorySlug(categories []string) string {
	var parts []string
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, strings.ReplaceAll(c, ".", "_"))
		}
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "-")
}

// BatchName returns "<YYYYMMDD_HHMMSS>_<slug>.jsonl" for a run started at t.
func BatchName(t time.Time, categories []string) string {
	return fmt.Sprintf("%s_%s.jsonl", t.Format("20060102_150405"), CategorySlug(categories))
}

// CrawlDate is the YYYYMMDD date stamped on every record of a run.
func CrawlDate(t time.Time) string {
	return t.Format("20060102")
}

var versionSuffix = regexp.MustCompile(`v\d+$`)

// NormalizeID extracts the versionless arXiv id from an entry id URL
// ("http://arxiv.org/abs/2401.00001v2" becomes "2401.00001"). Old-style ids
// keep their archive prefix ("hep-th/9901001"). Returns "" if the URL carries
// no /abs/ segment and is not itself a bare id.
func NormalizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	id := raw
	if idx := strings.Index(raw, "/abs/"); idx >= 0 {
		id = raw[idx+len("/abs/"):]
	} else if strings.Contains(raw, "://") {
		return ""
	}
	id = strings.Trim(id, "/")
	return versionSuffix.ReplaceAllString(id, "")
}
