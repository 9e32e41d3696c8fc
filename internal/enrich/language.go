package enrich

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/bull/arxiv-corpus/internal/record"
)

// DetectLanguage returns the ISO 639-1 code of text (ISO 639-3 when the
// language has no two-letter code), or record.UnknownLanguage when text is
// empty or its language cannot be determined.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return record.UnknownLanguage
	}
	info := whatlanggo.Detect(text)
	if info.Script == nil || info.Confidence <= 0 {
		return record.UnknownLanguage
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	if code := info.Lang.Iso6393(); code != "" {
		return code
	}
	return record.UnknownLanguage
}
