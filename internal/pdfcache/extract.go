package pdfcache

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractFirstPage returns the trimmed plain text of the first page of the
// PDF at path. A document with no pages yields "". Malformed documents make
// the parser panic on some inputs; that is reported as an error.
func ExtractFirstPage(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	if r.NumPage() == 0 {
		return "", nil
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return "", nil
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("read first page: %w", err)
	}
	return strings.TrimSpace(content), nil
}
