// Package record defines the typed records that flow between pipeline stages.
//
// Every stage boundary has its own type: the harvester emits RawDocument, the
// enricher emits EnrichedDocument, and the index builder merges those into
// CorpusRow values and projects them onto MetadataRow for the retrieval side.
package record

import (
	"fmt"
	"strings"
)

// Version is the schema version written into every record produced by this
// build. Records without a version field are treated as version 1.
const Version = 1

// UnknownLanguage is stored when language detection fails or the abstract is empty.
const UnknownLanguage = "unknown"

// RawDocument is one harvested feed entry in canonical form.
type RawDocument struct {
	Version         int      `json:"record_version,omitempty"`
	ID              string   `json:"arxiv_id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	Authors         []string `json:"authors"`
	PrimaryCategory string   `json:"primary_category"`
	Categories      []string `json:"categories"`
	Published       string   `json:"published"`
	Updated         string   `json:"updated"`
	URLAbs          string   `json:"url_abs"`
	URLPDF          *string  `json:"url_pdf"`
	Comment         *string  `json:"comment"`
	JournalRef      *string  `json:"journal_ref"`
	DOI             *string  `json:"doi"`
	CrawlDate       string   `json:"crawl_date"`
}

// Key returns the dedup key.
func (d RawDocument) Key() string { return d.ID }

// Validate checks the fields every downstream stage relies on.
func (d RawDocument) Validate() error {
	if err := checkVersion(d.Version); err != nil {
		return err
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: raw document without arxiv_id", ErrInvalidRecord)
	}
	return nil
}

// EnrichedDocument is a RawDocument plus derived fields. Every derived field
// has an empty default so a failed sub-step never leaves the record unusable.
type EnrichedDocument struct {
	Version         int      `json:"record_version,omitempty"`
	ID              string   `json:"arxiv_id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	Authors         []string `json:"authors"`
	Categories      []string `json:"categories"`
	PrimaryCategory string   `json:"primary_category"`
	PublishedDate   string   `json:"published_date"`
	Updated         string   `json:"updated,omitempty"`
	URLAbs          string   `json:"url_abs,omitempty"`
	URLPDF          *string  `json:"url_pdf"`
	Comment         *string  `json:"comment,omitempty"`
	JournalRef      *string  `json:"journal_ref,omitempty"`
	DOI             *string  `json:"doi,omitempty"`
	CrawlDate       string   `json:"crawl_date"`
	Language        string   `json:"language"`
	PDFRaw          string   `json:"pdf_raw"`
	Summary         *string  `json:"summary"`
	Affiliations    []string `json:"affiliations"`
	Keywords        []string `json:"keywords"`
	// Locations is reserved and currently always empty.
	Locations []string `json:"locations"`
}

// Key returns the dedup key.
func (d EnrichedDocument) Key() string { return d.ID }

// Validate checks that the record can be merged into the corpus.
func (d EnrichedDocument) Validate() error {
	if err := checkVersion(d.Version); err != nil {
		return err
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: enriched document without arxiv_id", ErrInvalidRecord)
	}
	if d.Language == "" {
		return fmt.Errorf("%w: enriched document %s without language", ErrInvalidRecord, d.ID)
	}
	return nil
}

// NewEnriched copies the core fields of raw into an EnrichedDocument with
// every derived field at its default.
func NewEnriched(raw RawDocument) EnrichedDocument {
	return EnrichedDocument{
		Version:         Version,
		ID:              raw.ID,
		Title:           strings.TrimSpace(raw.Title),
		Abstract:        strings.TrimSpace(raw.Abstract),
		Authors:         nonNil(raw.Authors),
		Categories:      nonNil(raw.Categories),
		PrimaryCategory: raw.PrimaryCategory,
		PublishedDate:   raw.Published,
		Updated:         raw.Updated,
		URLAbs:          raw.URLAbs,
		URLPDF:          raw.URLPDF,
		Comment:         raw.Comment,
		JournalRef:      raw.JournalRef,
		DOI:             raw.DOI,
		CrawlDate:       raw.CrawlDate,
		Language:        UnknownLanguage,
		Affiliations:    []string{},
		Keywords:        []string{},
		Locations:       []string{},
	}
}

// Normalize replaces nil slices with empty ones so they encode as [] rather than null.
func (d *EnrichedDocument) Normalize() {
	d.Authors = nonNil(d.Authors)
	d.Categories = nonNil(d.Categories)
	d.Affiliations = nonNil(d.Affiliations)
	d.Keywords = nonNil(d.Keywords)
	d.Locations = nonNil(d.Locations)
	if d.Language == "" {
		d.Language = UnknownLanguage
	}
}

// CorpusRow is one row of the merged, deduplicated corpus snapshot.
type CorpusRow struct {
	EnrichedDocument
}

// MetadataRow is the whitelist of display and filter fields persisted next to
// the vector index. Row i always describes vector i.
type MetadataRow struct {
	ID            string   `json:"arxiv_id" msgpack:"arxiv_id"`
	Title         string   `json:"title" msgpack:"title"`
	Abstract      string   `json:"abstract" msgpack:"abstract"`
	Summary       *string  `json:"summary" msgpack:"summary"`
	Authors       []string `json:"authors" msgpack:"authors"`
	Categories    []string `json:"categories" msgpack:"categories"`
	Affiliations  []string `json:"affiliations" msgpack:"affiliations"`
	Keywords      []string `json:"keywords" msgpack:"keywords"`
	Language      string   `json:"language" msgpack:"language"`
	PublishedDate string   `json:"published_date" msgpack:"published_date"`
	URLPDF        *string  `json:"url_pdf" msgpack:"url_pdf"`
}

// Key returns the dedup key.
func (r MetadataRow) Key() string { return r.ID }

// Metadata projects the row onto the retrieval whitelist.
func (r CorpusRow) Metadata() MetadataRow {
	return MetadataRow{
		ID:            r.ID,
		Title:         r.Title,
		Abstract:      r.Abstract,
		Summary:       r.Summary,
		Authors:       nonNil(r.Authors),
		Categories:    nonNil(r.Categories),
		Affiliations:  nonNil(r.Affiliations),
		Keywords:      nonNil(r.Keywords),
		Language:      r.Language,
		PublishedDate: r.PublishedDate,
		URLPDF:        r.URLPDF,
	}
}

// StringPtr returns a pointer to s, or nil when s is empty after trimming.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func checkVersion(v int) error {
	if v > Version {
		return fmt.Errorf("%w: record_version %d is newer than supported version %d", ErrInvalidRecord, v, Version)
	}
	return nil
}
