package record

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONL_NoTrailingNewline(t *testing.T) {
	rows := []RawDocument{
		{ID: "2401.00001", Title: "A <b>bold</b> title"},
		{ID: "2401.00002", Title: "Second"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, rows))

	out := buf.String()
	assert.False(t, strings.HasSuffix(out, "\n"), "final record must not be followed by a newline")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "<b>bold</b>", "HTML must not be escaped")
}

func TestWriteJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL[RawDocument](&buf, nil))
	assert.Empty(t, buf.String())
}

func TestReadJSONL_SkipsBlankLines(t *testing.T) {
	in := "{\"arxiv_id\":\"a\"}\n\n   \n{\"arxiv_id\":\"b\"}"
	rows, err := ReadJSONL[RawDocument](strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "b", rows[1].ID)
}

func TestReadJSONL_MalformedLineReportsPosition(t *testing.T) {
	in := "{\"arxiv_id\":\"a\"}\n{not json}\n"
	_, err := ReadJSONL[RawDocument](strings.NewReader(in))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedLine)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDedupByID_KeepsFirst(t *testing.T) {
	rows := []RawDocument{
		{ID: "2401.00001", Title: "first"},
		{ID: "2401.00002", Title: "other"},
		{ID: "2401.00001", Title: "second"},
	}

	got := DedupByID(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Title)
	assert.Equal(t, "2401.00002", got[1].ID)
}

func TestDedupByID_Idempotent(t *testing.T) {
	rows := []RawDocument{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}, {ID: "b"}}
	once := DedupByID(rows)
	twice := DedupByID(once)
	assert.Equal(t, once, twice)
	assert.LessOrEqual(t, len(once), len(rows))
}

func TestRawDocumentValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     RawDocument
		wantErr bool
	}{
		{"valid", RawDocument{ID: "2401.00001"}, false},
		{"missing id", RawDocument{Title: "x"}, true},
		{"blank id", RawDocument{ID: "  "}, true},
		{"future version", RawDocument{ID: "x", Version: Version + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewEnriched_Defaults(t *testing.T) {
	pdf := "https://arxiv.org/pdf/2401.00001v1"
	raw := RawDocument{
		ID:        "2401.00001",
		Title:     "  Title  ",
		Abstract:  "Abstract",
		Published: "2024-01-01T00:00:00Z",
		URLPDF:    &pdf,
		CrawlDate: "20240102",
	}

	doc := NewEnriched(raw)
	assert.Equal(t, "Title", doc.Title)
	assert.Equal(t, UnknownLanguage, doc.Language)
	assert.Equal(t, "2024-01-01T00:00:00Z", doc.PublishedDate)
	assert.Nil(t, doc.Summary)
	assert.Empty(t, doc.PDFRaw)
	assert.NotNil(t, doc.Authors)
	assert.NotNil(t, doc.Affiliations)
	assert.NotNil(t, doc.Keywords)
	assert.NotNil(t, doc.Locations)
	assert.NoError(t, doc.Validate())

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []EnrichedDocument{doc}))
	assert.Contains(t, buf.String(), `"affiliations":[]`)
	assert.Contains(t, buf.String(), `"summary":null`)
}

func TestCorpusRowMetadata(t *testing.T) {
	summary := "short"
	row := CorpusRow{EnrichedDocument: EnrichedDocument{
		ID:            "2401.00001",
		Title:         "T",
		Abstract:      "A",
		Summary:       &summary,
		Language:      "en",
		PublishedDate: "2024-01-01",
		PDFRaw:        "lots of text",
	}}

	md := row.Metadata()
	assert.Equal(t, "2401.00001", md.ID)
	assert.Equal(t, "short", Deref(md.Summary))
	assert.Equal(t, []string{}, md.Authors)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []MetadataRow{md}))
	assert.NotContains(t, buf.String(), "pdf_raw")
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr("   "))
	assert.Equal(t, "x", *StringPtr(" x "))
}
