package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/arxiv-corpus/internal/record"
)

// fakeCompleter returns a canned reply and records prompts.
type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestGenerate_WithSourceText(t *testing.T) {
	fc := &fakeCompleter{reply: `{"affiliations": ["MIT", " MIT ", ""], "keywords": ["**graphs**", "GNN"], "summary": "We study *graphs*."}`}
	g := NewGenerator(fc, DefaultPrompts(), 0, nil)

	res := g.Generate(context.Background(), NewRequest("2401.00001", "first page text", "abstract"))
	require.True(t, res.OK(), "unexpected degradation: %v", res.Degraded)

	assert.Equal(t, WithSourceText, res.Variant)
	assert.Equal(t, "We study graphs.", record.Deref(res.Summary))
	assert.Equal(t, []string{"graphs", "GNN"}, res.Keywords)
	assert.Equal(t, []string{"MIT"}, res.Affiliations)

	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], "first page text")
	assert.Contains(t, fc.prompts[0], `"affiliations"`)
}

func TestGenerate_AbstractOnly(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"keywords\": [\"nlp\"], \"summary\": \"Short.\", \"affiliations\": [\"ignored\"]}\n```"}
	g := NewGenerator(fc, DefaultPrompts(), 0, nil)

	res := g.Generate(context.Background(), NewRequest("2401.00002", "", "the abstract"))
	require.True(t, res.OK(), "unexpected degradation: %v", res.Degraded)

	assert.Equal(t, AbstractOnly, res.Variant)
	assert.Equal(t, "Short.", record.Deref(res.Summary))
	assert.Equal(t, []string{"nlp"}, res.Keywords)
	assert.Empty(t, res.Affiliations, "abstract-only schema never yields affiliations")
	assert.Contains(t, fc.prompts[0], "the abstract")
	assert.NotContains(t, fc.prompts[0], `"affiliations"`)
}

func TestGenerate_Degraded(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		err     error
		req     Request
		wantErr error
	}{
		{"not json", "Sure! Here are the keywords...", nil, NewRequest("a", "text", ""), ErrMalformedOutput},
		{"json array", `["x"]`, nil, NewRequest("a", "text", ""), ErrMalformedOutput},
		{"missing affiliations", `{"keywords": [], "summary": "s"}`, nil, NewRequest("a", "text", ""), ErrMalformedOutput},
		{"missing summary", `{"keywords": []}`, nil, NewRequest("a", "", "abs"), ErrMalformedOutput},
		{"wrong type", `{"keywords": "a, b", "summary": "s"}`, nil, NewRequest("a", "", "abs"), ErrMalformedOutput},
		{"completion error", "", errors.New("boom"), NewRequest("a", "", "abs"), ErrCompletion},
		{"no input", "", nil, NewRequest("a", "", ""), ErrNoInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{reply: tt.reply, err: tt.err}
			g := NewGenerator(fc, DefaultPrompts(), 0, nil)

			res := g.Generate(context.Background(), tt.req)
			require.False(t, res.OK())
			assert.ErrorIs(t, res.Degraded, tt.wantErr)

			var de *DegradedError
			require.ErrorAs(t, res.Degraded, &de)
			assert.Equal(t, "a", de.DocID)

			assert.Nil(t, res.Summary)
			assert.NotNil(t, res.Keywords)
			assert.Empty(t, res.Keywords)
			assert.NotNil(t, res.Affiliations)
			assert.Empty(t, res.Affiliations)
		})
	}
}

func TestGenerate_NullSummary(t *testing.T) {
	fc := &fakeCompleter{reply: `{"keywords": null, "summary": null}`}
	g := NewGenerator(fc, DefaultPrompts(), 0, nil)

	res := g.Generate(context.Background(), NewRequest("a", "", "abs"))
	require.True(t, res.OK())
	assert.Nil(t, res.Summary)
	assert.Equal(t, []string{}, res.Keywords)
}

// TestTruncateContent verifies truncation works correctly for very long content.
func TestTruncateContent(t *testing.T) {
	g := NewGenerator(&fakeCompleter{}, DefaultPrompts(), 0, nil)

	longContent := strings.Repeat("This is a test content. ", 4000)
	truncated := g.truncateContent("x", longContent)

	expectedMaxChars := DefaultMaxTokens * 4
	assert.Len(t, truncated, expectedMaxChars)
	assert.True(t, strings.HasPrefix(longContent, truncated))
}

// TestTruncateContent_Short verifies short content is not truncated.
func TestTruncateContent_Short(t *testing.T) {
	g := NewGenerator(&fakeCompleter{}, DefaultPrompts(), 0, nil)

	shortContent := strings.Repeat("Short. ", 140)
	assert.Equal(t, shortContent, g.truncateContent("x", shortContent))
}

// TestTruncateContent_CustomMaxTokens verifies custom max tokens setting.
func TestTruncateContent_CustomMaxTokens(t *testing.T) {
	g := NewGenerator(&fakeCompleter{}, DefaultPrompts(), 1000, nil)

	content := strings.Repeat("Content. ", 1000)
	assert.Len(t, g.truncateContent("x", content), 4000)
}

func TestLoadPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("abstract_only: |\n  ABSTRACT >> {{.Text}}\n"), 0o644))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)

	out, err := prompts.render(AbstractOnly, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ABSTRACT >> hello\n", out)

	withText, err := prompts.render(WithSourceText, "page")
	require.NoError(t, err)
	assert.Contains(t, withText, "First page text:\npage", "unset keys keep the built-in template")
}

func TestLoadPrompts_BadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("with_text: \"{{.Text\"\n"), 0o644))

	_, err := LoadPrompts(path)
	assert.Error(t, err)
}
