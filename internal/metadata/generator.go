package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bull/arxiv-corpus/internal/record"
	"github.com/bull/arxiv-corpus/internal/textutil"
)

// DefaultMaxTokens is the maximum input length before truncation (in tokens).
const DefaultMaxTokens = 16000

// Generator turns extraction requests into validated results. It never
// returns an error: every failure becomes a degraded Result.
type Generator struct {
	completer Completer
	prompts   Prompts
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a Generator. A non-positive maxTokens selects
// DefaultMaxTokens.
func NewGenerator(completer Completer, prompts Prompts, maxTokens int, logger *slog.Logger) *Generator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	if prompts.WithText == nil || prompts.AbstractOnly == nil {
		defaults := DefaultPrompts()
		if prompts.WithText == nil {
			prompts.WithText = defaults.WithText
		}
		if prompts.AbstractOnly == nil {
			prompts.AbstractOnly = defaults.AbstractOnly
		}
	}
	return &Generator{
		completer: completer,
		prompts:   prompts,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Generate runs one extraction request.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	if req.Text == "" {
		return degraded(req, ErrNoInput)
	}

	prompt, err := g.prompts.render(req.Variant, g.truncateContent(req.DocID, req.Text))
	if err != nil {
		return degraded(req, err)
	}

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return degraded(req, fmt.Errorf("%w: %v", ErrCompletion, err))
	}

	res, err := parseResponse(req.Variant, raw)
	if err != nil {
		return degraded(req, err)
	}
	return res
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(docID, content string) string {
	maxChars := g.maxTokens * 4
	truncated, cut := textutil.Truncate(content, maxChars)
	if cut {
		g.logger.Warn("Truncating extraction input",
			"id", docID, "from", len(content), "to", len(truncated), "max_tokens", g.maxTokens)
	}
	return truncated
}

// parseResponse validates raw against the schema of variant v.
func parseResponse(v Variant, raw string) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(textutil.StripCodeFence(raw)), &fields); err != nil {
		return Result{}, fmt.Errorf("%w: not a JSON object: %v", ErrMalformedOutput, err)
	}
	for _, key := range v.requiredFields() {
		if _, ok := fields[key]; !ok {
			return Result{}, fmt.Errorf("%w: missing %q", ErrMalformedOutput, key)
		}
	}

	res := Result{Variant: v, Keywords: []string{}, Affiliations: []string{}}

	var summary *string
	if err := json.Unmarshal(fields["summary"], &summary); err != nil {
		return Result{}, fmt.Errorf("%w: summary: %v", ErrMalformedOutput, err)
	}
	if summary != nil {
		res.Summary = record.StringPtr(textutil.PlainText(*summary))
	}

	keywords, err := stringList(fields["keywords"])
	if err != nil {
		return Result{}, fmt.Errorf("%w: keywords: %v", ErrMalformedOutput, err)
	}
	res.Keywords = textutil.CleanList(keywords)

	if v == WithSourceText {
		affiliations, err := stringList(fields["affiliations"])
		if err != nil {
			return Result{}, fmt.Errorf("%w: affiliations: %v", ErrMalformedOutput, err)
		}
		res.Affiliations = textutil.CleanList(affiliations)
	}
	return res, nil
}

// stringList decodes a JSON array of strings. null decodes as empty.
func stringList(raw json.RawMessage) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
