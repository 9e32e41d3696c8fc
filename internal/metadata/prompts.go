package metadata

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"go.yaml.in/yaml/v3"
)

const defaultWithTextPrompt = `You extract metadata from the first page of a scientific paper.

Return a single JSON object with exactly these keys:
- "affiliations": array of strings, the institutions the authors belong to, each listed once
- "keywords": array of 3 to 8 short strings describing the topics of the paper
- "summary": string, a plain-language summary of the paper in at most three sentences

Use only information present in the text. Use an empty array when no affiliations are stated.

First page text:
{{.Text}}`

const defaultAbstractOnlyPrompt = `You extract metadata from the abstract of a scientific paper. No other metadata is available.

Return a single JSON object with exactly these keys:
- "keywords": array of 3 to 8 short strings describing the topics of the paper
- "summary": string, a plain-language summary of the paper in at most three sentences

Abstract:
{{.Text}}`

// Prompts holds one template per variant. Templates see a struct with a
// single Text field.
type Prompts struct {
	WithText     *template.Template
	AbstractOnly *template.Template
}

// promptFile is the YAML layout accepted by LoadPrompts.
type promptFile struct {
	WithText     string `yaml:"with_text"`
	AbstractOnly string `yaml:"abstract_only"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		WithText:     template.Must(template.New("with_text").Parse(defaultWithTextPrompt)),
		AbstractOnly: template.Must(template.New("abstract_only").Parse(defaultAbstractOnlyPrompt)),
	}
}

// LoadPrompts reads template overrides from a YAML file. Keys left empty keep
// the built-in template.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompt file: %w", err)
	}
	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return prompts, fmt.Errorf("parse prompt file: %w", err)
	}

	if pf.WithText != "" {
		t, err := template.New("with_text").Parse(pf.WithText)
		if err != nil {
			return prompts, fmt.Errorf("parse with_text template: %w", err)
		}
		prompts.WithText = t
	}
	if pf.AbstractOnly != "" {
		t, err := template.New("abstract_only").Parse(pf.AbstractOnly)
		if err != nil {
			return prompts, fmt.Errorf("parse abstract_only template: %w", err)
		}
		prompts.AbstractOnly = t
	}
	return prompts, nil
}

func (p Prompts) render(v Variant, text string) (string, error) {
	t := p.AbstractOnly
	if v == WithSourceText {
		t = p.WithText
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", v, err)
	}
	return buf.String(), nil
}
