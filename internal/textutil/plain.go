// Package textutil cleans free text returned by language models before it is
// stored in corpus records.
package textutil

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText flattens markdown into plain text. Each block becomes one line
// with its whitespace collapsed. Emphasis, links and headings keep only their
// text, ordered list items keep their numbers, and HTML is dropped.
func PlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []string
	var cur strings.Builder
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			blocks = append(blocks, line)
		}
		cur.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.ListItem:
			if list, ok := node.Parent().(*ast.List); ok && entering && list.IsOrdered() {
				i := 0
				for prev := node.PreviousSibling(); prev != nil; prev = prev.PreviousSibling() {
					i++
				}
				cur.WriteString(strconv.Itoa(list.Start + i))
				cur.WriteByte(list.Marker)
				cur.WriteByte(' ')
			}
		case *ast.AutoLink:
			if entering {
				cur.Write(node.Label(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					cur.Write(seg.Value(source))
					cur.WriteByte(' ')
				}
				flush()
			}
			return ast.WalkSkipChildren, nil
		}

		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			flush()
		}
		return ast.WalkContinue, nil
	})
	flush()

	return strings.Join(blocks, "\n")
}

// StripCodeFence removes a surrounding markdown code fence, such as
// "```json ... ```", that models sometimes wrap around JSON output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// CleanList puts every entry on a single line and drops empty entries and
// exact duplicates, preserving order. Entries carrying inline markup are
// flattened to plain text; anything else, such as "2." or "1) ranking", is
// kept literally. The result is never nil.
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		v := strings.Join(strings.Fields(item), " ")
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, inlineMarkup) {
			if flat := strings.Join(strings.Fields(PlainText(v)), " "); flat != "" {
				v = flat
			}
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// inlineMarkup holds the characters that open markdown emphasis, code spans,
// links or HTML.
const inlineMarkup = "*_`[<"

// Truncate cuts s to at most maxChars bytes without splitting a UTF-8
// sequence. It reports whether anything was cut.
func Truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(s) <= maxChars {
		return s, false
	}
	cut := maxChars
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
