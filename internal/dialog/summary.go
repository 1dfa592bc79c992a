package dialog

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	markdown   = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Table))
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// StripMarkdownAndHTML reduces a summary to plain text. The markdown is
// parsed and only its text kept; tags in embedded HTML are dropped. Text is
// copied from the source as written, so entities and intraword punctuation
// in plain text survive.
func StripMarkdownAndHTML(s string) string {
	src := []byte(s)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	writeLines := func(lines *text.Segments, strip bool, sep string) {
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			line := string(seg.Value(src))
			if strip {
				line = htmlTag.ReplaceAllString(line, "")
			}
			b.WriteString(line)
			b.WriteString(sep)
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.AutoLink:
			b.Write(n.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			writeLines(n.Segments, true, "")
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			writeLines(n.Lines(), true, " ")
			if n.HasClosure() {
				b.WriteString(htmlTag.ReplaceAllString(string(n.ClosureLine.Value(src)), ""))
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			writeLines(n.Lines(), false, " ")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return normalize(b.String())
}

// HasMarkdownOrHTML is the sweep selector for summaries that need cleaning.
func HasMarkdownOrHTML(s string) bool {
	return StripMarkdownAndHTML(s) != normalize(s)
}

func normalize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
