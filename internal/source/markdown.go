package source

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Prose extracts the readable text of a markdown document. Code and raw HTML
// are dropped, link targets are dropped in favour of their labels and every
// heading, paragraph and list item ends as a sentence.
func Prose(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
				endSentence(&b)
			}
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			b.Write(n.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(n.Segment.Value(src))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func endSentence(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " \n")
	if s == "" {
		return
	}
	b.Reset()
	b.WriteString(s)
	if last, _ := utf8.DecodeLastRuneInString(s); !strings.ContainsRune(".!?…:;", last) {
		b.WriteByte('.')
	}
	b.WriteByte('\n')
}
