package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. GFM tables become
// tables; everything else is prose on a single page.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	root := md.Parser().Parse(text.NewReader(src))

	page := Page{Number: 1}
	var prose []string
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if tbl, ok := n.(*east.Table); ok {
			if t, ok := markdownTable(tbl, src); ok {
				page.Tables = append(page.Tables, t)
			}
			continue
		}
		if t := blockText(n, src); t != "" {
			prose = append(prose, t)
		}
	}
	page.Text = strings.Join(prose, "\n\n")

	doc := &Document{Name: baseName(filename), Format: "markdown"}
	if page.Text != "" || len(page.Tables) > 0 {
		doc.Pages = []Page{page}
	}
	return doc, nil
}

func markdownTable(tbl *east.Table, src []byte) (element.Table, bool) {
	var t element.Table
	for row := tbl.FirstChild(); row != nil; row = row.NextSibling() {
		var vals []string
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			vals = append(vals, strings.TrimSpace(inlineText(c, src)))
		}
		switch row.(type) {
		case *east.TableHeader:
			t.Columns = vals
		case *east.TableRow:
			t.Rows = append(t.Rows, vals)
		}
	}
	return t, len(t.Columns) > 0 || len(t.Rows) > 0
}

// blockText gets the text content of a goldmark block node.
func blockText(n ast.Node, src []byte) string {
	if _, ok := n.(*east.Table); ok {
		return ""
	}
	first := n.FirstChild()
	switch {
	case first != nil && first.Type() == ast.TypeInline:
		return strings.TrimSpace(inlineText(n, src))
	case first != nil:
		var parts []string
		for c := first; c != nil; c = c.NextSibling() {
			if t := blockText(c, src); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	// Leaf blocks such as code blocks keep their raw lines.
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return strings.TrimSpace(buf.String())
}

func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.HardLineBreak() || node.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.RawHTML:
		default:
			buf.WriteString(inlineText(c, src))
		}
	}
	return buf.String()
}
