package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. DOCX has no fixed pagination, so each
// non-empty paragraph is numbered by its paragraph ordinal and each table
// by its table ordinal.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}

	d, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	doc := &Document{Name: baseName(filename), Format: "docx"}
	paraN, tableN := 0, 0
	for _, item := range d.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := docxParagraphText(it)
			if text == "" {
				continue
			}
			paraN++
			doc.Pages = append(doc.Pages, Page{Number: paraN, Text: text})
		case *docx.Table:
			t, ok := docxTable(it)
			if !ok {
				continue
			}
			tableN++
			doc.Pages = append(doc.Pages, Page{Number: tableN, Tables: []element.Table{t}})
		}
	}
	return doc, nil
}

// docxTable converts a w:tbl. The first row is the header.
func docxTable(tbl *docx.Table) (element.Table, bool) {
	var rows [][]string
	for _, tr := range tbl.TableRows {
		if tr == nil {
			continue
		}
		var vals []string
		for _, tc := range tr.TableCells {
			if tc == nil {
				vals = append(vals, "")
				continue
			}
			var parts []string
			for _, para := range tc.Paragraphs {
				if t := docxParagraphText(para); t != "" {
					parts = append(parts, t)
				}
			}
			vals = append(vals, strings.Join(parts, " "))
		}
		if len(vals) > 0 {
			rows = append(rows, vals)
		}
	}
	if len(rows) == 0 {
		return element.Table{}, false
	}
	return element.Table{Columns: rows[0], Rows: rows[1:]}, true
}

func docxParagraphText(para *docx.Paragraph) string {
	if para == nil {
		return ""
	}
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
