// Package chunker converts typed document elements into flat, size-bounded
// text chunks.
package chunker

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/formula"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize    int // Maximum prose chunk size in runes.
	ChunkOverlap int // Runes repeated between consecutive prose chunks.
}

// DefaultConfig returns the stock 500/50 policy.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
}

// Chunker turns an element list into chunks.
type Chunker struct {
	splitter Splitter
}

func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	return &Chunker{splitter: Splitter{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}}
}

// Chunks converts els, in order, into chunks tagged with source. Prose is
// split; tables, charts and formulas each become one chunk.
func (c *Chunker) Chunks(source string, els []element.Element) []element.Chunk {
	var out []element.Chunk
	for i, el := range els {
		switch el.Kind {
		case element.KindText:
			for j, part := range c.splitter.Split(el.Text) {
				out = append(out, newChunk(element.KindText, el.Page, 0, part, map[string]any{
					"type":          "text",
					"source":        source,
					"page_number":   el.Page,
					"element_index": i,
					"chunk_index":   j,
				}))
			}
		case element.KindTable:
			if el.Table == nil {
				continue
			}
			out = append(out, tableChunk(source, el.Page, el.Table))
		case element.KindChart:
			if el.Chart == nil {
				continue
			}
			out = append(out, chartChunk(source, el.Page, el.Chart))
		case element.KindFormula:
			if el.Formula == nil {
				continue
			}
			out = append(out, formulaChunk(source, el.Page, el.Formula))
		}
	}
	return out
}

func newChunk(kind element.Kind, page, typeIndex int, text string, md map[string]any) element.Chunk {
	return element.Chunk{
		Text:      text,
		Kind:      kind,
		Page:      page,
		TypeIndex: typeIndex,
		Metadata:  Coerce(md),
	}
}

// SerializeTable renders a table as a header line listing the columns
// followed by one col=value line per row.
func SerializeTable(t *element.Table) string {
	cols := tableColumns(t)
	var b strings.Builder
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(cols, " | "))
	for i, row := range t.Rows {
		fmt.Fprintf(&b, "\nRow %d: ", i+1)
		for j, v := range row {
			if j > 0 {
				b.WriteString("; ")
			}
			b.WriteString(cols[j])
			b.WriteString("=")
			b.WriteString(strings.TrimSpace(v))
		}
	}
	return b.String()
}

// tableColumns pads the header with positional names when rows are wider.
func tableColumns(t *element.Table) []string {
	_, width := t.Shape()
	cols := make([]string, width)
	for j := range cols {
		if j < len(t.Columns) && strings.TrimSpace(t.Columns[j]) != "" {
			cols[j] = strings.TrimSpace(t.Columns[j])
		} else {
			cols[j] = fmt.Sprintf("col%d", j+1)
		}
	}
	return cols
}

func tableChunk(source string, page int, t *element.Table) element.Chunk {
	rows, cols := t.Shape()
	text := fmt.Sprintf("Table %d (page %d)\n%s", t.Index, page, SerializeTable(t))
	return newChunk(element.KindTable, page, t.Index, text, map[string]any{
		"type":        "table",
		"source":      source,
		"page_number": page,
		"table_index": t.Index,
		"columns":     tableColumns(t),
		"rows":        t.Rows,
		"shape":       []int{rows, cols},
	})
}

// SerializeChart renders a chart's OCR text, location and image path.
func SerializeChart(c *element.Chart) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OCR text: %s\n", strings.TrimSpace(c.OCRText))
	fmt.Fprintf(&b, "Bounding box: x=%d, y=%d, w=%d, h=%d\n", c.BBox.X, c.BBox.Y, c.BBox.W, c.BBox.H)
	fmt.Fprintf(&b, "Image: %s", c.ImagePath)
	return b.String()
}

func chartChunk(source string, page int, c *element.Chart) element.Chunk {
	text := fmt.Sprintf("Chart %d (page %d)\n%s", c.Index, page, SerializeChart(c))
	return newChunk(element.KindChart, page, c.Index, text, map[string]any{
		"type":            "chart",
		"source":          source,
		"page_number":     page,
		"chart_index":     c.Index,
		"image_path":      c.ImagePath,
		"bbox":            c.BBox,
		"area":            c.Area,
		"aspect_ratio":    c.AspectRatio,
		"non_white_ratio": c.NonWhiteRatio,
	})
}

// SerializeFormula renders raw and normalized forms, variables and context.
func SerializeFormula(f *element.Formula) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Raw: %s\n", f.Raw)
	fmt.Fprintf(&b, "Normalized: %s\n", f.Normalized)
	fmt.Fprintf(&b, "Variables: %s\n", strings.Join(f.Variables, ", "))
	if len(f.Constants) > 0 {
		fmt.Fprintf(&b, "Constants: %s\n", strings.Join(f.Constants, ", "))
	}
	fmt.Fprintf(&b, "Context: %s", f.Context)
	return b.String()
}

func formulaChunk(source string, page int, f *element.Formula) element.Chunk {
	text := fmt.Sprintf("Formula %d (page %d, %s)\n%s", f.Index, page, f.Type, SerializeFormula(f))
	md := map[string]any{
		"type":          "formula",
		"source":        source,
		"page_number":   page,
		"formula_index": f.Index,
		"formula_type":  f.Type,
		"raw":           f.Raw,
		"normalized":    f.Normalized,
		"variables":     f.Variables,
	}
	present := make(map[string]bool, len(f.Features))
	for _, name := range f.Features {
		present[name] = true
	}
	for _, t := range formula.Precedence {
		md["has_"+t] = present["has_"+t]
	}
	return newChunk(element.KindFormula, page, f.Index, text, md)
}
