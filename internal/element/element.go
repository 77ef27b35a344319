// Package element holds the typed content extracted from a document and the
// flat chunks produced from it.
package element

import "sort"

// Kind identifies the content variant carried by an Element.
type Kind string

const (
	KindText    Kind = "text"
	KindTable   Kind = "table"
	KindChart   Kind = "chart"
	KindFormula Kind = "formula"
)

// Element is one typed piece of extracted document content. Exactly one of
// Text, Table, Chart or Formula is populated, selected by Kind.
type Element struct {
	Kind Kind
	Page int

	Text    string
	Table   *Table
	Chart   *Chart
	Formula *Formula

	Metadata map[string]any
}

// Table is a detected table region.
type Table struct {
	Columns []string
	Rows    [][]string
	Index   int // 1-based ordinal within the document
}

// Shape returns (row_count, col_count).
func (t *Table) Shape() (int, int) {
	cols := len(t.Columns)
	for _, r := range t.Rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	return len(t.Rows), cols
}

// BBox is a pixel rectangle within a page raster.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Chart is an accepted chart region.
type Chart struct {
	ImagePath     string
	OCRText       string
	BBox          BBox
	Area          float64
	AspectRatio   float64
	NonWhiteRatio float64
	Index         int
}

// Formula is a recognized mathematical expression.
type Formula struct {
	Raw        string
	Context    string
	Normalized string
	Variables  []string
	Constants  []string
	Type       string
	Features   []string
	Index      int
}

// NewText builds a text element.
func NewText(page int, text string) Element {
	return Element{Kind: KindText, Page: page, Text: text}
}

// NewTable builds a table element.
func NewTable(page int, t Table) Element {
	return Element{Kind: KindTable, Page: page, Table: &t}
}

// NewChart builds a chart element.
func NewChart(page int, c Chart) Element {
	return Element{Kind: KindChart, Page: page, Chart: &c}
}

// NewFormula builds a formula element.
func NewFormula(page int, f Formula) Element {
	return Element{Kind: KindFormula, Page: page, Formula: &f}
}

// SortByPage orders elements by page number. Elements on the same page keep
// their relative extraction order.
func SortByPage(els []Element) {
	sort.SliceStable(els, func(i, j int) bool {
		return els[i].Page < els[j].Page
	})
}

// Count returns the number of elements of each kind.
func Count(els []Element) map[Kind]int {
	out := make(map[Kind]int, 4)
	for _, e := range els {
		out[e.Kind]++
	}
	return out
}

// Chunk is a sized, typed text segment with flat metadata, ready for
// embedding and storage.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Kind       Kind
	Page       int
	TypeIndex  int
	Metadata   map[string]any
}
