package parser

import (
	"math"
	"sort"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
)

// fragment is a positioned run of text on a PDF page. Y grows upward.
type fragment struct {
	X, Y, W float64
	S       string
}

// TableOptions tunes geometric table detection.
type TableOptions struct {
	RowTolerance   float64 // Max baseline difference within one row.
	WordGap        float64 // Gaps wider than this insert a space.
	CellGap        float64 // Gaps wider than this start a new cell.
	AlignTolerance float64 // Max drift of a column's start across rows.
	MinRows        int
	MinCols        int
}

func DefaultTableOptions() TableOptions {
	return TableOptions{
		RowTolerance:   2.0,
		WordGap:        1.5,
		CellGap:        10.0,
		AlignTolerance: 15.0,
		MinRows:        2,
		MinCols:        2,
	}
}

type cell struct {
	X    float64
	Text string
}

type textRow struct {
	Y     float64
	Cells []cell
}

// detectTables groups fragments into rows and cells, then reports every
// run of consecutive rows whose cell starts line up as a table. The first
// row of a run is its header.
func detectTables(frags []fragment, opts TableOptions) []element.Table {
	rows := groupRows(frags, opts)

	var tables []element.Table
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= opts.MinRows {
			tables = append(tables, rowsToTable(rows[start:end]))
		}
		start = -1
	}
	for i, row := range rows {
		if len(row.Cells) < opts.MinCols {
			flush(i)
			continue
		}
		if start >= 0 && !aligned(rows[start], row, opts.AlignTolerance) {
			flush(i)
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(rows))
	return tables
}

func groupRows(frags []fragment, opts TableOptions) []textRow {
	sorted := make([]fragment, 0, len(frags))
	for _, f := range frags {
		if strings.TrimSpace(f.S) != "" || f.S == " " {
			sorted = append(sorted, f)
		}
	}
	// Top of the page first, then left to right.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []textRow
	var line []fragment
	emit := func() {
		if len(line) > 0 {
			rows = append(rows, textRow{Y: line[0].Y, Cells: splitCells(line, opts)})
		}
		line = nil
	}
	for _, f := range sorted {
		if len(line) > 0 && math.Abs(line[0].Y-f.Y) > opts.RowTolerance {
			emit()
		}
		line = append(line, f)
	}
	emit()
	return rows
}

func splitCells(line []fragment, opts TableOptions) []cell {
	sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })

	var cells []cell
	var b strings.Builder
	cellX := line[0].X
	end := line[0].X
	push := func() {
		if t := strings.TrimSpace(b.String()); t != "" {
			cells = append(cells, cell{X: cellX, Text: t})
		}
		b.Reset()
	}
	for i, f := range line {
		gap := f.X - end
		if i > 0 {
			switch {
			case gap > opts.CellGap:
				push()
				cellX = f.X
			case gap > opts.WordGap:
				b.WriteByte(' ')
			}
		}
		b.WriteString(f.S)
		if e := f.X + f.W; e > end || i == 0 {
			end = e
		}
	}
	push()
	return cells
}

// aligned reports whether row has the same column layout as head.
func aligned(head, row textRow, tol float64) bool {
	if len(head.Cells) != len(row.Cells) {
		return false
	}
	for i := range head.Cells {
		if math.Abs(head.Cells[i].X-row.Cells[i].X) > tol {
			return false
		}
	}
	return true
}

func rowsToTable(rows []textRow) element.Table {
	t := element.Table{}
	for _, c := range rows[0].Cells {
		t.Columns = append(t.Columns, c.Text)
	}
	for _, r := range rows[1:] {
		vals := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			vals[i] = c.Text
		}
		t.Rows = append(t.Rows, vals)
	}
	return t
}
