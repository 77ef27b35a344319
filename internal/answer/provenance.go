package answer

import (
	"encoding/json"
	"fmt"

	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/router"
)

// Provenance holds the table, chart and formula chunks cited for an answer.
// A nil field means no chunk of that kind was selected.
type Provenance struct {
	Table   *element.Chunk
	Chart   *element.Chunk
	Formula *element.Chunk
}

// SelectProvenance picks one chunk per kind from hits. With an explicit
// ordinal in the route, only the chunk whose TypeIndex equals it qualifies.
// Otherwise the first chunk of that kind in rank order wins.
func SelectProvenance(route router.Route, hits []index.Hit) Provenance {
	return Provenance{
		Table:   pick(hits, element.KindTable, route.TableOrdinal),
		Chart:   pick(hits, element.KindChart, route.ChartOrdinal),
		Formula: pick(hits, element.KindFormula, 0),
	}
}

func pick(hits []index.Hit, kind element.Kind, ordinal int) *element.Chunk {
	for i := range hits {
		c := hits[i].Chunk
		if c.Kind != kind {
			continue
		}
		if ordinal > 0 && c.TypeIndex != ordinal {
			continue
		}
		return &c
	}
	return nil
}

// TableData is a table in the column/records layout chat clients render.
type TableData struct {
	Columns []string            `json:"columns"`
	Data    []map[string]string `json:"data"`
}

// CitedTable rebuilds the cited table from its chunk metadata.
func (p Provenance) CitedTable() (*TableData, error) {
	if p.Table == nil {
		return nil, nil
	}
	var cols []string
	if err := decodeMeta(p.Table.Metadata, "columns", &cols); err != nil {
		return nil, err
	}
	var rows [][]string
	if err := decodeMeta(p.Table.Metadata, "rows", &rows); err != nil {
		return nil, err
	}
	td := &TableData{Columns: cols, Data: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		rec := make(map[string]string, len(cols))
		for j, col := range cols {
			if j < len(row) {
				rec[col] = row[j]
			} else {
				rec[col] = ""
			}
		}
		td.Data = append(td.Data, rec)
	}
	return td, nil
}

// ImagePath is the saved crop of the cited chart, or "".
func (p Provenance) ImagePath() string {
	if p.Chart == nil {
		return ""
	}
	s, _ := p.Chart.Metadata["image_path"].(string)
	return s
}

// FormulaText is the cited formula in normalized form, or "".
func (p Provenance) FormulaText() string {
	if p.Formula == nil {
		return ""
	}
	if s, _ := p.Formula.Metadata["normalized"].(string); s != "" {
		return s
	}
	s, _ := p.Formula.Metadata["raw"].(string)
	return s
}

// Labels lists every table, chart and formula among hits as a
// human-readable citation, in rank order.
func Labels(hits []index.Hit) (tables, charts, formulas []string) {
	for _, h := range hits {
		c := h.Chunk
		switch c.Kind {
		case element.KindTable:
			tables = append(tables, fmt.Sprintf("Table %d page %d", c.TypeIndex, c.Page))
		case element.KindChart:
			charts = append(charts, fmt.Sprintf("Chart %d page %d", c.TypeIndex, c.Page))
		case element.KindFormula:
			formulas = append(formulas, fmt.Sprintf("Formula %d page %d", c.TypeIndex, c.Page))
		}
	}
	return tables, charts, formulas
}

func decodeMeta(md map[string]any, key string, v any) error {
	raw, ok := md[key].(string)
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
