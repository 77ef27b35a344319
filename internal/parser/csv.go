package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/docqa/internal/element"
)

// CSVParser handles CSV files. The whole file is one table on page 1 and the
// first record is the header.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &Document{Name: baseName(filename), Format: "csv"}
	if len(records) == 0 {
		return doc, nil
	}

	t := element.Table{Columns: records[0], Rows: records[1:]}
	doc.Pages = []Page{{Number: 1, Tables: []element.Table{t}}}
	return doc, nil
}
