package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/docqa/internal/chart"
	"github.com/dgallion1/docqa/internal/element"
	"github.com/dgallion1/docqa/internal/formula"
	"github.com/dgallion1/docqa/internal/parser"
	"golang.org/x/sync/errgroup"
)

// formulas runs the recognizer over every page in parallel. The result is
// indexed like doc.Pages.
func (s *Service) formulas(ctx context.Context, doc *parser.Document) ([][]element.Formula, error) {
	out := make([][]element.Formula, len(doc.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageWorkers)
	for i, page := range doc.Pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = formula.Recognize(page.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("formula extraction: %w", err)
	}
	return out, nil
}

// pdfCharts detects charts on the rendered pages of a PDF and saves the crops.
// Only cancellation is fatal; everything else becomes a warning.
func (s *Service) pdfCharts(ctx context.Context, doc *parser.Document, data []byte) ([]element.Element, error) {
	rasters, warnings, err := s.charts.PDFRasters(ctx, data)
	doc.Warnings = append(doc.Warnings, warnings...)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("charts: %v", err))
		return nil, nil
	}

	found := make([][]chart.Found, len(rasters))
	failed := make([]error, len(rasters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageWorkers)
	for i, r := range rasters {
		g.Go(func() error {
			f, err := s.charts.Page(gctx, r)
			found[i] = f
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			failed[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("chart extraction: %w", err)
	}

	var all []chart.Found
	for i := range rasters {
		if failed[i] != nil {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: charts: %v", rasters[i].Page, failed[i]))
		}
		all = append(all, found[i]...)
	}
	charts, err := s.charts.Save(doc.Name, all)
	if err != nil {
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("charts: %v", err))
	}
	// Save keeps the order of all and stops at the first failed write.
	els := make([]element.Element, len(charts))
	for i, c := range charts {
		els[i] = element.NewChart(all[i].Page, c)
	}
	return els, nil
}

// merge combines the extractor outputs and sorts them by page. Within a page
// the order is text, the formulas found in it, tables, then charts.
// Formula ordinals are assigned after sorting.
func merge(doc *parser.Document, formulas [][]element.Formula, charts []element.Element) []element.Element {
	var els []element.Element
	tableIdx := 0
	for i, p := range doc.Pages {
		if strings.TrimSpace(p.Text) != "" {
			els = append(els, element.NewText(p.Number, p.Text))
		}
		for _, f := range formulas[i] {
			els = append(els, element.NewFormula(p.Number, f))
		}
		for _, t := range p.Tables {
			tableIdx++
			t.Index = tableIdx
			els = append(els, element.NewTable(p.Number, t))
		}
	}
	els = append(els, charts...)
	element.SortByPage(els)

	n := 0
	for i := range els {
		if els[i].Kind != element.KindFormula {
			continue
		}
		n++
		f := *els[i].Formula
		f.Index = n
		els[i].Formula = &f
	}
	return els
}
