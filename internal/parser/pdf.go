package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	doc := &Document{Name: baseName(filename), Format: "pdf"}

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if !p.FallbackPdftotext {
			return nil, fmt.Errorf("open pdf: %w", err)
		}
		pages, ferr := pdftotextPages(data)
		if ferr != nil {
			return nil, fmt.Errorf("open pdf: %w (fallback: %v)", err, ferr)
		}
		doc.Pages = pages
		doc.Warnings = append(doc.Warnings, "pdf reader failed, used pdftotext; tables unavailable")
		return doc, nil
	}

	textFailed := 0
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pg := Page{Number: i}

		text, err := pageText(page)
		if err != nil {
			textFailed++
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: text: %v", i, err))
		}
		pg.Text = strings.TrimSpace(text)

		tables, err := pageTables(page)
		if err != nil {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: tables: %v", i, err))
		}
		pg.Tables = tables

		doc.Pages = append(doc.Pages, pg)
	}

	// When the library could not read any page text, pdftotext may still.
	if textFailed > 0 && textFailed == len(doc.Pages) && p.FallbackPdftotext {
		if pages, err := pdftotextPages(data); err == nil {
			for i := range doc.Pages {
				if i < len(pages) {
					doc.Pages[i].Text = pages[i].Text
				}
			}
		}
	}

	return doc, nil
}

// pageText returns the page's plain text. The library panics on some
// malformed content streams; that is reported as an error.
func pageText(page pdflib.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// pageTables runs table detection over the page's positioned text.
func pageTables(page pdflib.Page) (tables []element.Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			tables = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	content := page.Content()
	frags := make([]fragment, 0, len(content.Text))
	for _, t := range content.Text {
		frags = append(frags, fragment{X: t.X, Y: t.Y, W: t.W, S: t.S})
	}
	return detectTables(frags, DefaultTableOptions()), nil
}

func pdftotextPages(data []byte) ([]Page, error) {
	tmp, err := os.CreateTemp("", "docqa-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command("pdftotext", "-layout", tmpPath, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	var pages []Page
	for i, text := range splitPages(string(out)) {
		pages = append(pages, Page{Number: i + 1, Text: strings.TrimSpace(text)})
	}
	// pdftotext terminates the last page with a form feed.
	if n := len(pages); n > 1 && pages[n-1].Text == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
