package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
)

// Document is the layout extracted from one file: per-page prose and tables.
type Document struct {
	Name   string
	Format string
	Pages  []Page
	// Warnings records sub-extractor failures that were absorbed.
	Warnings []string
}

// Page holds what was found on a single page. Formats without pagination
// report one page per natural unit (see each parser).
type Page struct {
	Number int
	Text   string
	Tables []element.Table
}

// Elements returns text and table elements in page order, text first.
// Table ordinals are assigned document-wide starting at 1.
func (d *Document) Elements() []element.Element {
	var out []element.Element
	tableIdx := 0
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			out = append(out, element.NewText(p.Number, p.Text))
		}
		for _, t := range p.Tables {
			tableIdx++
			t.Index = tableIdx
			out = append(out, element.NewTable(p.Number, t))
		}
	}
	return out
}

// Parser converts raw document bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes parser behavior.
type Options struct {
	FallbackPdftotext bool
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.FallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// CheckContent verifies that the leading bytes match the container format the
// extension promises. Text formats are not checked.
func CheckContent(filename string, head []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		if !bytes.HasPrefix(head, []byte("%PDF-")) {
			return fmt.Errorf("%s does not start with a PDF header", filename)
		}
	case ".docx":
		if !bytes.HasPrefix(head, []byte("PK\x03\x04")) {
			return fmt.Errorf("%s is not a zip container", filename)
		}
	}
	return nil
}

func baseName(filename string) string {
	name := filepath.Base(filename)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
