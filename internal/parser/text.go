package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Paragraphs are normalized to be
// separated by one blank line and the result is a single page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	doc := &Document{Name: baseName(filename), Format: "text"}
	if len(paragraphs) > 0 {
		doc.Pages = []Page{{Number: 1, Text: strings.Join(paragraphs, "\n\n")}}
	}
	return doc, nil
}
