package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docqa/internal/element"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. The document is one page; each <table>
// becomes a table and is excluded from the prose.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &Document{Name: baseName(filename), Format: "html"}

	page := Page{Number: 1}
	var prose []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head":
				return
			case "table":
				if t, ok := htmlTable(n); ok {
					page.Tables = append(page.Tables, t)
				}
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "blockquote", "pre":
				if t := textContent(n); t != "" {
					prose = append(prose, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(root, "body"); body != nil {
		walk(body)
	} else {
		walk(root)
	}
	page.Text = strings.Join(prose, "\n\n")

	if page.Text != "" || len(page.Tables) > 0 {
		doc.Pages = []Page{page}
	}
	return doc, nil
}

// htmlTable reads rows in document order. A row made of <th> cells, or
// failing that the first row, is the header.
func htmlTable(n *html.Node) (element.Table, bool) {
	var rows [][]string
	header := -1
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "table":
				// Nested tables are read as cell text only.
				continue
			case "tr":
				var vals []string
				allTH := true
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type != html.ElementNode || (td.Data != "td" && td.Data != "th") {
						continue
					}
					if td.Data != "th" {
						allTH = false
					}
					vals = append(vals, textContent(td))
				}
				if len(vals) == 0 {
					continue
				}
				if allTH && header < 0 {
					header = len(rows)
				}
				rows = append(rows, vals)
			default:
				visit(c)
			}
		}
	}
	visit(n)

	if len(rows) == 0 {
		return element.Table{}, false
	}
	if header < 0 {
		header = 0
	}
	t := element.Table{Columns: rows[header]}
	for i, row := range rows {
		if i != header {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, true
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
