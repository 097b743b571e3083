package extraction

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// TabularAdapter reads HTML documents and turns every <tr> into a row.
// Text outside tables (headings, paragraphs) is emitted as single-field
// rows so section headers and "no data" notices still reach the extractor.
type TabularAdapter struct{}

// NewTabularAdapter creates an HTML table adapter.
func NewTabularAdapter() *TabularAdapter {
	return &TabularAdapter{}
}

// Name returns the configuration key.
func (a *TabularAdapter) Name() string {
	return AdapterTabular
}

// Rows walks the parsed document in order.
func (a *TabularAdapter) Rows(r io.Reader) ([]Row, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html document: %w", err)
	}

	var rows []Row
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				return
			case "tr":
				fields := cells(n)
				rows = append(rows, Row{
					Line:   len(rows) + 1,
					Text:   strings.Join(fields, " "),
					Fields: fields,
				})
				return
			case "table":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				// a table boundary ends a section like a blank line would
				rows = append(rows, Row{Line: len(rows) + 1})
				return
			case "h1", "h2", "h3", "h4", "p", "caption", "div", "span", "b", "strong":
				if text := directText(n); text != "" {
					rows = append(rows, Row{Line: len(rows) + 1, Text: text, Fields: []string{text}})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows, nil
}

// cells collects the text of the <td>/<th> children of a row.
func cells(tr *html.Node) []string {
	var out []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			out = append(out, strings.TrimSpace(textContent(c)))
		}
	}
	return out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// directText returns the text nodes that are immediate children of n.
func directText(n *html.Node) string {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}
