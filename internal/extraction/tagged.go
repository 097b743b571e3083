package extraction

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TaggedSchema names the element and attributes that carry one vertex.
// Fields are emitted in Attributes order.
type TaggedSchema struct {
	Element    string
	Attributes []string
}

// DefaultTaggedSchema matches <VERTICE dias="252" ipca="6,50" pre="13,00"/>,
// which lines up with ANBIMALayout.
func DefaultTaggedSchema() TaggedSchema {
	return TaggedSchema{
		Element:    "VERTICE",
		Attributes: []string{"dias", "ipca", "pre"},
	}
}

// TaggedAdapter reads XML documents where each vertex is an element whose
// attributes hold the values. Other elements become text-only rows.
type TaggedAdapter struct {
	schema TaggedSchema
}

// NewTaggedAdapter creates an adapter for the given schema.
func NewTaggedAdapter(schema TaggedSchema) *TaggedAdapter {
	return &TaggedAdapter{schema: schema}
}

// Name returns the configuration key.
func (a *TaggedAdapter) Name() string {
	return AdapterTagged
}

// Rows streams the XML tokens in document order.
func (a *TaggedAdapter) Rows(r io.Reader) ([]Row, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		// documents are decoded to UTF-8 by the ingestion layer
		return input, nil
	}

	var rows []Row
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse tagged document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if strings.EqualFold(t.Name.Local, a.schema.Element) {
				fields := make([]string, len(a.schema.Attributes))
				for i, name := range a.schema.Attributes {
					fields[i] = strings.TrimSpace(attr(t, name))
				}
				rows = append(rows, Row{
					Line:   len(rows) + 1,
					Text:   strings.Join(fields, " "),
					Fields: fields,
				})
				continue
			}
			// attribute-only section markers such as <SECAO nome="PREFIXADOS"/>
			var parts []string
			parts = append(parts, t.Name.Local)
			for _, at := range t.Attr {
				parts = append(parts, at.Value)
			}
			rows = append(rows, Row{Line: len(rows) + 1, Text: strings.Join(parts, " "), Fields: []string{t.Name.Local}})
		case xml.CharData:
			if text := strings.TrimSpace(string(t)); text != "" {
				rows = append(rows, Row{Line: len(rows) + 1, Text: text, Fields: []string{text}})
			}
		}
	}
	return rows, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}
	return ""
}
