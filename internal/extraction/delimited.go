package extraction

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DelimitedAdapter splits a text document into lines and each line on a
// single separator, as in the ANBIMA "Curva Zero" download:
//
//	Vertices;ETTJ IPCA;ETTJ PREF;Inflação Implícita
//	252;6,5012;13,0021;6,1014
type DelimitedAdapter struct {
	sep rune
}

// NewDelimitedAdapter creates an adapter splitting on sep.
func NewDelimitedAdapter(sep rune) *DelimitedAdapter {
	return &DelimitedAdapter{sep: sep}
}

// Name returns the configuration key.
func (a *DelimitedAdapter) Name() string {
	return AdapterDelimited
}

// Rows returns one row per line. Lines without the separator come back
// with a single field so section headers stay visible to the extractor.
func (a *DelimitedAdapter) Rows(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows []Row
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		parts := strings.Split(text, string(a.sep))
		fields := make([]string, len(parts))
		for i, p := range parts {
			fields[i] = strings.TrimSpace(p)
		}
		rows = append(rows, Row{Line: line, Text: strings.TrimSpace(text), Fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan delimited document: %w", err)
	}
	return rows, nil
}
