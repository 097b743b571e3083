package extraction

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Row is one candidate record produced by an Adapter.
type Row struct {
	Line   int      // 1-based position in the document
	Text   string   // raw row text, used for header and terminator detection
	Fields []string // cell values, trimmed
}

// Blank reports whether the row carries no text at all.
func (r Row) Blank() bool {
	return strings.TrimSpace(r.Text) == "" && len(nonEmpty(r.Fields)) == 0
}

// Adapter reduces one physical document format to rows.
type Adapter interface {
	// Name is the configuration key of the adapter.
	Name() string

	// Rows reads the whole document and returns its rows in document order.
	Rows(r io.Reader) ([]Row, error)
}

// Adapter names accepted by AdapterFor.
const (
	AdapterDelimited = "delimited"
	AdapterTabular   = "tabular"
	AdapterTagged    = "tagged"
)

var adapterFactories = map[string]func() Adapter{
	AdapterDelimited: func() Adapter { return NewDelimitedAdapter(';') },
	AdapterTabular:   func() Adapter { return NewTabularAdapter() },
	AdapterTagged:    func() Adapter { return NewTaggedAdapter(DefaultTaggedSchema()) },
}

// AdapterFor returns the adapter registered under name with its default settings.
func AdapterFor(name string) (Adapter, error) {
	factory, ok := adapterFactories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownAdapter, name, strings.Join(AdapterNames(), ", "))
	}
	return factory(), nil
}

// AdapterNames lists the registered adapter names, sorted.
func AdapterNames() []string {
	names := make([]string, 0, len(adapterFactories))
	for name := range adapterFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nonEmpty(fields []string) []string {
	var out []string
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}
