// Package ingestion fetches raw market documents.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrFetch is returned when the document could not be retrieved.
	ErrFetch = errors.New("fetch failed")
	// ErrEmptyDocument is returned when the retrieved document has no content.
	ErrEmptyDocument = errors.New("empty document")
)

// Document is one retrieved market document, decoded to UTF-8.
type Document struct {
	Body      []byte
	Name      string // URL or file path
	FetchedAt time.Time
}

// Source provides the raw market document.
type Source interface {
	// Fetch returns the current document. Implementations honour ctx cancellation.
	Fetch(ctx context.Context) (*Document, error)
}

// Document encodings.
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

// decodeBody converts body from the named encoding to UTF-8.
// An empty name keeps bytes that are already valid UTF-8 and treats
// anything else as ISO-8859-1.
func decodeBody(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "utf-8", "utf8":
		return body, nil
	case "latin1", "latin-1", "iso-8859-1":
	case "":
		if utf8.Valid(body) {
			return body, nil
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode latin1: %w", err)
	}
	return out, nil
}

func isBlank(body []byte) bool {
	return len(strings.TrimSpace(string(body))) == 0
}
