package ingestion

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FileSource reads the document from a local file.
type FileSource struct {
	Path     string
	Encoding string // latin1, utf-8, or empty to detect
	clock    func() time.Time
}

// NewFileSource creates a source for path. Empty encoding detects UTF-8
// and falls back to ISO-8859-1.
func NewFileSource(path, encoding string) *FileSource {
	return &FileSource{Path: path, Encoding: encoding, clock: time.Now}
}

// Fetch reads the file.
func (s *FileSource) Fetch(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	body, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if isBlank(body) {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, s.Path)
	}
	decoded, err := decodeBody(body, s.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	clock := s.clock
	if clock == nil {
		clock = time.Now
	}
	return &Document{Body: decoded, Name: s.Path, FetchedAt: clock().UTC()}, nil
}
