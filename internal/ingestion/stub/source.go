// Package stub provides in-memory sources for tests.
package stub

import (
	"context"
	"sync"
	"time"

	"fairrate/internal/ingestion"
)

// Source returns a fixed body, or Err when set, and counts calls.
type Source struct {
	mu    sync.Mutex
	Body  []byte
	Name  string
	Err   error
	calls int
}

// NewSource creates a stub source serving body.
func NewSource(body string) *Source {
	return &Source{Body: []byte(body), Name: "stub"}
}

// Fetch implements ingestion.Source.
func (s *Source) Fetch(ctx context.Context) (*ingestion.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return &ingestion.Document{
		Body:      append([]byte(nil), s.Body...),
		Name:      s.Name,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Calls returns how many times Fetch ran.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
