package archive

import (
	"context"
	"fmt"
	"path"
	"sync"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"fairrate/internal/domain"
)

// Key returns <prefix>/<yyyy>/<mm>/curve_<yyyy-mm-dd>.parquet.
func Key(prefix string, date civil.Date) string {
	name := fmt.Sprintf("curve_%s.parquet", date)
	return path.Join(prefix, fmt.Sprintf("%04d", date.Year), fmt.Sprintf("%02d", int(date.Month)), name)
}

// Archiver encodes curves once and writes them to every sink.
type Archiver struct {
	prefix string
	sinks  []Sink
}

// NewArchiver creates an archiver writing under prefix.
func NewArchiver(prefix string, sinks ...Sink) *Archiver {
	return &Archiver{prefix: prefix, sinks: sinks}
}

// Enabled reports whether any sink is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && len(a.sinks) > 0
}

// Archive writes c to all sinks concurrently and returns the locations
// written. The first sink error cancels the others.
func (a *Archiver) Archive(ctx context.Context, c *domain.Curve) ([]string, error) {
	if !a.Enabled() {
		return nil, nil
	}

	data, err := EncodeParquet(c)
	if err != nil {
		return nil, fmt.Errorf("encode curve %s: %w", c.ReferenceDate, err)
	}
	key := Key(a.prefix, c.ReferenceDate)

	var mu sync.Mutex
	var locations []string
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range a.sinks {
		sink := sink
		g.Go(func() error {
			loc, err := sink.Put(gctx, key, data)
			if err != nil {
				return err
			}
			mu.Lock()
			locations = append(locations, loc)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return locations, fmt.Errorf("archive curve %s: %w", c.ReferenceDate, err)
	}
	return locations, nil
}
