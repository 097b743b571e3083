package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"fairrate/internal/domain"
	"fairrate/internal/logger"
	"fairrate/internal/storage"
)

// CurveStore implements storage.CurveRepository using ClickHouse.
//
// Points and vertices are written under a fresh build_id. The curve only
// becomes visible when its curve_builds row is inserted with a higher
// version, so readers never observe a partially written grid.
type CurveStore struct {
	conn  *Conn
	clock func() time.Time
	log   *logger.Entry
}

// NewCurveStore creates a new CurveStore.
func NewCurveStore(conn *Conn) *CurveStore {
	return &CurveStore{
		conn:  conn,
		clock: time.Now,
		log:   logger.Discard().WithComponent("clickhouse"),
	}
}

// WithLogger sets the logger used for pruning failures.
func (s *CurveStore) WithLogger(log *logger.Log) *CurveStore {
	if log != nil {
		s.log = log.WithComponent("clickhouse")
	}
	return s
}

// Compile-time interface check.
var _ storage.CurveRepository = (*CurveStore)(nil)

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Store writes the curve under a new build and activates it.
func (s *CurveStore) Store(ctx context.Context, c *domain.Curve) error {
	if err := storage.ValidateCurve(c); err != nil {
		return err
	}

	buildID := uuid.NewString()
	builtAt := c.BuiltAt
	if builtAt.IsZero() {
		builtAt = s.clock().UTC()
	}
	refDate := c.ReferenceDate.In(time.UTC)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO curve_points (
			reference_date, build_id, day, nominal_rate, real_rate, implied_inflation
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare points batch: %w", err)
	}
	for day := 1; day <= c.MaxDay(); day++ {
		err = batch.Append(refDate, buildID, uint32(day), c.NominalAt(day), c.RealAt(day), c.ImpliedInflation(day))
		if err != nil {
			return fmt.Errorf("append point: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send points batch: %w", err)
	}

	if len(c.Vertices) > 0 {
		batch, err = s.conn.PrepareBatch(ctx, `
			INSERT INTO curve_vertices (reference_date, build_id, day, nominal_rate, real_rate)
		`)
		if err != nil {
			return fmt.Errorf("prepare vertices batch: %w", err)
		}
		for _, v := range c.Vertices {
			if err := batch.Append(refDate, buildID, uint32(v.Day), v.NominalRate, v.RealRate); err != nil {
				return fmt.Errorf("append vertex: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("send vertices batch: %w", err)
		}
	}

	previous, err := s.activeBuild(ctx, c.ReferenceDate)
	if err != nil {
		return err
	}

	batch, err = s.conn.PrepareBatch(ctx, `
		INSERT INTO curve_builds (
			reference_date, build_id, method, source, fingerprint, max_day, built_at, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare build batch: %w", err)
	}
	err = batch.Append(refDate, buildID, c.Method.String(), c.Source, c.Fingerprint,
		uint32(c.MaxDay()), builtAt, uint64(s.clock().UnixNano()))
	if err != nil {
		return fmt.Errorf("append build: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("activate build %s: %w", buildID, err)
	}

	// Only the build this call replaced is pruned. Builds written by a
	// concurrent Store for the same date may not be active yet.
	if previous != "" {
		s.prune(ctx, c.ReferenceDate, previous)
	}

	return nil
}

// activeBuild returns the build_id currently visible for date, or "".
func (s *CurveStore) activeBuild(ctx context.Context, date civil.Date) (string, error) {
	var buildID string
	err := s.conn.QueryRow(ctx, `
		SELECT build_id FROM curve_builds FINAL WHERE reference_date = toDate(?)
	`, date.String()).Scan(&buildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read active build %s: %w", date, err)
	}
	return buildID, nil
}

// prune deletes the rows of a superseded build. Failures leave
// unreachable rows behind and are logged, not returned.
func (s *CurveStore) prune(ctx context.Context, date civil.Date, buildID string) {
	for _, table := range []string{"curve_points", "curve_vertices"} {
		err := s.conn.Exec(ctx, fmt.Sprintf(
			"ALTER TABLE %s DELETE WHERE reference_date = toDate(?) AND build_id = ?", table),
			date.String(), buildID)
		if err != nil {
			s.log.WithError(err).WithFields(logger.Fields{
				"table":          table,
				"reference_date": date.String(),
				"build_id":       buildID,
			}).Warn("prune superseded build failed")
		}
	}
}

// ListAvailableDates returns stored dates, most recent first.
func (s *CurveStore) ListAvailableDates(ctx context.Context) ([]civil.Date, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT reference_date FROM curve_builds FINAL ORDER BY reference_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list curve dates: %w", err)
	}
	defer rows.Close()

	var dates []civil.Date
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan curve date: %w", err)
		}
		dates = append(dates, civil.DateOf(t))
	}
	return dates, rows.Err()
}

// Load returns the active build for date.
func (s *CurveStore) Load(ctx context.Context, date civil.Date) (*domain.Curve, error) {
	c := &domain.Curve{ReferenceDate: date}

	var method string
	var maxDay uint32
	err := s.conn.QueryRow(ctx, `
		SELECT build_id, method, source, fingerprint, max_day, built_at
		FROM curve_builds FINAL
		WHERE reference_date = toDate(?)
	`, date.String()).Scan(&c.BuildID, &method, &c.Source, &c.Fingerprint, &maxDay, &c.BuiltAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrCurveNotFound
		}
		return nil, fmt.Errorf("load curve %s: %w", date, err)
	}
	c.Method = domain.InterpolationMethod(method)
	c.BuiltAt = c.BuiltAt.UTC()

	rows, err := s.conn.Query(ctx, `
		SELECT day, nominal_rate, real_rate
		FROM curve_points
		WHERE reference_date = toDate(?) AND build_id = ?
		ORDER BY day ASC
	`, date.String(), c.BuildID)
	if err != nil {
		return nil, fmt.Errorf("load curve points %s: %w", date, err)
	}
	c.Nominal, c.Real, err = scanGrid(rows, int(maxDay))
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("curve %s: %w", date, err)
	}

	vrows, err := s.conn.Query(ctx, `
		SELECT day, nominal_rate, real_rate
		FROM curve_vertices
		WHERE reference_date = toDate(?) AND build_id = ?
		ORDER BY day ASC
	`, date.String(), c.BuildID)
	if err != nil {
		return nil, fmt.Errorf("load curve vertices %s: %w", date, err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var day uint32
		var v domain.MarketVertex
		if err := vrows.Scan(&day, &v.NominalRate, &v.RealRate); err != nil {
			return nil, fmt.Errorf("scan curve vertex: %w", err)
		}
		v.Day = int(day)
		c.Vertices = append(c.Vertices, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("load curve vertices %s: %w", date, err)
	}

	return c, nil
}

// scanGrid reads (day, nominal, real) rows into dense arrays of size n.
func scanGrid(rows chRows, n int) ([]float64, []float64, error) {
	nominal := make([]float64, n)
	reals := make([]float64, n)
	count := 0
	for rows.Next() {
		var day uint32
		var nom, re float64
		if err := rows.Scan(&day, &nom, &re); err != nil {
			return nil, nil, fmt.Errorf("scan point: %w", err)
		}
		if day < 1 || int(day) > n {
			return nil, nil, fmt.Errorf("point day %d outside 1..%d", day, n)
		}
		nominal[day-1] = nom
		reals[day-1] = re
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if count != n {
		return nil, nil, fmt.Errorf("expected %d points, found %d", n, count)
	}
	return nominal, reals, nil
}
