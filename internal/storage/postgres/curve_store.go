package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fairrate/internal/domain"
	"fairrate/internal/storage"
)

// CurveStore implements storage.CurveRepository using PostgreSQL.
// Uses three tables:
//   - curves: one header row per reference date
//   - curve_points: dense daily grid
//   - curve_vertices: market vertices the grid was fitted to
type CurveStore struct {
	pool *Pool
}

// NewCurveStore creates a new CurveStore.
func NewCurveStore(pool *Pool) *CurveStore {
	return &CurveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurveRepository = (*CurveStore)(nil)

// Store replaces the curve for its reference date inside one transaction.
// Points and vertices cascade from the deleted header row.
func (s *CurveStore) Store(ctx context.Context, c *domain.Curve) error {
	if err := storage.ValidateCurve(c); err != nil {
		return err
	}

	buildID := c.BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}
	builtAt := c.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}
	refDate := dateValue(c.ReferenceDate)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM curves WHERE reference_date = $1`, refDate); err != nil {
		return fmt.Errorf("delete curve %s: %w", c.ReferenceDate, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO curves (
			reference_date, build_id, method, source, fingerprint, max_day, built_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, refDate, buildID, c.Method.String(), c.Source, c.Fingerprint, c.MaxDay(), builtAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("insert curve %s: %w", c.ReferenceDate, err)
	}

	points := make([][]any, c.Len())
	for day := 1; day <= c.MaxDay(); day++ {
		points[day-1] = []any{refDate, day, c.NominalAt(day), c.RealAt(day), c.ImpliedInflation(day)}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"curve_points"},
		[]string{"reference_date", "day", "nominal_rate", "real_rate", "implied_inflation"},
		pgx.CopyFromRows(points),
	)
	if err != nil {
		return fmt.Errorf("copy curve points %s: %w", c.ReferenceDate, err)
	}

	if len(c.Vertices) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"curve_vertices"},
			[]string{"reference_date", "day", "nominal_rate", "real_rate"},
			pgx.CopyFromSlice(len(c.Vertices), func(i int) ([]any, error) {
				v := c.Vertices[i]
				return []any{refDate, v.Day, v.NominalRate, v.RealRate}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy curve vertices %s: %w", c.ReferenceDate, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListAvailableDates returns stored dates, most recent first.
func (s *CurveStore) ListAvailableDates(ctx context.Context) ([]civil.Date, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT reference_date FROM curves ORDER BY reference_date DESC
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

// Load returns the curve for date in one read-only snapshot.
func (s *CurveStore) Load(ctx context.Context, date civil.Date) (*domain.Curve, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	refDate := dateValue(date)
	c := &domain.Curve{ReferenceDate: date}

	var method string
	var maxDay int
	err = tx.QueryRow(ctx, `
		SELECT build_id, method, source, fingerprint, max_day, built_at
		FROM curves
		WHERE reference_date = $1
	`, refDate).Scan(&c.BuildID, &method, &c.Source, &c.Fingerprint, &maxDay, &c.BuiltAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrCurveNotFound
		}
		return nil, fmt.Errorf("load curve %s: %w", date, err)
	}
	c.Method = domain.InterpolationMethod(method)
	c.BuiltAt = c.BuiltAt.UTC()

	c.Nominal = make([]float64, maxDay)
	c.Real = make([]float64, maxDay)
	rows, err := tx.Query(ctx, `
		SELECT day, nominal_rate, real_rate
		FROM curve_points
		WHERE reference_date = $1
		ORDER BY day ASC
	`, refDate)
	if err != nil {
		return nil, fmt.Errorf("load curve points %s: %w", date, err)
	}
	count := 0
	for rows.Next() {
		var day int
		var nominal, realRate float64
		if err := rows.Scan(&day, &nominal, &realRate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan curve point: %w", err)
		}
		if day < 1 || day > maxDay {
			rows.Close()
			return nil, fmt.Errorf("curve %s: point day %d outside 1..%d", date, day, maxDay)
		}
		c.Nominal[day-1] = nominal
		c.Real[day-1] = realRate
		count++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load curve points %s: %w", date, err)
	}
	if count != maxDay {
		return nil, fmt.Errorf("curve %s: expected %d points, found %d", date, maxDay, count)
	}

	vrows, err := tx.Query(ctx, `
		SELECT day, nominal_rate, real_rate
		FROM curve_vertices
		WHERE reference_date = $1
		ORDER BY day ASC
	`, refDate)
	if err != nil {
		return nil, fmt.Errorf("load curve vertices %s: %w", date, err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v domain.MarketVertex
		if err := vrows.Scan(&v.Day, &v.NominalRate, &v.RealRate); err != nil {
			return nil, fmt.Errorf("scan curve vertex: %w", err)
		}
		c.Vertices = append(c.Vertices, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("load curve vertices %s: %w", date, err)
	}

	return c, nil
}
