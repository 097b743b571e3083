package lookup

import (
	"errors"
	"sort"

	"fairrate/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrEmptyGrid    = errors.New("grid has no days")
	ErrNoVertexData = errors.New("no vertex data available")
)

// NearestDay returns the day in days closest to target.
// days must be sorted ascending. On a tie the lower day wins.
// Returns ErrEmptyGrid if days is empty.
func NearestDay(target int, days []int) (int, error) {
	if len(days) == 0 {
		return 0, ErrEmptyGrid
	}

	i := sort.SearchInts(days, target)
	if i == 0 {
		return days[0], nil
	}
	if i == len(days) {
		return days[len(days)-1], nil
	}

	// days[i-1] < target <= days[i]
	if target-days[i-1] <= days[i]-target {
		return days[i-1], nil
	}
	return days[i], nil
}

// CurveDay resolves target to a day on the curve's dense 1..N grid.
func CurveDay(target int, c *domain.Curve) (int, error) {
	n := c.MaxDay()
	if n == 0 {
		return 0, ErrEmptyGrid
	}
	switch {
	case target < 1:
		return 1, nil
	case target > n:
		return n, nil
	}
	return target, nil
}

// PointAt returns the curve point nearest to target.
func PointAt(target int, c *domain.Curve) (domain.CurvePoint, error) {
	day, err := CurveDay(target, c)
	if err != nil {
		return domain.CurvePoint{}, err
	}
	return c.Point(day), nil
}

// VertexNear returns the market vertex whose day is closest to target.
// vertices must be sorted by day. Ties pick the earlier vertex.
func VertexNear(target int, vertices []domain.MarketVertex) (*domain.MarketVertex, error) {
	if len(vertices) == 0 {
		return nil, ErrNoVertexData
	}
	day, err := NearestDay(target, domain.VertexDays(vertices))
	if err != nil {
		return nil, err
	}
	for i := range vertices {
		if vertices[i].Day == day {
			return &vertices[i], nil
		}
	}
	return nil, ErrNoVertexData
}
