package storage

import "errors"

// Storage errors.
var (
	// ErrCurveNotFound is returned when no curve exists for a reference date.
	ErrCurveNotFound = errors.New("curve not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
