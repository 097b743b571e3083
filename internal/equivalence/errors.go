package equivalence

import "errors"

// Errors returned by the engine.
var (
	ErrInvalidBenchmark  = errors.New("invalid benchmark")
	ErrInvalidTenor      = errors.New("invalid tenor")
	ErrUnknownIndexation = errors.New("unknown indexation")
)
