package extraction

import "errors"

var (
	// ErrParse is returned when a document yields fewer than domain.MinVertices clean vertices.
	ErrParse = errors.New("parse error: insufficient clean vertices")

	// ErrUnknownAdapter is returned when no adapter is registered under a name.
	ErrUnknownAdapter = errors.New("unknown document adapter")
)
