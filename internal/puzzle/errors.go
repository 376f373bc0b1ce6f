package puzzle

import "errors"

var (
	// ErrAnalysisTimeout means the monitor stopped a search. The position is abandoned.
	ErrAnalysisTimeout = errors.New("analysis timed out")

	// ErrMalformedInput means an input record cannot be used. The line is skipped.
	ErrMalformedInput = errors.New("malformed input")
)
