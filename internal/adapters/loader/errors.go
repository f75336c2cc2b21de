package loader

import "errors"

// Sentinel kinds for loader errors.
var (
	ErrOutOfRange = errors.New("trace index out of range")
	ErrNoTraces   = errors.New("no trace files found")
)
