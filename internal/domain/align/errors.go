package align

import "errors"

// Sentinel kinds for alignment input errors.
var (
	ErrLengthMismatch = errors.New("sequence length mismatch")
	ErrShortProfile   = errors.New("profile shorter than extraction window")
)
