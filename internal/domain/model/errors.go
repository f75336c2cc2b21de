package model

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel error kinds for the measurement pipeline. These allow errors.Is/As from callers.
var (
	ErrMalformedTrace      = errors.New("malformed trace")
	ErrWindowSelection     = errors.New("window selection failed")
	ErrAlignmentOutOfRange = errors.New("alignment lag out of range")
	ErrDegenerateFit       = errors.New("degenerate circle fit")
	ErrAllFilesFailed      = errors.New("all files failed")
	ErrInvalidKinematics   = errors.New("invalid kinematics")
	ErrSampleRateMismatch  = errors.New("sample rate mismatch")
)

// FileError records a failure of one measurement file at a pipeline stage.
type FileError struct {
	Index int
	Stage string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %d: %s: %v", e.Index, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Kind returns a short label for the sentinel wrapped by err, used for
// metrics labels and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedTrace):
		return "malformed_trace"
	case errors.Is(err, ErrWindowSelection):
		return "window_selection"
	case errors.Is(err, ErrAlignmentOutOfRange):
		return "alignment_out_of_range"
	case errors.Is(err, ErrDegenerateFit):
		return "degenerate_fit"
	case errors.Is(err, ErrSampleRateMismatch):
		return "sample_rate_mismatch"
	case errors.Is(err, ErrInvalidKinematics):
		return "invalid_kinematics"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
