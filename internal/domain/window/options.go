package window

import (
	"fmt"
	"strings"
)

// LengthPolicy decides what happens when a capture is shorter than the
// programmed test duration.
type LengthPolicy int

// Length policies.
const (
	// Reject fails the file with model.ErrMalformedTrace.
	Reject LengthPolicy = iota
	// PadZero prepends zero volts until the capture covers the program.
	PadZero
)

func (p LengthPolicy) String() string {
	switch p {
	case Reject:
		return "reject"
	case PadZero:
		return "pad_zero"
	default:
		return fmt.Sprintf("length_policy(%d)", int(p))
	}
}

// ParseLengthPolicy accepts "reject" and "pad_zero" (case-insensitive).
func ParseLengthPolicy(s string) (LengthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return Reject, nil
	case "pad_zero", "pad":
		return PadZero, nil
	default:
		return Reject, fmt.Errorf("unknown length policy: %s", s)
	}
}

// Option applies a configuration option to the Windower.
type Option func(*Windower)

// WithLengthPolicy sets how short captures are handled.
func WithLengthPolicy(p LengthPolicy) Option {
	return func(w *Windower) {
		w.policy = p
	}
}
