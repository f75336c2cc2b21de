// Package model contains domain models passed between pipeline stages.
package model

import (
	"fmt"
	"math"
)

// Trace is one raw voltage capture as returned by the external loader.
// Samples are read-only to the pipeline.
type Trace struct {
	Samples    []float64
	SampleRate float64 // Hz
}

// Validate rejects empty captures, non-positive sample rates and non-finite samples.
func (t Trace) Validate() error {
	if len(t.Samples) == 0 {
		return fmt.Errorf("%w: no samples", ErrMalformedTrace)
	}
	if t.SampleRate <= 0 || math.IsNaN(t.SampleRate) || math.IsInf(t.SampleRate, 0) {
		return fmt.Errorf("%w: sample rate %v", ErrMalformedTrace, t.SampleRate)
	}
	for i, v := range t.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite sample at %d", ErrMalformedTrace, i)
		}
	}
	return nil
}
