package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Step is the lag of one profile relative to its predecessor.
type Step struct {
	Lag int
	Err error
}

// SequenceAligner registers the profiles of a batch to the angular origin of
// the first one by accumulating consecutive lags.
type SequenceAligner struct {
	settings
}

// NewSequenceAligner creates a SequenceAligner.
func NewSequenceAligner(opts ...Option) *SequenceAligner {
	return &SequenceAligner{settings: newSettings(opts)}
}

// Step returns the lag of next relative to prev, both zero-meaned first.
// Lags beyond the configured bound are returned as errors.
func (a *SequenceAligner) Step(prev, next []float64) Step {
	lag, err := Lag(ZeroMean(prev), ZeroMean(next))
	if err != nil {
		return Step{Err: err}
	}
	if err := a.check(lag, len(prev)); err != nil {
		return Step{Lag: lag, Err: err}
	}
	return Step{Lag: lag}
}

// Chain turns consecutive steps into cumulative lags. steps[i] holds the
// step from profiles[i] to profiles[i+1] and may be nil, in which case steps
// are computed here. Profile 0 always has lag 0. A profile whose step is
// rejected gets a non-nil entry in rejected, and the chain continues from
// the last accepted profile.
func (a *SequenceAligner) Chain(profiles [][]float64, steps []Step) (cum []int, rejected []error) {
	n := len(profiles)
	cum = make([]int, n)
	rejected = make([]error, n)
	last := 0
	for j := 1; j < n; j++ {
		var s Step
		if j == last+1 && steps != nil {
			s = steps[last]
		} else {
			s = a.Step(profiles[last], profiles[j])
		}
		if s.Err != nil {
			rejected[j] = s.Err
			continue
		}
		cum[j] = cum[last] + s.Lag
		last = j
	}
	return cum, rejected
}

// Register shifts each profile back by its cumulative lag.
func Register(profiles [][]float64, cum []int) [][]float64 {
	out := make([][]float64, len(profiles))
	for i, p := range profiles {
		out[i] = Roll(p, -cum[i])
	}
	return out
}

// Extraction is one revolution cut from every registered row.
type Extraction struct {
	Start int // fiducial index in the registered rows
	Rows  [][]float64
	Theta []float64
}

// Extract cuts revolution samples from every row, starting at the index of
// minimum radius within the first revolution of the first row.
func Extract(rows [][]float64, revolution int) (Extraction, error) {
	if len(rows) == 0 {
		return Extraction{}, fmt.Errorf("%w: no rows", ErrShortProfile)
	}
	if revolution < 1 || len(rows[0]) < revolution {
		return Extraction{}, fmt.Errorf("%w: row of %d samples, revolution of %d", ErrShortProfile, len(rows[0]), revolution)
	}
	start := floats.MinIdx(rows[0][:revolution])
	ex := Extraction{
		Start: start,
		Rows:  make([][]float64, len(rows)),
		Theta: Theta(revolution),
	}
	for i, r := range rows {
		if len(r) < start+revolution {
			return Extraction{}, fmt.Errorf("%w: row %d has %d samples, need %d", ErrShortProfile, i, len(r), start+revolution)
		}
		ex.Rows[i] = append([]float64(nil), r[start:start+revolution]...)
	}
	return ex, nil
}

// Theta returns n angles spanning one full turn from 0.
func Theta(n int) []float64 {
	th := make([]float64, n)
	for j := range th {
		th[j] = 2 * math.Pi * float64(j) / float64(n)
	}
	return th
}
