package align

import (
	"fmt"
	"math"

	"github.com/okian/roundness/internal/domain/model"
)

// PairAligner merges the positive and negative windows of one file.
type PairAligner struct {
	settings
}

// NewPairAligner creates a PairAligner.
func NewPairAligner(opts ...Option) *PairAligner {
	return &PairAligner{settings: newSettings(opts)}
}

// Merge estimates the lag of neg relative to pos, shifts neg back by it and
// returns the element-wise mean of the two sequences.
func (a *PairAligner) Merge(fileIndex int, pos, neg model.RadiusWindow) (model.Profile, error) {
	if len(pos.Radius) != len(neg.Radius) {
		return model.Profile{}, fmt.Errorf("%w: positive %d, negative %d", ErrLengthMismatch, len(pos.Radius), len(neg.Radius))
	}
	lag, err := Lag(ZeroMean(pos.Radius), ZeroMean(neg.Radius))
	if err != nil {
		return model.Profile{}, err
	}
	if err := a.check(lag, len(pos.Radius)); err != nil {
		return model.Profile{}, err
	}
	shifted := Roll(neg.Radius, -lag)
	merged := make([]float64, len(shifted))
	for i := range merged {
		merged[i] = (pos.Radius[i] + shifted[i]) / 2
	}
	return model.Profile{FileIndex: fileIndex, PairLag: lag, Radius: merged}, nil
}

func (s settings) check(lag, n int) error {
	if s.maxLagFraction <= 0 {
		return nil
	}
	if bound := s.maxLagFraction * float64(n); math.Abs(float64(lag)) > bound {
		return fmt.Errorf("%w: lag %d exceeds %.0f of %d samples", model.ErrAlignmentOutOfRange, lag, bound, n)
	}
	return nil
}
