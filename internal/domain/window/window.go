// Package window extracts the steady-contact sampling window of each
// traverse direction from a raw voltage capture.
//
// The capture is smoothed, rescaled to the full-scale range, trimmed to the
// programmed duration and cut into 2 x len(y-steps) sections. Within each
// direction the section whose clipped core sits closest to mid-scale wins.
package window

import (
	"fmt"

	"github.com/okian/roundness/internal/domain/model"
	"gonum.org/v1/gonum/floats"
)

const midScale = 0.5 // fraction of full scale used as the contact reference

// Windower selects one window per direction from a capture.
type Windower struct {
	kin    model.Kinematics
	policy LengthPolicy
}

// New creates a Windower for the given program.
func New(kin model.Kinematics, opts ...Option) (*Windower, error) {
	if err := kin.Validate(); err != nil {
		return nil, err
	}
	w := &Windower{kin: kin, policy: Reject}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Select returns the winning positive and negative core windows of tr.
func (w *Windower) Select(tr model.Trace) (model.Selection, error) {
	if err := tr.Validate(); err != nil {
		return model.Selection{}, err
	}
	layout, err := w.kin.Layout(tr.SampleRate)
	if err != nil {
		return model.Selection{}, err
	}

	v := Smooth(tr.Samples, w.kin.FilterSize)
	if err := Rescale(v, w.kin.FullScaleVolts); err != nil {
		return model.Selection{}, err
	}
	v, err = w.trim(v, layout.TotalSamples)
	if err != nil {
		return model.Selection{}, err
	}
	set, err := Partition(v, layout)
	if err != nil {
		return model.Selection{}, err
	}

	ref := w.kin.FullScaleVolts * midScale
	return model.Selection{
		Positive: w.window(set, model.Positive, layout, ref),
		Negative: w.window(set, model.Negative, layout, ref),
	}, nil
}

// trim keeps the trailing total samples. Leading samples are discarded; a
// short capture is handled by the length policy.
func (w *Windower) trim(v []float64, total int) ([]float64, error) {
	if len(v) >= total {
		return v[len(v)-total:], nil
	}
	if w.policy != PadZero {
		return nil, fmt.Errorf("%w: capture has %d samples, program needs %d", model.ErrMalformedTrace, len(v), total)
	}
	out := make([]float64, total)
	copy(out[total-len(v):], v)
	return out, nil
}

func (w *Windower) window(set *model.SectionSet, d model.Direction, l model.Layout, ref float64) model.Window {
	best, _ := pick(set, d, l, ref)
	core := set.Section(d, best)[l.ClipSamples : l.ClipSamples+l.CoreSamples]
	return model.Window{
		Direction: d,
		Section:   best,
		YStep:     w.kin.YSteps[best],
		Samples:   append([]float64(nil), core...),
	}
}

// Partition cuts a trimmed capture into sections. Negative-direction sections
// start after the reversal gap.
func Partition(v []float64, l model.Layout) (*model.SectionSet, error) {
	if len(v) != l.TotalSamples {
		return nil, fmt.Errorf("%w: %d samples, layout needs %d", model.ErrMalformedTrace, len(v), l.TotalSamples)
	}
	set, err := model.NewSectionSet(l.Steps, l.SectionSamples)
	if err != nil {
		return nil, err
	}
	n := l.SectionSamples
	for i := 0; i < l.Steps; i++ {
		copy(set.Section(model.Positive, i), v[i*n:(i+1)*n])
		start := (l.Steps+i)*n + l.GapSamples
		copy(set.Section(model.Negative, i), v[start:start+n])
	}
	return set, nil
}

// pick returns the section of direction d whose core has the smallest sum of
// squared deviation from ref. Ties keep the lower index.
func pick(set *model.SectionSet, d model.Direction, l model.Layout, ref float64) (int, float64) {
	best, bestDev := -1, 0.0
	for i := 0; i < set.Steps(); i++ {
		core := set.Section(d, i)[l.ClipSamples : l.ClipSamples+l.CoreSamples]
		var dev float64
		for _, x := range core {
			dev += (x - ref) * (x - ref)
		}
		if best < 0 || dev < bestDev {
			best, bestDev = i, dev
		}
	}
	return best, bestDev
}

// Smooth applies a centred moving average of the given size with reflected
// boundaries (d c b a | a b c d | d c b a). For even sizes the window covers
// size/2 samples before and size/2-1 after the output sample.
func Smooth(x []float64, size int) []float64 {
	out := make([]float64, len(x))
	if size <= 1 || len(x) == 0 {
		copy(out, x)
		return out
	}
	n := len(x)
	half := size / 2
	at := func(j int) float64 { return x[reflect(j, n)] }

	var sum float64
	for j := -half; j < size-half; j++ {
		sum += at(j)
	}
	w := float64(size)
	out[0] = sum / w
	for i := 1; i < n; i++ {
		sum += at(i+size-half-1) - at(i-half-1)
		out[i] = sum / w
	}
	return out
}

func reflect(j, n int) int {
	period := 2 * n
	m := ((j % period) + period) % period
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// Rescale maps the observed [min, max] of v linearly onto [0, fullScale] in place.
func Rescale(v []float64, fullScale float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty capture", model.ErrWindowSelection)
	}
	lo, hi := floats.Min(v), floats.Max(v)
	span := hi - lo
	if !(span > 0) {
		return fmt.Errorf("%w: zero voltage range", model.ErrWindowSelection)
	}
	for i, x := range v {
		v[i] = fullScale * ((x - lo) / span)
	}
	return nil
}
