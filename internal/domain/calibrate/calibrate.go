// Package calibrate converts probe voltage windows to physical radius.
package calibrate

import (
	"github.com/okian/roundness/internal/domain/model"
)

// Calibrator applies a fixed polynomial calibration. It holds no mutable
// state and is safe for concurrent use.
type Calibrator struct {
	cal model.Calibration
}

// New returns a Calibrator for cal. The coefficients are copied.
func New(cal model.Calibration) *Calibrator {
	cal.Coefficients = append([]float64(nil), cal.Coefficients...)
	return &Calibrator{cal: cal}
}

// Radius maps every voltage sample of w to
// polyval(v) - constant + diameter/2 + yStep.
func (c *Calibrator) Radius(w model.Window) model.RadiusWindow {
	offset := -c.cal.Constant + c.cal.ProbeDiameter/2 + w.YStep
	r := make([]float64, len(w.Samples))
	for i, v := range w.Samples {
		r[i] = Polyval(c.cal.Coefficients, v) + offset
	}
	return model.RadiusWindow{Direction: w.Direction, YStep: w.YStep, Radius: r}
}

// Polyval evaluates the polynomial with coefficients p (highest order first)
// at x using Horner's scheme.
func Polyval(p []float64, x float64) float64 {
	var y float64
	for _, c := range p {
		y = y*x + c
	}
	return y
}
