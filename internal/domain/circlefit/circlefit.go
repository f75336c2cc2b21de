// Package circlefit fits circles to polar radius profiles and derives
// roundness metrics from the fit.
package circlefit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/roundness/internal/domain/model"
)

const (
	maxNewtonIterations = 99
	degenerateTolerance = 1e-12
)

// Circle is a fitted circle in the measurement plane.
type Circle struct {
	X, Y float64 // centre
	R    float64
}

// HyperFit fits a circle to the points (xs[i], ys[i]) with the algebraic
// Hyper fit: the characteristic polynomial of the centred moment matrix is
// solved by Newton iteration from zero.
func HyperFit(xs, ys []float64) (Circle, error) {
	n := len(xs)
	if n != len(ys) {
		return Circle{}, fmt.Errorf("%w: %d x values, %d y values", model.ErrDegenerateFit, n, len(ys))
	}
	if n < 3 {
		return Circle{}, fmt.Errorf("%w: %d points", model.ErrDegenerateFit, n)
	}
	mx, my := stat.Mean(xs, nil), stat.Mean(ys, nil)

	var mxx, myy, mxy, mxz, myz, mzz float64
	for i := range xs {
		xi, yi := xs[i]-mx, ys[i]-my
		zi := xi*xi + yi*yi
		mxx += xi * xi
		myy += yi * yi
		mxy += xi * yi
		mxz += xi * zi
		myz += yi * zi
		mzz += zi * zi
	}
	fn := float64(n)
	mxx, myy, mxy, mxz, myz, mzz = mxx/fn, myy/fn, mxy/fn, mxz/fn, myz/fn, mzz/fn

	mz := mxx + myy
	covXY := mxx*myy - mxy*mxy
	varZ := mzz - mz*mz
	if mz <= 0 || math.Abs(covXY) <= degenerateTolerance*mz*mz {
		return Circle{}, fmt.Errorf("%w: points are collinear or coincident", model.ErrDegenerateFit)
	}

	a2 := 4*covXY - 3*mz*mz - mzz
	a1 := varZ*mz + 4*covXY*mz - mxz*mxz - myz*myz
	a0 := mxz*(mxz*myy-myz*mxy) + myz*(myz*mxx-mxz*mxy) - varZ*covXY

	x, y := 0.0, a0
	for range maxNewtonIterations {
		dy := a1 + x*(2*a2+16*x*x)
		xn := x - y/dy
		if xn == x || math.IsNaN(xn) || math.IsInf(xn, 0) {
			break
		}
		yn := a0 + xn*(a1+xn*(a2+4*xn*xn))
		if math.Abs(yn) >= math.Abs(y) {
			break
		}
		x, y = xn, yn
	}

	det := x*x - x*mz + covXY
	if math.Abs(det) <= degenerateTolerance*mz*mz {
		return Circle{}, fmt.Errorf("%w: singular moment matrix", model.ErrDegenerateFit)
	}
	xc := (mxz*(myy-x) - myz*mxy) / det / 2
	yc := (myz*(mxx-x) - mxz*mxy) / det / 2
	c := Circle{
		X: xc + mx,
		Y: yc + my,
		R: math.Sqrt(math.Abs(xc*xc + yc*yc + mz)),
	}
	if !finite(c.X) || !finite(c.Y) || !finite(c.R) {
		return Circle{}, fmt.Errorf("%w: non-finite result", model.ErrDegenerateFit)
	}
	return c, nil
}

// Points converts a polar profile to Cartesian points with
// x = r*sin(theta) and y = r*cos(theta).
func Points(radius, theta []float64) (xs, ys []float64) {
	xs = make([]float64, len(radius))
	ys = make([]float64, len(radius))
	for i, r := range radius {
		s, c := math.Sincos(theta[i])
		xs[i] = r * s
		ys[i] = r * c
	}
	return xs, ys
}

// Fit fits a circle to one aligned row and returns its roundness metrics.
// Runout is twice the centre offset from the rotation axis, form error is
// the peak-to-valley of the row.
func Fit(fileIndex int, row, theta []float64) (model.Roundness, error) {
	if len(row) != len(theta) {
		return model.Roundness{FileIndex: fileIndex}, fmt.Errorf("%w: row of %d samples, theta of %d", model.ErrDegenerateFit, len(row), len(theta))
	}
	if len(row) == 0 {
		return model.Roundness{FileIndex: fileIndex}, fmt.Errorf("%w: empty row", model.ErrDegenerateFit)
	}
	c, err := HyperFit(Points(row, theta))
	if err != nil {
		return model.Roundness{FileIndex: fileIndex}, err
	}
	peak, valley := floats.Max(row), floats.Min(row)
	return model.Roundness{
		FileIndex:  fileIndex,
		MeanRadius: c.R,
		Runout:     2 * math.Hypot(c.X, c.Y),
		PeakRadius: peak,
		FormError:  peak - valley,
		CenterX:    c.X,
		CenterY:    c.Y,
		Valid:      true,
	}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
