package circlefit

import (
	"errors"
	"math"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/roundness/internal/domain/align"
	"github.com/okian/roundness/internal/domain/model"
)

// offsetRow returns the radius seen from the origin of a circle of radius r
// centred at (cx, cy), sampled at theta.
func offsetRow(r, cx, cy float64, theta []float64) []float64 {
	row := make([]float64, len(theta))
	for i, th := range theta {
		s, c := math.Sincos(th)
		uc := s*cx + c*cy
		row[i] = uc + math.Sqrt(uc*uc-(cx*cx+cy*cy)+r*r)
	}
	return row
}

func TestHyperFit(t *testing.T) {
	convey.Convey("Given points on a circle", t, func() {
		theta := align.Theta(360)
		xs, ys := Points(offsetRow(25, 0.1, -0.05, theta), theta)

		convey.Convey("When fitting", func() {
			c, err := HyperFit(xs, ys)

			convey.Convey("Then centre and radius are recovered", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(c.X, convey.ShouldAlmostEqual, 0.1, 1e-9)
				convey.So(c.Y, convey.ShouldAlmostEqual, -0.05, 1e-9)
				convey.So(c.R, convey.ShouldAlmostEqual, 25, 1e-9)
			})
		})
	})

	convey.Convey("Given an arc of a circle", t, func() {
		n := 50
		xs, ys := make([]float64, n), make([]float64, n)
		for i := range xs {
			th := math.Pi / 2 * float64(i) / float64(n-1)
			xs[i] = 3 + 2*math.Cos(th)
			ys[i] = -1 + 2*math.Sin(th)
		}

		convey.Convey("Then the full circle is still recovered", func() {
			c, err := HyperFit(xs, ys)
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.X, convey.ShouldAlmostEqual, 3, 1e-8)
			convey.So(c.Y, convey.ShouldAlmostEqual, -1, 1e-8)
			convey.So(c.R, convey.ShouldAlmostEqual, 2, 1e-8)
		})
	})

	convey.Convey("Given degenerate inputs", t, func() {
		convey.Convey("Then collinear points are rejected", func() {
			_, err := HyperFit([]float64{0, 1, 2, 3}, []float64{0, 2, 4, 6})
			convey.So(errors.Is(err, model.ErrDegenerateFit), convey.ShouldBeTrue)
		})

		convey.Convey("Then coincident points are rejected", func() {
			_, err := HyperFit([]float64{1, 1, 1}, []float64{2, 2, 2})
			convey.So(errors.Is(err, model.ErrDegenerateFit), convey.ShouldBeTrue)
		})

		convey.Convey("Then fewer than three points are rejected", func() {
			_, err := HyperFit([]float64{0, 1}, []float64{1, 0})
			convey.So(errors.Is(err, model.ErrDegenerateFit), convey.ShouldBeTrue)
		})

		convey.Convey("Then mismatched lengths are rejected", func() {
			_, err := HyperFit([]float64{0, 1, 2}, []float64{1, 0})
			convey.So(errors.Is(err, model.ErrDegenerateFit), convey.ShouldBeTrue)
		})
	})
}

func TestFit(t *testing.T) {
	convey.Convey("Given a perfectly round centred row", t, func() {
		theta := align.Theta(100)
		row := make([]float64, len(theta))
		for i := range row {
			row[i] = 25
		}

		convey.Convey("When fitting", func() {
			m, err := Fit(4, row, theta)

			convey.Convey("Then runout and form error vanish", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.Valid, convey.ShouldBeTrue)
				convey.So(m.FileIndex, convey.ShouldEqual, 4)
				convey.So(m.MeanRadius, convey.ShouldAlmostEqual, 25, 1e-9)
				convey.So(m.Runout, convey.ShouldAlmostEqual, 0, 1e-9)
				convey.So(m.PeakRadius, convey.ShouldEqual, 25)
				convey.So(m.FormError, convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given an eccentric row", t, func() {
		theta := align.Theta(100)
		row := offsetRow(2.5, 0, -0.2, theta)

		convey.Convey("When fitting", func() {
			m, err := Fit(0, row, theta)

			convey.Convey("Then runout is twice the eccentricity", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(m.Runout, convey.ShouldAlmostEqual, 0.4, 1e-9)
				convey.So(m.CenterY, convey.ShouldAlmostEqual, -0.2, 1e-9)
				convey.So(m.MeanRadius, convey.ShouldAlmostEqual, 2.5, 1e-9)
				convey.So(m.PeakRadius, convey.ShouldAlmostEqual, 2.7, 1e-9)
				convey.So(m.FormError, convey.ShouldAlmostEqual, 0.4, 1e-9)
			})
		})
	})

	convey.Convey("Given a row of zeros", t, func() {
		theta := align.Theta(10)
		m, err := Fit(2, make([]float64, 10), theta)

		convey.Convey("Then the fit is degenerate and keeps the file index", func() {
			convey.So(errors.Is(err, model.ErrDegenerateFit), convey.ShouldBeTrue)
			convey.So(m.FileIndex, convey.ShouldEqual, 2)
			convey.So(m.Valid, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given a row and theta of different lengths", t, func() {
		_, err := Fit(0, []float64{1, 2, 3}, align.Theta(4))

		convey.Convey("Then it fails", func() {
			convey.So(errors.Is(err, model.ErrDegenerateFit), convey.ShouldBeTrue)
		})
	})
}
