package service_test

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/roundness/internal/app"
	"github.com/okian/roundness/internal/adapters/loader"
	"github.com/okian/roundness/internal/adapters/repository"
	"github.com/okian/roundness/internal/domain/model"
	"github.com/okian/roundness/internal/domain/window"
	"github.com/okian/roundness/internal/synth"
	"github.com/okian/roundness/pkg/logger"
)

func init() {
	if err := logger.InitWithWriter(io.Discard, "text"); err != nil {
		panic(err)
	}
}

const eccentricity = 0.2

// unitKinematics is the default program with a unit-slope probe:
// radius = volts + y-step.
func unitKinematics() model.Kinematics {
	k := model.DefaultKinematics()
	k.FilterSize = 1
	k.Calibration = model.Calibration{
		Coefficients:  []float64{0, 0, 0, 0, 1, 0},
		Constant:      5,
		ProbeDiameter: 10,
	}
	return k
}

func batch(contact []int, drift int, noise float64) ([]synth.File, error) {
	return synth.Generate(synth.Config{
		Kinematics:   unitKinematics(),
		SampleRate:   100,
		Files:        len(contact),
		Contact:      contact,
		Eccentricity: eccentricity,
		DriftSamples: drift,
		LeadSamples:  25,
		Noise:        noise,
		Seed:         7,
	})
}

func newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithKinematics(unitKinematics()),
		service.WithWorkerCount(3),
		service.WithMaxLagFraction(0.5),
	}
	svc, err := service.New(append(base, opts...)...)
	So(err, ShouldBeNil)
	return svc
}

func flat(n int) model.Trace {
	return model.Trace{Samples: make([]float64, n), SampleRate: 100}
}

func TestServiceEndToEnd(t *testing.T) {
	Convey("Given three captures of eccentric circles at different y-steps", t, func() {
		files, err := batch([]int{0, 3, 5}, 7, 0)
		So(err, ShouldBeNil)
		store := repository.NewMemoryStore()
		created := time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)
		svc := newService(
			service.WithStore(store),
			service.WithClock(func() time.Time { return created }),
		)

		Convey("When the pipeline runs", func() {
			res, err := svc.Run(context.Background(), loader.NewMemorySource(synth.Traces(files)...))
			So(err, ShouldBeNil)

			Convey("Then rows follow input order and share one revolution", func() {
				So(res.RunID, ShouldNotBeEmpty)
				So(res.CreatedAt.Equal(created), ShouldBeTrue)
				So(res.Files, ShouldEqual, 3)
				So(res.SampleRate, ShouldEqual, 100)
				So(res.Failures, ShouldBeEmpty)
				So(res.Matrix.FileIndex, ShouldResemble, []int{0, 1, 2})
				So(res.Matrix.Lags[0], ShouldEqual, 0)
				So(res.Matrix.Theta, ShouldHaveLength, 100)
				for _, row := range res.Matrix.Rows {
					So(row, ShouldHaveLength, 100)
				}
			})

			Convey("Then every row starts at its minimum radius", func() {
				for i, row := range res.Matrix.Rows {
					So(row[0], ShouldAlmostEqual, files[i].Radius-eccentricity, 1e-9)
				}
			})

			Convey("Then the metrics match the generated geometry", func() {
				So(res.Metrics, ShouldHaveLength, 3)
				for i, m := range res.Metrics {
					r := files[i].Radius
					So(m.FileIndex, ShouldEqual, i)
					So(m.Valid, ShouldBeTrue)
					So(m.MeanRadius, ShouldAlmostEqual, r, 1e-6*r)
					So(m.Runout, ShouldAlmostEqual, 2*eccentricity, 1e-6)
					So(m.PeakRadius, ShouldAlmostEqual, r+eccentricity, 1e-6*r)
					So(m.FormError, ShouldAlmostEqual, 2*eccentricity, 1e-6)
					So(m.CenterX, ShouldAlmostEqual, 0, 1e-6)
					So(m.CenterY, ShouldAlmostEqual, -eccentricity, 1e-6)
				}
			})

			Convey("Then the run is persisted", func() {
				id, err := store.LatestRunID(context.Background())
				So(err, ShouldBeNil)
				So(id, ShouldEqual, res.RunID)
				stored, err := store.Metrics(context.Background(), id)
				So(err, ShouldBeNil)
				So(cmp.Diff(res.Metrics, stored), ShouldBeEmpty)
			})
		})
	})
}

func TestServiceRigProgram(t *testing.T) {
	Convey("Given a noisy drifting batch recorded with the rig program", t, func() {
		const drift = 5
		files, err := synth.Generate(synth.Config{
			Kinematics:   model.DefaultKinematics(),
			SampleRate:   100,
			Files:        8,
			Eccentricity: eccentricity,
			DriftSamples: drift,
			Noise:        0.01,
			Seed:         3,
		})
		So(err, ShouldBeNil)
		svc, err := service.New(service.WithWorkerCount(4))
		So(err, ShouldBeNil)

		Convey("When the pipeline runs with the default lag bound", func() {
			res, err := svc.Run(context.Background(), loader.NewMemorySource(synth.Traces(files)...))
			So(err, ShouldBeNil)

			Convey("Then no file is rejected", func() {
				So(res.Failures, ShouldBeEmpty)
				So(res.Matrix.FileIndex, ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7})
			})

			Convey("Then every cumulative lag equals the drift of its file", func() {
				for i, lag := range res.Matrix.Lags {
					So(lag, ShouldEqual, i*drift)
				}
			})

			Convey("Then every file is measured", func() {
				for _, m := range res.Metrics {
					So(m.Valid, ShouldBeTrue)
					So(m.Runout, ShouldBeGreaterThan, 0)
				}
			})
		})
	})
}

func TestServiceIdempotence(t *testing.T) {
	Convey("Given a noisy batch", t, func() {
		files, err := batch([]int{1, 2, 4, 0}, 11, 0.002)
		So(err, ShouldBeNil)
		src := loader.NewMemorySource(synth.Traces(files)...)

		Convey("When it is processed twice with different worker counts", func() {
			first, err := newService(service.WithWorkerCount(1)).Run(context.Background(), src)
			So(err, ShouldBeNil)
			second, err := newService(service.WithWorkerCount(4)).Run(context.Background(), src)
			So(err, ShouldBeNil)

			Convey("Then the outputs are bit-identical apart from run identity", func() {
				So(first.RunID, ShouldNotEqual, second.RunID)
				So(cmp.Diff(first, second, cmpopts.IgnoreFields(model.Result{}, "RunID", "CreatedAt")), ShouldBeEmpty)
			})
		})
	})
}

func TestServicePartialFailure(t *testing.T) {
	Convey("Given a batch with a flat and a corrupt capture", t, func() {
		files, err := batch([]int{0, 1, 2, 3}, 5, 0)
		So(err, ShouldBeNil)
		traces := synth.Traces(files)
		n := len(traces[0].Samples)
		traces[1] = flat(n)
		corrupt := append([]float64(nil), traces[3].Samples...)
		corrupt[10] = math.NaN()
		traces[3] = model.Trace{Samples: corrupt, SampleRate: 100}
		src := loader.NewMemorySource(traces...)

		Convey("When the failure policy skips bad files", func() {
			res, err := newService().Run(context.Background(), src)

			Convey("Then the good files are aligned and the bad ones flagged", func() {
				So(err, ShouldBeNil)
				So(res.Matrix.FileIndex, ShouldResemble, []int{0, 2})
				So(res.Failures, ShouldHaveLength, 2)
				So(res.Failures[0].Index, ShouldEqual, 1)
				So(res.Failures[0].Stage, ShouldEqual, service.StageWindow)
				So(errors.Is(res.Failures[0], model.ErrWindowSelection), ShouldBeTrue)
				So(res.Failures[1].Index, ShouldEqual, 3)
				So(errors.Is(res.Failures[1], model.ErrMalformedTrace), ShouldBeTrue)

				So(res.Metrics, ShouldHaveLength, 4)
				So(res.Metrics[1].Valid, ShouldBeFalse)
				So(res.Metrics[1].Error, ShouldContainSubstring, "file 1")
				So(res.Metrics[2].Valid, ShouldBeTrue)
				So(res.Metrics[2].MeanRadius, ShouldAlmostEqual, files[2].Radius, 1e-6)
			})
		})

		Convey("When the failure policy is fail-fast", func() {
			_, err := newService(service.WithFailurePolicy(service.FailFast)).Run(context.Background(), src)

			Convey("Then the lowest failing file aborts the run", func() {
				var fe *model.FileError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Index, ShouldEqual, 1)
				So(fe.Stage, ShouldEqual, service.StageWindow)
			})
		})
	})

	Convey("Given a capture recorded at a different sample rate", t, func() {
		files, err := batch([]int{0, 1, 2}, 5, 0)
		So(err, ShouldBeNil)
		traces := synth.Traces(files)
		traces[2].SampleRate = 100.001

		Convey("Then that file is rejected", func() {
			res, err := newService().Run(context.Background(), loader.NewMemorySource(traces...))
			So(err, ShouldBeNil)
			So(res.Matrix.FileIndex, ShouldResemble, []int{0, 1})
			So(res.Failures, ShouldHaveLength, 1)
			So(errors.Is(res.Failures[0], model.ErrSampleRateMismatch), ShouldBeTrue)
		})
	})

	Convey("Given a short capture", t, func() {
		files, err := batch([]int{2, 2}, 0, 0)
		So(err, ShouldBeNil)
		traces := synth.Traces(files)
		traces[1].Samples = traces[1].Samples[40:]

		Convey("When short captures are rejected", func() {
			res, err := newService().Run(context.Background(), loader.NewMemorySource(traces...))

			Convey("Then the file fails as malformed", func() {
				So(err, ShouldBeNil)
				So(res.Matrix.FileIndex, ShouldResemble, []int{0})
				So(errors.Is(res.Failures[0], model.ErrMalformedTrace), ShouldBeTrue)
			})
		})

		Convey("When short captures are zero-padded", func() {
			res, err := newService(service.WithLengthPolicy(window.PadZero)).Run(context.Background(), loader.NewMemorySource(traces...))

			Convey("Then the file is kept", func() {
				So(err, ShouldBeNil)
				So(res.Matrix.FileIndex, ShouldResemble, []int{0, 1})
			})
		})
	})
}

func TestServiceBatchFailures(t *testing.T) {
	Convey("Given a batch where every capture is flat", t, func() {
		src := loader.NewMemorySource(flat(5000), flat(5000))

		Convey("When the pipeline runs", func() {
			res, err := newService().Run(context.Background(), src)

			Convey("Then the batch fails with every file's error", func() {
				So(res, ShouldBeNil)
				So(errors.Is(err, model.ErrAllFilesFailed), ShouldBeTrue)
				So(errors.Is(err, model.ErrWindowSelection), ShouldBeTrue)
			})
		})
	})

	Convey("Given an empty batch", t, func() {
		_, err := newService().Run(context.Background(), loader.NewMemorySource())

		Convey("Then the batch fails", func() {
			So(errors.Is(err, model.ErrAllFilesFailed), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		files, err := batch([]int{0, 1}, 0, 0)
		So(err, ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then the run stops with the cancellation", func() {
			_, err := newService().Run(ctx, loader.NewMemorySource(synth.Traces(files)...))
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("Given invalid kinematics", t, func() {
		k := unitKinematics()
		k.YSteps = nil

		Convey("Then the service is not created", func() {
			_, err := service.New(service.WithKinematics(k))
			So(errors.Is(err, model.ErrInvalidKinematics), ShouldBeTrue)
		})
	})
}

func TestParseFailurePolicy(t *testing.T) {
	Convey("Given policy names", t, func() {
		for in, want := range map[string]service.FailurePolicy{
			"":          service.Skip,
			"skip":      service.Skip,
			"FAIL_FAST": service.FailFast,
			"fail-fast": service.FailFast,
		} {
			got, err := service.ParseFailurePolicy(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
		_, err := service.ParseFailurePolicy("retry")
		So(err, ShouldNotBeNil)
		So(service.FailFast.String(), ShouldEqual, "fail_fast")
	})
}
