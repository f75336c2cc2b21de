package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/okian/roundness/internal/adapters/loader"
	"github.com/okian/roundness/internal/adapters/repository"
	"github.com/okian/roundness/internal/config"
	"github.com/okian/roundness/internal/synth"
	"github.com/okian/roundness/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.InitWithWriter(io.Discard, "json"); err != nil {
		panic(err)
	}
}

// unitConfig describes the default program with a unit-slope probe.
func unitConfig(dir string) *config.Config {
	cfg := config.New()
	cfg.DataDir = dir
	cfg.SampleRate = 100
	cfg.WorkerCount = 2
	cfg.MaxLagFraction = 0.5
	cfg.FilterSize = 1
	cfg.PolyCoefficients = []float64{0, 0, 0, 0, 1, 0}
	cfg.PolyConstant = 5
	cfg.ProbeDiameter = 10
	return cfg
}

func writeBatch(t *testing.T, cfg *config.Config, files int) {
	t.Helper()
	gen := synth.DefaultConfig()
	gen.Kinematics = cfg.Kinematics()
	gen.SampleRate = cfg.SampleRate
	gen.Files = files
	out, err := synth.Generate(gen)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range out {
		path := filepath.Join(cfg.DataDir, fmt.Sprintf("capture-%02d.txt", i))
		if err := loader.WriteSamples(path, f.Trace.Samples); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMeasure(t *testing.T) {
	convey.Convey("Given a directory of captures", t, func() {
		ctx := context.Background()
		cfg := unitConfig(t.TempDir())
		writeBatch(t, cfg, 3)
		log := logger.Get()

		convey.Convey("When measuring into a memory store", func() {
			store, err := openStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store, convey.ShouldHaveSameTypeAs, &repository.MemoryStore{})

			svc, err := newService(cfg, store, log)
			convey.So(err, convey.ShouldBeNil)
			res, err := measure(ctx, cfg, svc, log)

			convey.Convey("Then every file is measured and stored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Files, convey.ShouldEqual, 3)
				convey.So(res.Survivors(), convey.ShouldEqual, 3)
				for _, m := range res.Metrics {
					convey.So(m.Valid, convey.ShouldBeTrue)
					convey.So(m.Runout, convey.ShouldAlmostEqual, 2*synth.DefaultEccentricity, 1e-6)
				}
				id, err := store.LatestRunID(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(id, convey.ShouldEqual, res.RunID)
			})

			convey.Convey("Then the HTTP surface serves the run", func() {
				srv := newHTTPServer(":0", store)
				req := httptest.NewRequest(http.MethodGet, "/runs/latest", http.NoBody)
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var sum repository.RunSummary
				convey.So(json.NewDecoder(w.Body).Decode(&sum), convey.ShouldBeNil)
				convey.So(sum.ID, convey.ShouldEqual, res.RunID)
				convey.So(sum.Survivors, convey.ShouldEqual, 3)

				req = httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody)
				w = httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, req)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When measuring into a SQLite store", func() {
			cfg.DBPath = filepath.Join(t.TempDir(), "runs.db")
			store, err := openStore(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			svc, err := newService(cfg, store, log)
			convey.So(err, convey.ShouldBeNil)
			res, err := measure(ctx, cfg, svc, log)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the metrics are persisted", func() {
				ms, err := store.Metrics(ctx, res.RunID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ms, convey.ShouldHaveLength, 3)
				convey.So(ms[1].Runout, convey.ShouldAlmostEqual, res.Metrics[1].Runout, 1e-12)
			})
		})

		convey.Convey("When the data directory is missing", func() {
			cfg.DataDir = filepath.Join(cfg.DataDir, "missing")
			svc, err := newService(cfg, repository.NewMemoryStore(), log)
			convey.So(err, convey.ShouldBeNil)
			_, err = measure(ctx, cfg, svc, log)

			convey.Convey("Then measuring fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the policies are unknown", func() {
			cfg.FailurePolicy = "retry"
			_, err := newService(cfg, repository.NewMemoryStore(), log)

			convey.Convey("Then the service is not built", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
