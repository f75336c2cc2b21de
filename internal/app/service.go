// Package service runs the roundness pipeline over a batch of captures:
// window selection, calibration, direction alignment, cross-file
// registration and circle fitting, each stage a barrier over a worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/okian/roundness/internal/adapters/loader"
	"github.com/okian/roundness/internal/adapters/mq/worker"
	"github.com/okian/roundness/internal/adapters/repository"
	"github.com/okian/roundness/internal/domain/align"
	"github.com/okian/roundness/internal/domain/calibrate"
	"github.com/okian/roundness/internal/domain/circlefit"
	"github.com/okian/roundness/internal/domain/model"
	"github.com/okian/roundness/internal/domain/window"
	"github.com/okian/roundness/pkg/logger"
	"github.com/okian/roundness/pkg/metrics"
)

// Stage names, as recorded in model.FileError.
const (
	StageWindow    = "window"
	StageCalibrate = "calibrate"
	StagePair      = "pair"
	StageSequence  = "sequence"
	StageExtract   = "extract"
	StageFit       = "fit"
)

// Service runs the measurement pipeline.
type Service struct {
	kin            model.Kinematics
	workerCount    int
	failurePolicy  FailurePolicy
	lengthPolicy   window.LengthPolicy
	maxLagFraction float64
	store          repository.Store
	now            func() time.Time
	logger         logger.Logger

	windower   *window.Windower
	calibrator *calibrate.Calibrator
	pair       *align.PairAligner
	sequence   *align.SequenceAligner
	pool       *worker.Pool
}

// New constructs a Service. It fails if the kinematics are invalid.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		kin:            model.DefaultKinematics(),
		workerCount:    runtime.NumCPU(),
		failurePolicy:  Skip,
		lengthPolicy:   window.Reject,
		maxLagFraction: align.DefaultMaxLagFraction,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	w, err := window.New(s.kin, window.WithLengthPolicy(s.lengthPolicy))
	if err != nil {
		return nil, err
	}
	s.windower = w
	s.calibrator = calibrate.New(s.kin.Calibration)
	s.pair = align.NewPairAligner(align.WithMaxLagFraction(s.maxLagFraction))
	s.sequence = align.NewSequenceAligner(align.WithMaxLagFraction(s.maxLagFraction))
	s.pool = worker.NewPool(s.workerCount, worker.WithName("stage"), worker.WithLogger(s.logger.Named("pool")))
	return s, nil
}

// Kinematics returns a copy of the program the service runs with.
func (s *Service) Kinematics() model.Kinematics { return s.kin.Clone() }

// Store returns the configured store, or nil.
func (s *Service) Store() repository.Store { return s.store }

// batch is the per-run state. Every slice is indexed by input file index and
// each entry is written only by the task of that file.
type batch struct {
	n          int
	failures   []*model.FileError
	selections []model.Selection
	rates      []float64
	radii      [][2]model.RadiusWindow
	profiles   []model.Profile
	lags       []int
	metrics    []model.Roundness
}

func newBatch(n int) *batch {
	b := &batch{
		n:          n,
		failures:   make([]*model.FileError, n),
		selections: make([]model.Selection, n),
		rates:      make([]float64, n),
		radii:      make([][2]model.RadiusWindow, n),
		profiles:   make([]model.Profile, n),
		lags:       make([]int, n),
		metrics:    make([]model.Roundness, n),
	}
	for i := range b.metrics {
		b.metrics[i].FileIndex = i
	}
	return b
}

func (b *batch) survivors() []int {
	out := make([]int, 0, b.n)
	for i, f := range b.failures {
		if f == nil {
			out = append(out, i)
		}
	}
	return out
}

func (b *batch) fail(i int, stage string, err error) {
	fe := &model.FileError{Index: i, Stage: stage, Err: err}
	b.failures[i] = fe
	b.metrics[i].Valid = false
	b.metrics[i].Error = fe.Error()
	metrics.RecordFileFailure(stage, model.Kind(err))
}

func (b *batch) failureList() []*model.FileError {
	var out []*model.FileError
	for _, f := range b.failures {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Run executes the pipeline over every trace of src and returns the aligned
// matrix and per-file metrics. Per-file failures follow the failure policy;
// when every file fails the error wraps model.ErrAllFilesFailed and joins
// each file's error.
func (s *Service) Run(ctx context.Context, src loader.Source) (*model.Result, error) {
	start := time.Now()
	res, err := s.run(ctx, src)

	outcome, survivors := "ok", 0
	switch {
	case err != nil:
		outcome = "failed"
	case len(res.Failures) > 0:
		outcome = "partial"
	}
	if res != nil {
		survivors = res.Survivors()
	}
	metrics.RecordRun(outcome, time.Since(start).Seconds(), src.Len(), survivors)
	metrics.UpdateProcessStats()
	return res, err
}

func (s *Service) run(ctx context.Context, src loader.Source) (*model.Result, error) { //nolint:funlen // one stage after another
	n := src.Len()
	runID := uuid.NewString()
	s.logger.Info(ctx, "starting run",
		logger.String("run_id", runID),
		logger.Int("files", n),
		logger.Int("workers", s.pool.Size()),
		logger.String("failure_policy", s.failurePolicy.String()),
	)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty batch", model.ErrAllFilesFailed)
	}
	b := newBatch(n)

	err := s.stage(ctx, b, StageWindow, b.survivors(), func(ctx context.Context, i int) error {
		tr, err := src.ReadTrace(ctx, i)
		if err != nil {
			return err
		}
		sel, err := s.windower.Select(tr)
		if err != nil {
			return err
		}
		b.selections[i] = sel
		b.rates[i] = tr.SampleRate
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.checkSampleRates(b)
	if err := s.check(b, StageWindow); err != nil {
		return nil, err
	}
	rate := b.rates[b.survivors()[0]]
	layout, err := s.kin.Layout(rate)
	if err != nil {
		return nil, err
	}

	err = s.stage(ctx, b, StageCalibrate, b.survivors(), func(_ context.Context, i int) error {
		sel := b.selections[i]
		b.radii[i] = [2]model.RadiusWindow{
			s.calibrator.Radius(sel.Positive),
			s.calibrator.Radius(sel.Negative),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.check(b, StageCalibrate); err != nil {
		return nil, err
	}

	err = s.stage(ctx, b, StagePair, b.survivors(), func(_ context.Context, i int) error {
		p, err := s.pair.Merge(i, b.radii[i][0], b.radii[i][1])
		if err != nil {
			return err
		}
		metrics.RecordAlignmentLag(StagePair, p.PairLag)
		b.profiles[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.check(b, StagePair); err != nil {
		return nil, err
	}

	if err := s.register(ctx, b); err != nil {
		return nil, err
	}
	if err := s.check(b, StageSequence); err != nil {
		return nil, err
	}

	kept := b.survivors()
	rows := make([][]float64, len(kept))
	lags := make([]int, len(kept))
	rowOf := make([]int, n)
	for k, i := range kept {
		rows[k] = align.Roll(b.profiles[i].Radius, -b.lags[i])
		lags[k] = b.lags[i]
		rowOf[i] = k
	}
	ex, err := align.Extract(rows, layout.RevolutionSamples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageExtract, err)
	}
	s.logger.Debug(ctx, "extracted revolution",
		logger.Int("start", ex.Start),
		logger.Int("samples", layout.RevolutionSamples),
	)

	err = s.stage(ctx, b, StageFit, kept, func(_ context.Context, i int) error {
		m, err := circlefit.Fit(i, ex.Rows[rowOf[i]], ex.Theta)
		if err != nil {
			metrics.RecordInvalidFit()
			return err
		}
		metrics.RecordRoundness(m.Runout, m.FormError)
		b.metrics[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.check(b, StageFit); err != nil {
		return nil, err
	}

	res := &model.Result{
		RunID:      runID,
		CreatedAt:  s.now().UTC(),
		Files:      n,
		SampleRate: rate,
		Matrix: model.AlignedMatrix{
			FileIndex: kept,
			Lags:      lags,
			Rows:      ex.Rows,
			Theta:     ex.Theta,
		},
		Metrics:  b.metrics,
		Failures: b.failureList(),
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, res); err != nil {
			return nil, fmt.Errorf("save run %s: %w", runID, err)
		}
	}
	s.logger.Info(ctx, "run complete",
		logger.String("run_id", runID),
		logger.Int("files", n),
		logger.Int("aligned", res.Survivors()),
		logger.Int("failed", len(res.Failures)),
	)
	return res, nil
}

// stage runs task for every listed file on the pool and records failures.
// It returns an error only when ctx ends during the stage.
func (s *Service) stage(ctx context.Context, b *batch, name string, files []int, task worker.Task) error {
	start := time.Now()
	errs := s.pool.Run(ctx, name, len(files), func(ctx context.Context, j int) error {
		return task(ctx, files[j])
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	failed := 0
	for j, err := range errs {
		if err == nil {
			metrics.RecordFileProcessed(name)
			continue
		}
		b.fail(files[j], name, err)
		failed++
	}
	s.logStage(ctx, name, len(files), failed, time.Since(start))
	return nil
}

func (s *Service) logStage(ctx context.Context, name string, files, failed int, took time.Duration) {
	metrics.RecordStageDuration(name, took.Seconds())
	s.logger.Info(ctx, "stage complete",
		logger.String("stage", name),
		logger.Int("files", files),
		logger.Int("failed", failed),
		logger.Duration("took", took),
	)
}

// register computes consecutive lags between surviving profiles on the pool,
// then accumulates them in file order. Rejected steps fail the later file.
func (s *Service) register(ctx context.Context, b *batch) error {
	start := time.Now()
	surv := b.survivors()
	profiles := make([][]float64, len(surv))
	for k, i := range surv {
		profiles[k] = b.profiles[i].Radius
	}

	steps := make([]align.Step, max(len(surv)-1, 0))
	s.pool.Run(ctx, StageSequence, len(steps), func(_ context.Context, j int) error {
		steps[j] = s.sequence.Step(profiles[j], profiles[j+1])
		return nil
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", StageSequence, err)
	}

	cum, rejected := s.sequence.Chain(profiles, steps)
	failed := 0
	for k, i := range surv {
		if rejected[k] != nil {
			b.fail(i, StageSequence, rejected[k])
			failed++
			continue
		}
		b.lags[i] = cum[k]
		if k > 0 {
			metrics.RecordAlignmentLag(StageSequence, steps[k-1].Lag)
		}
		metrics.RecordFileProcessed(StageSequence)
	}
	s.logStage(ctx, StageSequence, len(surv), failed, time.Since(start))
	return nil
}

// checkSampleRates fails every surviving file whose sample rate differs from
// the first surviving file.
func (s *Service) checkSampleRates(b *batch) {
	surv := b.survivors()
	if len(surv) == 0 {
		return
	}
	ref := b.rates[surv[0]]
	for _, i := range surv[1:] {
		if b.rates[i] != ref {
			b.fail(i, StageWindow, fmt.Errorf("%w: %v Hz, expected %v Hz", model.ErrSampleRateMismatch, b.rates[i], ref))
		}
	}
}

// check applies the failure policy after a stage.
func (s *Service) check(b *batch, stage string) error {
	if s.failurePolicy == FailFast {
		for _, f := range b.failures {
			if f != nil && f.Stage == stage {
				return f
			}
		}
	}
	if len(b.survivors()) > 0 {
		return nil
	}
	errs := []error{fmt.Errorf("%w: %d of %d files", model.ErrAllFilesFailed, b.n, b.n)}
	for _, f := range b.failureList() {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
