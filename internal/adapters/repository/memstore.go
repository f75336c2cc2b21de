package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/roundness/internal/domain/model"
	"github.com/okian/roundness/pkg/metrics"
)

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*model.Result
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*model.Result)}
}

// SaveRun stores a deep copy of res.
func (s *MemoryStore) SaveRun(_ context.Context, res *model.Result) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("save_run", time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[res.RunID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, res.RunID)
	}
	s.runs[res.RunID] = cloneResult(res)
	s.order = append(s.order, res.RunID)
	metrics.UpdateRepositoryRuns(len(s.order))
	return nil
}

// LatestRunID returns the id saved last.
func (s *MemoryStore) LatestRunID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return "", fmt.Errorf("%w: no runs", ErrNotFound)
	}
	return s.order[len(s.order)-1], nil
}

// Run returns the summary of a run.
func (s *MemoryStore) Run(_ context.Context, id string) (RunSummary, error) {
	res, err := s.get(id)
	if err != nil {
		return RunSummary{}, err
	}
	return Summarize(res), nil
}

// Metrics returns every file's metrics of a run.
func (s *MemoryStore) Metrics(_ context.Context, id string) ([]model.Roundness, error) {
	res, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.Metrics), nil
}

// FileMetrics returns the metrics of one file.
func (s *MemoryStore) FileMetrics(_ context.Context, id string, index int) (model.Roundness, error) {
	res, err := s.get(id)
	if err != nil {
		return model.Roundness{}, err
	}
	for _, m := range res.Metrics {
		if m.FileIndex == index {
			return m, nil
		}
	}
	return model.Roundness{}, fmt.Errorf("%w: file %d of run %s", ErrNotFound, index, id)
}

// Row returns the aligned row of a surviving file.
func (s *MemoryStore) Row(_ context.Context, id string, index int) (FileRow, error) {
	res, err := s.get(id)
	if err != nil {
		return FileRow{}, err
	}
	m := res.Matrix
	for i, idx := range m.FileIndex {
		if idx == index {
			return FileRow{
				FileIndex: idx,
				Lag:       m.Lags[i],
				Radius:    slices.Clone(m.Rows[i]),
				Theta:     slices.Clone(m.Theta),
			}, nil
		}
	}
	return FileRow{}, fmt.Errorf("%w: no aligned row for file %d of run %s", ErrNotFound, index, id)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) get(id string) (*model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return res, nil
}

func cloneResult(res *model.Result) *model.Result {
	out := *res
	out.Matrix = model.AlignedMatrix{
		FileIndex: slices.Clone(res.Matrix.FileIndex),
		Lags:      slices.Clone(res.Matrix.Lags),
		Rows:      make([][]float64, len(res.Matrix.Rows)),
		Theta:     slices.Clone(res.Matrix.Theta),
	}
	for i, r := range res.Matrix.Rows {
		out.Matrix.Rows[i] = slices.Clone(r)
	}
	out.Metrics = slices.Clone(res.Metrics)
	out.Failures = slices.Clone(res.Failures)
	return &out
}
