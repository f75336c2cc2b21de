// Package repository persists pipeline results and serves them back by run.
package repository

import (
	"context"
	"time"

	"github.com/okian/roundness/internal/domain/model"
)

// RunSummary describes one stored run.
type RunSummary struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Files      int             `json:"files"`
	Survivors  int             `json:"survivors"`
	SampleRate float64         `json:"sample_rate"`
	Failures   []FailureRecord `json:"failures"`
}

// FailureRecord is the stored form of a model.FileError.
type FailureRecord struct {
	FileIndex int    `json:"file_index"`
	Stage     string `json:"stage"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// FileRow is the registered single-revolution radius of one file.
type FileRow struct {
	FileIndex int       `json:"file_index"`
	Lag       int       `json:"lag"`
	Radius    []float64 `json:"radius"`
	Theta     []float64 `json:"theta"`
}

// Store provides write-once storage of runs and read access by run id.
type Store interface {
	// SaveRun stores a result. Saving an id twice returns ErrDuplicateRun.
	SaveRun(ctx context.Context, res *model.Result) error

	// LatestRunID returns the id of the most recently saved run, or
	// ErrNotFound if the store is empty.
	LatestRunID(ctx context.Context) (string, error)

	// Run returns the summary of a run.
	Run(ctx context.Context, id string) (RunSummary, error)

	// Metrics returns the metrics of every input file of a run in file order.
	Metrics(ctx context.Context, id string) ([]model.Roundness, error)

	// FileMetrics returns the metrics of one input file.
	FileMetrics(ctx context.Context, id string, index int) (model.Roundness, error)

	// Row returns the aligned row of a surviving file.
	Row(ctx context.Context, id string, index int) (FileRow, error)

	Close() error
}

// Summarize builds the summary of a result.
func Summarize(res *model.Result) RunSummary {
	s := RunSummary{
		ID:         res.RunID,
		CreatedAt:  res.CreatedAt,
		Files:      res.Files,
		Survivors:  res.Survivors(),
		SampleRate: res.SampleRate,
		Failures:   make([]FailureRecord, 0, len(res.Failures)),
	}
	for _, f := range res.Failures {
		s.Failures = append(s.Failures, FailureRecord{
			FileIndex: f.Index,
			Stage:     f.Stage,
			Kind:      model.Kind(f.Err),
			Error:     f.Err.Error(),
		})
	}
	return s
}
