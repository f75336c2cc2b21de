package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/roundness/internal/domain/model"
	"github.com/okian/roundness/pkg/logger"
	"github.com/okian/roundness/pkg/metrics"
)

// schema.sql creates the run, failure, metric and aligned-row tables.
//
//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists runs in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	s.logger.Info(ctx, "initialized result database", logger.String("path", path))
	return s, nil
}

// SaveRun stores res in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, res *model.Result) (err error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("save_run", time.Since(start).Seconds()) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, res.RunID).Scan(&exists); err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, res.RunID)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, files, survivors, sample_rate, theta) VALUES (?, ?, ?, ?, ?, ?)`,
		res.RunID, res.CreatedAt.UTC().Format(time.RFC3339Nano), res.Files, res.Survivors(), res.SampleRate,
		encodeFloats(res.Matrix.Theta),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, f := range Summarize(res).Failures {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO failures (run_id, file_index, stage, kind, error) VALUES (?, ?, ?, ?, ?)`,
			res.RunID, f.FileIndex, f.Stage, f.Kind, f.Error,
		); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}

	for _, m := range res.Metrics {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO file_metrics (run_id, file_index, mean_radius, runout, peak_radius, form_error, center_x, center_y, valid, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, m.FileIndex, m.MeanRadius, m.Runout, m.PeakRadius, m.FormError, m.CenterX, m.CenterY, m.Valid, m.Error,
		); err != nil {
			return fmt.Errorf("insert metrics: %w", err)
		}
	}

	for i, idx := range res.Matrix.FileIndex {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO aligned_rows (run_id, file_index, lag, radius) VALUES (?, ?, ?, ?)`,
			res.RunID, idx, res.Matrix.Lags[i], encodeFloats(res.Matrix.Rows[i]),
		); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	var count int
	if qerr := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count); qerr == nil {
		metrics.UpdateRepositoryRuns(count)
	}
	s.logger.Debug(ctx, "stored run", logger.String("run_id", res.RunID), logger.Int("files", res.Files))
	return nil
}

// LatestRunID returns the id of the run inserted last.
func (s *SQLiteStore) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: no runs", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// Run returns the summary of a run.
func (s *SQLiteStore) Run(ctx context.Context, id string) (RunSummary, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("run", time.Since(start).Seconds()) }()

	sum := RunSummary{ID: id, Failures: []FailureRecord{}}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, files, survivors, sample_rate FROM runs WHERE id = ?`, id,
	).Scan(&created, &sum.Files, &sum.Survivors, &sum.SampleRate)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("query run: %w", err)
	}
	if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return RunSummary{}, fmt.Errorf("parse created_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_index, stage, kind, error FROM failures WHERE run_id = ? ORDER BY file_index`, id)
	if err != nil {
		return RunSummary{}, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f FailureRecord
		if err := rows.Scan(&f.FileIndex, &f.Stage, &f.Kind, &f.Error); err != nil {
			return RunSummary{}, fmt.Errorf("scan failure: %w", err)
		}
		sum.Failures = append(sum.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return RunSummary{}, fmt.Errorf("query failures: %w", err)
	}
	return sum, nil
}

const metricsColumns = `file_index, mean_radius, runout, peak_radius, form_error, center_x, center_y, valid, error`

func scanMetrics(sc interface{ Scan(...any) error }) (model.Roundness, error) {
	var m model.Roundness
	err := sc.Scan(&m.FileIndex, &m.MeanRadius, &m.Runout, &m.PeakRadius, &m.FormError, &m.CenterX, &m.CenterY, &m.Valid, &m.Error)
	return m, err
}

// Metrics returns every file's metrics of a run in file order.
func (s *SQLiteStore) Metrics(ctx context.Context, id string) ([]model.Roundness, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency("metrics", time.Since(start).Seconds()) }()

	if err := s.requireRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metricsColumns+` FROM file_metrics WHERE run_id = ? ORDER BY file_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := []model.Roundness{}
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	return out, nil
}

// FileMetrics returns the metrics of one file.
func (s *SQLiteStore) FileMetrics(ctx context.Context, id string, index int) (model.Roundness, error) {
	m, err := scanMetrics(s.db.QueryRowContext(ctx,
		`SELECT `+metricsColumns+` FROM file_metrics WHERE run_id = ? AND file_index = ?`, id, index))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Roundness{}, fmt.Errorf("%w: file %d of run %s", ErrNotFound, index, id)
	}
	if err != nil {
		return model.Roundness{}, fmt.Errorf("query file metrics: %w", err)
	}
	return m, nil
}

// Row returns the aligned row of a surviving file.
func (s *SQLiteStore) Row(ctx context.Context, id string, index int) (FileRow, error) {
	var (
		row           = FileRow{FileIndex: index}
		radius, theta []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT r.lag, r.radius, u.theta FROM aligned_rows r JOIN runs u ON u.id = r.run_id
		 WHERE r.run_id = ? AND r.file_index = ?`, id, index,
	).Scan(&row.Lag, &radius, &theta)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRow{}, fmt.Errorf("%w: no aligned row for file %d of run %s", ErrNotFound, index, id)
	}
	if err != nil {
		return FileRow{}, fmt.Errorf("query row: %w", err)
	}
	if row.Radius, err = decodeFloats(radius); err != nil {
		return FileRow{}, err
	}
	if row.Theta, err = decodeFloats(theta); err != nil {
		return FileRow{}, err
	}
	return row, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) requireRun(ctx context.Context, id string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

// encodeFloats packs v as little-endian IEEE 754 doubles.
func encodeFloats(v []float64) []byte {
	b := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(f))
	}
	return b
}

func decodeFloats(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("decode floats: %d bytes is not a multiple of 8", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v, nil
}

