package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/roundness/internal/adapters/http/api"
	"github.com/okian/roundness/internal/adapters/http/swagger"
	"github.com/okian/roundness/internal/adapters/loader"
	"github.com/okian/roundness/internal/adapters/repository"
	service "github.com/okian/roundness/internal/app"
	"github.com/okian/roundness/internal/config"
	"github.com/okian/roundness/internal/domain/model"
	"github.com/okian/roundness/internal/domain/window"
	"github.com/okian/roundness/pkg/logger"
	"github.com/okian/roundness/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		_, _ = os.Stderr.WriteString("roundness: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "close store failed", logger.Error(err))
		}
	}()

	svc, err := newService(cfg, store, log)
	if err != nil {
		return err
	}

	_, runErr := measure(ctx, cfg, svc, log)
	if cfg.Addr == "" {
		return runErr
	}
	if runErr != nil {
		log.Error(ctx, "measurement failed; serving stored runs", logger.Error(runErr))
	}
	return serve(ctx, newHTTPServer(cfg.Addr, store), log)
}

// openStore selects the SQLite store when db_path is set, otherwise an
// in-memory store.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	if cfg.DBPath == "" {
		return repository.NewMemoryStore(), nil
	}
	store, err := repository.NewSQLiteStore(ctx, cfg.DBPath, repository.WithLogger(log.Named("repository")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*service.Service, error) {
	failure, err := service.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	length, err := window.ParseLengthPolicy(cfg.LengthPolicy)
	if err != nil {
		return nil, err
	}
	return service.New(
		service.WithLogger(log.Named("pipeline")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithKinematics(cfg.Kinematics()),
		service.WithFailurePolicy(failure),
		service.WithLengthPolicy(length),
		service.WithMaxLagFraction(cfg.MaxLagFraction),
		service.WithStore(store),
	)
}

// measure runs the pipeline over the configured data directory and logs a
// per-file summary.
func measure(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) (*model.Result, error) {
	src, err := loader.NewDirSource(cfg.DataDir, cfg.FilePattern, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	res, err := svc.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	for _, m := range res.Metrics {
		if !m.Valid {
			log.Warn(ctx, "file not measured",
				logger.Int("file_index", m.FileIndex),
				logger.String("path", src.Path(m.FileIndex)),
				logger.String("error", m.Error))
			continue
		}
		log.Info(ctx, "file measured",
			logger.Int("file_index", m.FileIndex),
			logger.String("path", src.Path(m.FileIndex)),
			logger.Float64("mean_radius", m.MeanRadius),
			logger.Float64("runout", m.Runout),
			logger.Float64("peak_radius", m.PeakRadius),
			logger.Float64("form_error", m.FormError))
	}
	log.Info(ctx, "run stored",
		logger.String("run_id", res.RunID),
		logger.Int("files", res.Files),
		logger.Int("survivors", res.Survivors()),
		logger.Int("failures", len(res.Failures)))
	return res, nil
}

func newHTTPServer(addr string, runs api.RunReader) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(runs).Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// serve blocks until ctx is cancelled, then shuts srv down gracefully.
func serve(ctx context.Context, srv *http.Server, log logger.Logger) error {
	go startSystemMetricsUpdater(ctx)

	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info(ctx, "server stopped")
	return nil
}

// startSystemMetricsUpdater refreshes process metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateProcessStats()
		}
	}
}
