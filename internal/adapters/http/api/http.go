// Package api exposes stored pipeline runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/roundness/internal/adapters/repository"
	"github.com/okian/roundness/internal/domain/model"
)

// RunReader is the read side of the result repository used by the handlers.
type RunReader interface {
	LatestRunID(ctx context.Context) (string, error)
	Run(ctx context.Context, id string) (repository.RunSummary, error)
	Metrics(ctx context.Context, id string) ([]model.Roundness, error)
	FileMetrics(ctx context.Context, id string, index int) (model.Roundness, error)
	Row(ctx context.Context, id string, index int) (repository.FileRow, error)
}

// Server wires HTTP routes for the run API.
type Server struct {
	healthHandler *HealthHandler
	runsHandler   *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(runs RunReader) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		runsHandler:   NewRunsHandler(runs),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /runs/latest", MetricsMiddleware(s.runsHandler.HandleLatest, "runs_latest"))
	mux.HandleFunc("GET /runs/{id}", MetricsMiddleware(s.runsHandler.HandleRun, "runs"))
	mux.HandleFunc("GET /runs/{id}/metrics", MetricsMiddleware(s.runsHandler.HandleMetrics, "runs_metrics"))
	mux.HandleFunc("GET /runs/{id}/files/{index}", MetricsMiddleware(s.runsHandler.HandleFile, "runs_file"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeStoreError maps repository errors to HTTP responses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}
