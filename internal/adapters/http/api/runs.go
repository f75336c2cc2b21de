package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/roundness/internal/adapters/repository"
	"github.com/okian/roundness/internal/domain/model"
)

// RunsHandler serves stored runs.
type RunsHandler struct {
	runs RunReader
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs RunReader) *RunsHandler {
	return &RunsHandler{runs: runs}
}

type metricsResponse struct {
	RunID   string            `json:"run_id"`
	Metrics []model.Roundness `json:"metrics"`
}

type fileResponse struct {
	RunID   string              `json:"run_id"`
	Metrics model.Roundness     `json:"metrics"`
	Row     *repository.FileRow `json:"row,omitempty"`
}

// HandleLatest handles GET /runs/latest.
func (h *RunsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	id, err := h.runs.LatestRunID(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.writeRun(w, r, id)
}

// HandleRun handles GET /runs/{id}.
func (h *RunsHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	h.writeRun(w, r, r.PathValue("id"))
}

func (h *RunsHandler) writeRun(w http.ResponseWriter, r *http.Request, id string) {
	sum, err := h.runs.Run(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleMetrics handles GET /runs/{id}/metrics.
func (h *RunsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ms, err := h.runs.Metrics(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse{RunID: id, Metrics: ms})
}

// HandleFile handles GET /runs/{id}/files/{index}. Files that did not reach
// the aligned matrix are returned without a row.
func (h *RunsHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: file index %q", ErrBadRequest, r.PathValue("index")))
		return
	}
	m, err := h.runs.FileMetrics(r.Context(), id, index)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resp := fileResponse{RunID: id, Metrics: m}
	row, err := h.runs.Row(r.Context(), id, index)
	switch {
	case err == nil:
		resp.Row = &row
	case !errors.Is(err, repository.ErrNotFound):
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
