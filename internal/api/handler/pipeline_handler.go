package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ghg-data-pipeline/internal/metrics"
	"ghg-data-pipeline/internal/model"
	"ghg-data-pipeline/internal/pipeline"
	"ghg-data-pipeline/internal/store"
	"ghg-data-pipeline/pkg/logging"
)

// maxBodyBytes caps a run request, table included.
const maxBodyBytes = 64 << 20

// RunStore persists run reports.
type RunStore interface {
	SaveRun(ctx context.Context, report *model.PipelineReport, output *model.Table) error
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListRuns(ctx context.Context) ([]store.RunSummary, error)
	Ping(ctx context.Context) error
}

// PipelineHandler serves the pipeline over HTTP.
type PipelineHandler struct {
	pipeline *pipeline.Pipeline
	store    RunStore
	metrics  *metrics.Collector
	logger   *logging.StructuredLogger
}

// NewPipelineHandler wires a handler. metrics and logger may be nil.
func NewPipelineHandler(p *pipeline.Pipeline, s RunStore, m *metrics.Collector, logger *logging.StructuredLogger) *PipelineHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PipelineHandler{pipeline: p, store: s, metrics: m, logger: logger}
}

// RunResponse is returned by a successful pipeline run.
type RunResponse struct {
	RunID  string                `json:"run_id"`
	Report *model.PipelineReport `json:"report"`
	Output *model.Table          `json:"output"`
}

// RunPipeline validates, derives and aggregates the posted table
// @Summary Run the pipeline
// @Description Validate a batch, drop rows failing error-severity checks, derive metrics and aggregate. Data-quality findings are returned in the report, not as errors.
// @Tags pipelines
// @Accept json
// @Produce json
// @Param request body pipeline.RunRequest true "Dataset kind, table and optional derivations/aggregation"
// @Success 200 {object} RunResponse "Run report and output table"
// @Failure 400 {string} string "Invalid request or configuration"
// @Failure 500 {string} string "Internal server error"
// @Router /pipelines/run [post]
func (h *PipelineHandler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	output, report, err := h.pipeline.Run(req)
	if h.metrics != nil {
		h.metrics.RecordRun(req.Kind, report, time.Since(start), err)
	}
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	if err := h.store.SaveRun(r.Context(), report, output); err != nil {
		h.logger.Error("failed to save run", logging.Fields{"run_id": report.RunID}, err)
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{RunID: report.RunID, Report: report, Output: output})
}

// ValidateTable runs only the validation stage
// @Summary Validate a table
// @Description Run the default (or supplied) rule table for the dataset kind without deriving, aggregating or storing anything
// @Tags pipelines
// @Accept json
// @Produce json
// @Param request body pipeline.RunRequest true "Dataset kind, table and optional rules/thresholds"
// @Success 200 {object} model.ValidationReport "Validation report"
// @Failure 400 {string} string "Invalid request or configuration"
// @Router /pipelines/validate [post]
func (h *PipelineHandler) ValidateTable(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	report, err := h.pipeline.Validate(req)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListRuns retrieves all stored runs
// @Summary List runs
// @Description Get every stored pipeline run, newest first
// @Tags runs
// @Produce json
// @Success 200 {array} store.RunSummary "List of runs"
// @Failure 500 {string} string "Internal server error"
// @Router /runs [get]
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		h.logger.Error("failed to list runs", nil, err)
		http.Error(w, "Failed to fetch runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun retrieves a stored run
// @Summary Get run
// @Description Retrieve the report and output table of a stored run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} store.Run "Run details"
// @Failure 400 {string} string "Invalid run ID"
// @Failure 404 {string} string "Run not found"
// @Router /runs/{id} [get]
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunOutput retrieves only the output table of a stored run
// @Summary Get run output
// @Description Retrieve the table a stored run produced
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Table "Output table"
// @Failure 400 {string} string "Invalid run ID"
// @Failure 404 {string} string "Run not found"
// @Router /runs/{id}/output [get]
func (h *PipelineHandler) GetRunOutput(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r, "/output")
	if !ok {
		return
	}
	if run.Output == nil {
		http.Error(w, "Run has no output table", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run.Output)
}

// Health reports whether the store is reachable
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string "ok"
// @Failure 503 {object} map[string]string "store unavailable"
// @Router /health [get]
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PipelineHandler) loadRun(w http.ResponseWriter, r *http.Request, suffix string) (*store.Run, bool) {
	// Extract run ID from URL path
	path := r.URL.Path
	prefix := "/api/v1/runs/"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return nil, false
	}
	runID := strings.Trim(path[len(prefix):len(path)-len(suffix)], "/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return nil, false
	}

	run, err := h.store.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to get run", logging.Fields{"run_id": runID}, err)
		http.Error(w, "Failed to fetch run", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (pipeline.RunRequest, bool) {
	var req pipeline.RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if req.Table == nil {
		http.Error(w, "A table is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeRunError maps configuration and transformation faults to 400.
func (h *PipelineHandler) writeRunError(w http.ResponseWriter, err error) {
	if model.IsConfiguration(err) || model.IsTransformation(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error("pipeline run failed", nil, err)
	http.Error(w, "Pipeline run failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
