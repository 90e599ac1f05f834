package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// OpsHandler handles run, alert and validation API endpoints
type OpsHandler struct {
	runs        contracts.RunRepository
	validations contracts.ValidationRepository
	alerts      contracts.AlertRepository
	logger      *logger.Logger
}

// NewOpsHandler creates a new operations handler
func NewOpsHandler(runs contracts.RunRepository, validations contracts.ValidationRepository,
	alerts contracts.AlertRepository, log *logger.Logger) *OpsHandler {
	return &OpsHandler{
		runs:        runs,
		validations: validations,
		alerts:      alerts,
		logger:      log,
	}
}

// GetRuns returns recent runs of a job
// GET /api/runs?job=pipeline&limit=20
func (h *OpsHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	job := r.URL.Query().Get("job")
	if job == "" {
		job = contracts.JobPipeline
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.History(r.Context(), job, limit)
	if err != nil {
		h.logger.WithError(err).WithField("job", job).Error("Failed to get run history")
		respondError(w, http.StatusInternalServerError, "failed to get run history")
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetAlerts returns alerts raised on a date
// GET /api/alerts?date=2026-08-28
func (h *OpsHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be yyyy-mm-dd")
		return
	}

	alerts, err := h.alerts.GetByDate(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get alerts")
		respondError(w, http.StatusInternalServerError, "failed to get alerts")
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

// GetValidation returns one run's validation findings
// GET /api/validation/{runID}
func (h *OpsHandler) GetValidation(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]

	results, err := h.validations.GetByRunID(r.Context(), runID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to get validation results")
		respondError(w, http.StatusInternalServerError, "failed to get validation results")
		return
	}
	if len(results) == 0 {
		respondError(w, http.StatusNotFound, "no validation results for run")
		return
	}

	respondJSON(w, http.StatusOK, results)
}
