package handlers

import (
	"net/http"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// ForecastHandler handles prediction and performance API endpoints
type ForecastHandler struct {
	predictions contracts.PredictionRepository
	performance contracts.PerformanceRepository
	logger      *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(predictions contracts.PredictionRepository,
	performance contracts.PerformanceRepository, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		predictions: predictions,
		performance: performance,
		logger:      log,
	}
}

// GetPredictions returns all predictions made on a date
// GET /api/predictions?date=2026-08-28
func (h *ForecastHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be yyyy-mm-dd")
		return
	}

	preds, err := h.predictions.GetByPredictionDate(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get predictions")
		respondError(w, http.StatusInternalServerError, "failed to get predictions")
		return
	}
	if len(preds) == 0 {
		respondError(w, http.StatusNotFound, "no predictions for date")
		return
	}

	respondJSON(w, http.StatusOK, preds)
}

// GetPerformance returns performance rows for an evaluation date
// GET /api/performance?date=2026-08-28
func (h *ForecastHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be yyyy-mm-dd")
		return
	}

	rows, err := h.performance.GetByDate(r.Context(), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get performance")
		respondError(w, http.StatusInternalServerError, "failed to get performance")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "no performance rows for date")
		return
	}

	respondJSON(w, http.StatusOK, rows)
}
