package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ymatsuda/cuprum/internal/contracts"
	"github.com/ymatsuda/cuprum/pkg/logger"
	"github.com/ymatsuda/cuprum/pkg/redis"
)

// MarketHandler handles price API endpoints
type MarketHandler struct {
	prices      contracts.PriceRepository
	cache       *redis.Cache
	instruments []string
	logger      *logger.Logger
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(prices contracts.PriceRepository, cache *redis.Cache,
	instruments []string, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		prices:      prices,
		cache:       cache,
		instruments: instruments,
		logger:      log,
	}
}

const latestCacheKey = "prices:latest"

// GetLatest returns the most recent bar for every tracked instrument
// GET /api/prices/latest
func (h *MarketHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached []contracts.PriceRecord
	if hit, err := h.cache.Get(ctx, latestCacheKey, &cached); err == nil && hit {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	latest := make([]contracts.PriceRecord, 0, len(h.instruments))
	for _, instrument := range h.instruments {
		rec, err := h.prices.Latest(ctx, instrument)
		if err != nil {
			// An instrument with no data yet is simply absent.
			continue
		}
		latest = append(latest, *rec)
	}

	if err := h.cache.Set(ctx, latestCacheKey, latest, redis.ShortTTL); err != nil {
		h.logger.WithError(err).Warn("Failed to cache latest prices")
	}

	respondJSON(w, http.StatusOK, latest)
}

// GetHistory returns recent bars for one instrument
// GET /api/prices/{instrument}?days=30
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instrument := mux.Vars(r)["instrument"]

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 3650 {
			respondError(w, http.StatusBadRequest, "days must be between 1 and 3650")
			return
		}
		days = parsed
	}

	bars, err := h.prices.GetRecent(ctx, instrument, days)
	if err != nil {
		h.logger.WithError(err).WithField("instrument", instrument).Error("Failed to get prices")
		respondError(w, http.StatusInternalServerError, "failed to get price data")
		return
	}
	if len(bars) == 0 {
		respondError(w, http.StatusNotFound, "no price data found")
		return
	}

	respondJSON(w, http.StatusOK, bars)
}
