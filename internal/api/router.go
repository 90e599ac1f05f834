package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ymatsuda/cuprum/internal/api/handlers"
	"github.com/ymatsuda/cuprum/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(market *handlers.MarketHandler, forecast *handlers.ForecastHandler,
	ops *handlers.OpsHandler, hub *Hub, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Live events
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS)
	}

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Market data endpoints
	api.HandleFunc("/prices/latest", market.GetLatest).Methods("GET")
	api.HandleFunc("/prices/{instrument}", market.GetHistory).Methods("GET")

	// Forecast endpoints
	api.HandleFunc("/predictions", forecast.GetPredictions).Methods("GET")
	api.HandleFunc("/performance", forecast.GetPerformance).Methods("GET")

	// Operations endpoints
	api.HandleFunc("/runs", ops.GetRuns).Methods("GET")
	api.HandleFunc("/alerts", ops.GetAlerts).Methods("GET")
	api.HandleFunc("/validation/{runID}", ops.GetValidation).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "cuprum-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
