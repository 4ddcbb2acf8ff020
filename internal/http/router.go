package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// NewRouter wires the API routes. Provider-backed routes get the rate limiter and
// request timeout; /health and /metrics only get correlation and metrics middleware.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(limiter, h.tracker))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/weather/{city}", h.GetWeather).Methods("GET")
	api.HandleFunc("/forecast/{city}", h.GetForecast).Methods("GET")
	api.HandleFunc("/forecast/{city}/best-day", h.GetBestDay).Methods("GET")
	api.HandleFunc("/forecast/{city}/ranking", h.GetRanking).Methods("GET")
	api.HandleFunc("/alerts/{city}", h.GetAlerts).Methods("GET")
	api.HandleFunc("/compare", h.GetCompare).Methods("GET")
	return router
}
