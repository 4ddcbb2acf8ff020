package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/analyzer"
	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// MaxCompareCities caps the number of cities accepted by /compare.
const MaxCompareCities = 20

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Overload compares requests in OverloadWindow against OverloadThresholdPct of
	// the inbound limiter's capacity. Disabled when RateLimitRPS is 0.
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	// Idle is reported once the process has lived MinimumLifespan and traffic in
	// IdleWindow falls below IdleThresholdReqPerMin.
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	tracker          *traffic.Tracker
	cities           []string
	cityMinLen       int
	cityMaxLen       int
	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. cities is the default set for /compare.
// A nil tracker gets a fresh one with default retention.
func NewHandler(
	weatherService *service.WeatherService,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	tracker *traffic.Tracker,
	cities []string,
	cityMinLen, cityMaxLen int,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = traffic.NewTracker(0)
	}
	return &Handler{
		weatherService: weatherService,
		healthConfig:   healthConfig,
		logger:         logger,
		tracker:        tracker,
		cities:         cities,
		cityMinLen:     cityMinLen,
		cityMaxLen:     cityMaxLen,
	}
}

// SetShuttingDown flips the drain flag reported by /health.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the server is draining.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// cityParam validates the {city} path variable, writing a 400 when it is unusable.
func (h *Handler) cityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.cityMinLen, h.cityMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return city, true
}

// record feeds the error-rate window. Caller-side faults (bad or unknown city) count as successes.
func (h *Handler) record(err error) {
	if err == nil || validation.IsInvalidCity(err) ||
		errors.Is(err, client.ErrLocationNotFound) || errors.Is(err, analyzer.ErrNoForecastData) {
		h.tracker.RecordSuccess()
		return
	}
	h.tracker.RecordError()
}

// GetWeather handles GET /weather/{city}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	result, err := h.weatherService.CurrentWeather(r.Context(), city)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type daysResponse struct {
	City string `json:"city"`
	Days any    `json:"days"`
}

// GetForecast handles GET /forecast/{city}.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	days, err := h.weatherService.DailySummary(r.Context(), city)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, daysResponse{City: city, Days: days})
}

// GetBestDay handles GET /forecast/{city}/best-day.
func (h *Handler) GetBestDay(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	best, err := h.weatherService.FindBestDay(r.Context(), city)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, best)
}

// GetRanking handles GET /forecast/{city}/ranking.
func (h *Handler) GetRanking(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	ranked, err := h.weatherService.CompareDays(r.Context(), city)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, daysResponse{City: city, Days: ranked})
}

type alertsResponse struct {
	City            string                `json:"city"`
	Comfort         models.TempRange      `json:"comfortRange"`
	Current         models.AlertRecord    `json:"current"`
	Forecast        []models.DayAlert     `json:"forecast"`
	ComfortableDays []models.DailySummary `json:"comfortableDays"`
}

// GetAlerts handles GET /alerts/{city}. Provider failures are reported inside the
// alert records rather than as an error status.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	resp := alertsResponse{
		City:     city,
		Comfort:  h.weatherService.Comfort(),
		Current:  h.weatherService.CheckCurrentTemperature(ctx, city),
		Forecast: h.weatherService.ForecastAlerts(ctx, city),
	}
	comfortable, err := h.weatherService.ComfortableDays(ctx, city)
	h.record(err)
	if err == nil {
		resp.ComfortableDays = comfortable
	} else {
		resp.ComfortableDays = []models.DailySummary{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCompare handles GET /compare?city=A&city=B. Without city params the configured list is used.
func (h *Handler) GetCompare(w http.ResponseWriter, r *http.Request) {
	cities := r.URL.Query()["city"]
	if len(cities) == 0 {
		cities = h.cities
	}
	if len(cities) > MaxCompareCities {
		writeError(w, r, http.StatusBadRequest, "TOO_MANY_CITIES", "at most 20 cities can be compared")
		return
	}
	results := h.weatherService.CompareCities(r.Context(), cities)
	for _, res := range results {
		h.record(res.Err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}
	resp := map[string]any{
		"status":    result.status,
		"service":   "weather-dashboard",
		"version":   version,
		"checks":    checks,
		"inFlight":  InFlightCount(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > idle > degraded error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.weatherService.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	hc := h.healthConfig
	if hc == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if hc.RateLimitRPS > 0 && hc.OverloadWindow > 0 && hc.OverloadThresholdPct > 0 {
		threshold := float64(hc.RateLimitRPS) * hc.OverloadWindow.Seconds() * float64(hc.OverloadThresholdPct) / 100
		if float64(h.tracker.RequestCount(hc.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if hc.IdleWindow > 0 && hc.MinimumLifespan > 0 && !hc.StartTime.IsZero() && time.Since(hc.StartTime) >= hc.MinimumLifespan {
		perMin := float64(h.tracker.RequestCount(hc.IdleWindow)) / hc.IdleWindow.Minutes()
		if perMin < float64(hc.IdleThresholdReqPerMin) {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if h.tracker.Degraded(hc.DegradedWindow, hc.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body with the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a service error to a status code and error code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	writeError(w, r, status, code, message)
	observability.LoggerFromContext(r.Context(), zap.NewNop()).Debug("request failed",
		zap.Int("status", status),
		zap.String("code", code),
		zap.Error(err))
}

func classifyError(err error) (status int, code, message string) {
	switch {
	case validation.IsInvalidCity(err):
		return http.StatusBadRequest, "INVALID_LOCATION", err.Error()
	case errors.Is(err, client.ErrLocationNotFound):
		return http.StatusNotFound, "LOCATION_NOT_FOUND", "City not found"
	case errors.Is(err, analyzer.ErrNoForecastData):
		return http.StatusNotFound, "NO_FORECAST_DATA", "No forecast data available"
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "Weather provider rate limit reached"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Weather provider temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Weather provider timed out"
	default:
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Unable to fetch weather data"
	}
}
