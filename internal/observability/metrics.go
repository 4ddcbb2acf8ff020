package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap call rate by endpoint (weather, forecast) and outcome.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts per endpoint. High values = unstable upstream.
	WeatherAPIRetriesTotal *prometheus.CounterVec

	// Cache hits by record kind (current, forecast).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors by operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Concurrent fetches that joined an in-flight upstream call instead of issuing their own.
	CoalescedFetchesTotal *prometheus.CounterVec

	// Total city lookups by operation.
	CityQueriesTotal *prometheus.CounterVec

	// Per-city lookups (allow-list; others go to "other").
	CityQueriesByCityTotal *prometheus.CounterVec

	// Distribution of day scores produced by the scorer.
	DayScores prometheus.Histogram

	// Current-temperature alerts by status and severity.
	AlertsTotal *prometheus.CounterVec

	// Forecast day alerts by kind (cold, heat, freeze, extreme_heat, swing).
	ForecastAlertsTotal *prometheus.CounterVec

	// Batch items that failed (compare, warm).
	BatchFailuresTotal *prometheus.CounterVec

	// Rate limit denials on the API.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache warming runs, errors and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
		[]string{"endpoint"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits by record kind",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	CoalescedFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalescedFetchesTotal",
			Help: "Fetches served by joining an in-flight upstream call",
		},
		[]string{"cacheType"},
	)
	CityQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityQueriesTotal",
			Help: "Total number of city lookups by operation",
		},
		[]string{"operation"},
	)
	CityQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityQueriesByCityTotal",
			Help: "City lookups by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	DayScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dayScores",
			Help:    "Distribution of computed day scores (0-100)",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsTotal",
			Help: "Current-temperature alert checks by status and severity",
		},
		[]string{"status", "severity"},
	)
	ForecastAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastAlertsTotal",
			Help: "Forecast day alerts raised",
		},
		[]string{"kind"},
	)
	BatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchFailuresTotal",
			Help: "Failed items in multi-city batches",
		},
		[]string{"batch"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed city",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal, CoalescedFetchesTotal,
		CityQueriesTotal, CityQueriesByCityTotal,
		DayScores, AlertsTotal, ForecastAlertsTotal, BatchFailuresTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordCityQuery records a lookup of city for the given operation.
func RecordCityQuery(operation, city string) {
	CityQueriesTotal.WithLabelValues(operation).Inc()
	CityQueriesByCityTotal.WithLabelValues(CityLabel(city)).Inc()
}

// CityLabel returns the metric label for city: the normalized name when tracked, otherwise "other".
func CityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// RecordCircuitBreakerTransition updates breaker metrics for a state change.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
