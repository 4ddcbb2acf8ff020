package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/alerts"
	"github.com/kjstillabower/weather-dashboard/internal/analyzer"
	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// Config carries the tunables of WeatherService.
type Config struct {
	CurrentTTL      time.Duration
	ForecastTTL     time.Duration
	CoalesceTimeout time.Duration
	// Comfort drives alerts; Preferred drives day scoring.
	Comfort   models.TempRange
	Preferred models.TempRange
	// Timezone selects how forecast entries are grouped into dates: "local", "utc", "city" or an IANA name.
	Timezone   string
	CityMinLen int
	CityMaxLen int
}

// WeatherService orchestrates provider fetches, caching and the pure forecast,
// scoring and alert logic. Caches are cache-aside; concurrent misses for the
// same city and record kind share one upstream call.
type WeatherService struct {
	client    client.WeatherClient
	current   cache.Cache[models.CurrentWeather]
	forecasts cache.Cache[models.Forecast]
	cfg       Config
	scorer    analyzer.Scorer
	evaluator alerts.Evaluator
	logger    *zap.Logger

	currentFlight  *requestCoalescer[models.CurrentWeather]
	forecastFlight *requestCoalescer[models.Forecast]
}

// NewWeatherService wires a service. Nil caches disable caching; zero ranges use models.DefaultTempRange.
func NewWeatherService(c client.WeatherClient, current cache.Cache[models.CurrentWeather], forecasts cache.Cache[models.Forecast], cfg Config, logger *zap.Logger) *WeatherService {
	if current == nil {
		current = cache.NoopCache[models.CurrentWeather]{}
	}
	if forecasts == nil {
		forecasts = cache.NoopCache[models.Forecast]{}
	}
	if cfg.Comfort == (models.TempRange{}) {
		cfg.Comfort = models.DefaultTempRange
	}
	if cfg.Preferred == (models.TempRange{}) {
		cfg.Preferred = models.DefaultTempRange
	}
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 30 * time.Second
	}
	if cfg.CityMaxLen == 0 {
		cfg.CityMinLen, cfg.CityMaxLen = validation.DefaultMinLen, validation.DefaultMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		client:         c,
		current:        current,
		forecasts:      forecasts,
		cfg:            cfg,
		scorer:         analyzer.NewScorer(cfg.Preferred),
		evaluator:      alerts.NewEvaluator(cfg.Comfort),
		logger:         logger,
		currentFlight:  newRequestCoalescer[models.CurrentWeather](cfg.CoalesceTimeout),
		forecastFlight: newRequestCoalescer[models.Forecast](cfg.CoalesceTimeout),
	}
}

// Comfort returns the comfort range alerts are evaluated against.
func (s *WeatherService) Comfort() models.TempRange { return s.cfg.Comfort }

// Preferred returns the temperature range days are scored against.
func (s *WeatherService) Preferred() models.TempRange { return s.cfg.Preferred }

// CurrentWeather returns current conditions for city.
func (s *WeatherService) CurrentWeather(ctx context.Context, city string) (models.CurrentWeather, error) {
	name, key, err := s.normalize(city)
	if err != nil {
		return models.CurrentWeather{}, err
	}
	observability.RecordCityQuery("current", key)
	w, err := cachedFetch(ctx, s, "current", key, s.current, s.currentFlight, s.cfg.CurrentTTL, func(ctx context.Context) (models.CurrentWeather, error) {
		return s.client.GetCurrentWeather(ctx, name)
	})
	if err != nil {
		s.logFailure(ctx, "current weather", name, err)
		return models.CurrentWeather{}, fmt.Errorf("fetch current weather for %s: %w", name, err)
	}
	return w, nil
}

// Forecast returns the raw 3-hour forecast for city.
func (s *WeatherService) Forecast(ctx context.Context, city string) (models.Forecast, error) {
	name, key, err := s.normalize(city)
	if err != nil {
		return models.Forecast{}, err
	}
	observability.RecordCityQuery("forecast", key)
	fc, err := cachedFetch(ctx, s, "forecast", key, s.forecasts, s.forecastFlight, s.cfg.ForecastTTL, func(ctx context.Context) (models.Forecast, error) {
		return s.client.GetForecast(ctx, name)
	})
	if err != nil {
		s.logFailure(ctx, "forecast", name, err)
		return models.Forecast{}, fmt.Errorf("fetch forecast for %s: %w", name, err)
	}
	return fc, nil
}

// DailySummary fetches the complete forecast and groups it into per-date summaries.
func (s *WeatherService) DailySummary(ctx context.Context, city string) ([]models.DailySummary, error) {
	fc, err := s.Forecast(ctx, city)
	if err != nil {
		return nil, err
	}
	return forecast.Summarize(fc.Entries, s.location(fc)), nil
}

// FindBestDay returns the highest-scoring forecast day for city.
// An empty forecast yields analyzer.ErrNoForecastData.
func (s *WeatherService) FindBestDay(ctx context.Context, city string) (models.BestDay, error) {
	days, err := s.DailySummary(ctx, city)
	if err != nil {
		return models.BestDay{}, err
	}
	best, err := s.scorer.FindBestDay(days)
	if err != nil {
		return models.BestDay{}, err
	}
	for _, d := range best.AllDays {
		observability.DayScores.Observe(d.Score)
	}
	return best, nil
}

// CompareDays returns every forecast day scored and ranked best first.
func (s *WeatherService) CompareDays(ctx context.Context, city string) ([]models.ScoredDay, error) {
	days, err := s.DailySummary(ctx, city)
	if err != nil {
		return nil, err
	}
	return analyzer.RankDays(s.scorer.ScoreDays(days)), nil
}

// CheckCurrentTemperature classifies the current temperature against the comfort range.
// Failures are folded into an error-status record.
func (s *WeatherService) CheckCurrentTemperature(ctx context.Context, city string) models.AlertRecord {
	w, err := s.CurrentWeather(ctx, city)
	var rec models.AlertRecord
	if err != nil {
		rec = alerts.ErrorRecord(strings.TrimSpace(city), err)
	} else {
		rec = s.evaluator.CheckCurrent(w)
	}
	observability.AlertsTotal.WithLabelValues(string(rec.Status), string(rec.Severity)).Inc()
	return rec
}

// ForecastAlerts returns the days with forecast alerts. A fetch failure is
// reported as a single entry carrying the error.
func (s *WeatherService) ForecastAlerts(ctx context.Context, city string) []models.DayAlert {
	days, err := s.DailySummary(ctx, city)
	if err != nil {
		observability.ForecastAlertsTotal.WithLabelValues("error").Inc()
		return alerts.ErrorDayAlerts(err)
	}
	out := s.evaluator.ForecastAlerts(days)
	for _, d := range out {
		for _, msg := range d.Alerts {
			observability.ForecastAlertsTotal.WithLabelValues(alertKind(msg)).Inc()
		}
	}
	return out
}

// ComfortableDays returns the forecast days that fit the comfort range.
func (s *WeatherService) ComfortableDays(ctx context.Context, city string) ([]models.DailySummary, error) {
	days, err := s.DailySummary(ctx, city)
	if err != nil {
		return nil, err
	}
	return s.evaluator.ComfortableDays(days), nil
}

// CompareCities fetches current weather for every city concurrently. Results
// keep input order and one city's failure is reported in its slot only.
func (s *WeatherService) CompareCities(ctx context.Context, cities []string) []models.CityResult {
	results := make([]models.CityResult, len(cities))
	var wg sync.WaitGroup
	for i, city := range cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			w, err := s.CurrentWeather(ctx, city)
			if err != nil {
				results[i] = models.CityResult{City: city, Err: err}
				return
			}
			results[i] = models.CityResult{City: city, Weather: &w}
		}(i, city)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			observability.BatchFailuresTotal.WithLabelValues("compare").Inc()
		}
	}
	return results
}

// Prefetch loads current weather and forecast for city into the caches.
func (s *WeatherService) Prefetch(ctx context.Context, city string) error {
	_, curErr := s.CurrentWeather(ctx, city)
	_, fcErr := s.Forecast(ctx, city)
	return errors.Join(curErr, fcErr)
}

// ValidateAPIKey checks the provider credentials.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

func (s *WeatherService) normalize(city string) (name, key string, err error) {
	name, err = validation.ValidateCity(city, s.cfg.CityMinLen, s.cfg.CityMaxLen)
	if err != nil {
		return "", "", err
	}
	return name, normalizeCity(name), nil
}

func (s *WeatherService) location(fc models.Forecast) *time.Location {
	loc, err := forecast.Location(s.cfg.Timezone, fc.TimezoneOffset)
	if err != nil {
		s.logger.Warn("invalid forecast timezone, using local", zap.String("timezone", s.cfg.Timezone), zap.Error(err))
		return time.Local
	}
	return loc
}

func (s *WeatherService) logFailure(ctx context.Context, what, city string, err error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	fields := []zap.Field{
		zap.String("city", city),
		zap.String("kind", string(client.KindOf(err))),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err),
	}
	if client.KindOf(err) == client.KindNotFound {
		logger.Info(what+" lookup failed", fields...)
		return
	}
	logger.Warn(what+" fetch failed", fields...)
}

// cachedFetch is the cache-aside path shared by every record kind.
func cachedFetch[T any](ctx context.Context, s *WeatherService, kind, key string, c cache.Cache[T], flight *requestCoalescer[T], ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)

	cached, ok, err := c.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("kind", kind), zap.String("city", key), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(kind).Inc()
		logger.Debug("cache hit", zap.String("kind", kind), zap.String("city", key))
		return cached, nil
	}

	data, shared, err := flight.GetOrDo(ctx, key, func(fetchCtx context.Context) (T, error) {
		data, err := fetch(fetchCtx)
		if err != nil {
			return data, err
		}
		if setErr := c.Set(fetchCtx, key, data, ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("cache set failed", zap.String("kind", kind), zap.String("city", key), zap.Error(setErr))
		}
		return data, nil
	})
	if shared {
		observability.CoalescedFetchesTotal.WithLabelValues(kind).Inc()
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return data, nil
}

// alertKind maps a forecast alert message to a stable metric label.
func alertKind(msg string) string {
	switch {
	case strings.HasPrefix(msg, "Morning cold"):
		return "cold"
	case strings.HasPrefix(msg, "Afternoon heat"):
		return "heat"
	case strings.HasPrefix(msg, "Freezing"):
		return "freezing"
	case strings.HasPrefix(msg, "Extreme heat"):
		return "extreme_heat"
	case strings.HasPrefix(msg, "Large temperature swing"):
		return "swing"
	default:
		return "other"
	}
}

// normalizeCity lowercases and trims a city for cache keys and metric labels.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
