package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/analyzer"
	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

type mockWeatherClient struct {
	mu            sync.Mutex
	current       map[string]models.CurrentWeather
	forecast      models.Forecast
	err           map[string]error
	currentCalls  int32
	forecastCalls int32
	delay         time.Duration
	validateErr   error
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.CurrentWeather, error) {
	atomic.AddInt32(&m.currentCalls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err[city]; err != nil {
		return models.CurrentWeather{}, err
	}
	w, ok := m.current[city]
	if !ok {
		return models.CurrentWeather{}, fmt.Errorf("%w: city %q", client.ErrLocationNotFound, city)
	}
	return w, nil
}

func (m *mockWeatherClient) GetForecast(ctx context.Context, city string) (models.Forecast, error) {
	atomic.AddInt32(&m.forecastCalls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err[city]; err != nil {
		return models.Forecast{}, err
	}
	return m.forecast, nil
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return m.validateErr
}

type failingCache[T any] struct{ err error }

func (f failingCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	return zero, false, f.err
}

func (f failingCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	return f.err
}

func entry(day, hour int, temp, humidity, wind, rain float64, desc string) models.ForecastEntry {
	return models.ForecastEntry{
		Time:            time.Date(2026, 5, day, hour, 0, 0, 0, time.UTC),
		Temperature:     temp,
		TempMin:         temp,
		TempMax:         temp,
		Humidity:        int(humidity),
		WindSpeed:       wind,
		RainProbability: rain,
		Description:     desc,
	}
}

// twoDayForecast has a poor first day and a pleasant second day.
func twoDayForecast() models.Forecast {
	return models.Forecast{
		City: "London",
		Entries: []models.ForecastEntry{
			entry(1, 9, 5, 90, 12, 90, "Rain"),
			entry(1, 15, 7, 90, 12, 80, "Rain"),
			entry(2, 9, 19, 50, 2, 0, "Clear Sky"),
			entry(2, 15, 23, 50, 2, 10, "Clear Sky"),
		},
	}
}

func newTestService(c client.WeatherClient) *WeatherService {
	return NewWeatherService(c,
		cache.NewInMemoryCache[models.CurrentWeather](),
		cache.NewInMemoryCache[models.Forecast](),
		Config{CurrentTTL: time.Minute, ForecastTTL: time.Minute, Timezone: "utc"},
		nil)
}

// TestNormalizeCity verifies that normalizeCity trims whitespace and lowercases
// so cache keys are stable regardless of input format.
func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: " London ", want: "london"},
		{in: "london", want: "london"},
		{in: "LoNdOn", want: "london"},
		{in: "  New York  ", want: "new york"},
	}
	for _, tc := range tests {
		if got := normalizeCity(tc.in); got != tc.want {
			t.Errorf("normalizeCity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestWeatherService_CurrentWeather_CacheHit verifies that a second lookup with
// different casing is served from cache without another upstream call.
func TestWeatherService_CurrentWeather_CacheHit(t *testing.T) {
	mc := &mockWeatherClient{current: map[string]models.CurrentWeather{
		"London": {City: "London", Temperature: 18},
	}}
	svc := newTestService(mc)

	if _, err := svc.CurrentWeather(context.Background(), "London"); err != nil {
		t.Fatalf("CurrentWeather() error = %v", err)
	}
	got, err := svc.CurrentWeather(context.Background(), "  london")
	if err != nil {
		t.Fatalf("CurrentWeather() second call error = %v", err)
	}
	if got.Temperature != 18 {
		t.Errorf("Temperature = %v, want 18", got.Temperature)
	}
	if n := atomic.LoadInt32(&mc.currentCalls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestWeatherService_CurrentWeather_NoCacheRefetches(t *testing.T) {
	mc := &mockWeatherClient{current: map[string]models.CurrentWeather{"London": {City: "London"}}}
	svc := NewWeatherService(mc, nil, nil, Config{}, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.CurrentWeather(context.Background(), "London"); err != nil {
			t.Fatalf("CurrentWeather() error = %v", err)
		}
	}
	if n := atomic.LoadInt32(&mc.currentCalls); n != 2 {
		t.Errorf("upstream calls = %d, want 2 with caching disabled", n)
	}
}

func TestWeatherService_CurrentWeather_CacheErrorsFallThrough(t *testing.T) {
	mc := &mockWeatherClient{current: map[string]models.CurrentWeather{"London": {City: "London", Temperature: 11}}}
	svc := NewWeatherService(mc,
		failingCache[models.CurrentWeather]{err: errors.New("memcache: connection refused")},
		nil, Config{}, nil)

	got, err := svc.CurrentWeather(context.Background(), "London")
	if err != nil {
		t.Fatalf("CurrentWeather() error = %v, want cache failure ignored", err)
	}
	if got.Temperature != 11 {
		t.Errorf("Temperature = %v, want 11", got.Temperature)
	}
}

func TestWeatherService_CurrentWeather_Errors(t *testing.T) {
	mc := &mockWeatherClient{err: map[string]error{"Paris": client.ErrUpstreamFailure}}
	svc := newTestService(mc)

	_, err := svc.CurrentWeather(context.Background(), "Atlantis")
	if !errors.Is(err, client.ErrLocationNotFound) {
		t.Errorf("unknown city error = %v, want ErrLocationNotFound", err)
	}
	_, err = svc.CurrentWeather(context.Background(), "Paris")
	if client.KindOf(err) != client.KindTransient {
		t.Errorf("KindOf(%v) = %q, want transient", err, client.KindOf(err))
	}
	_, err = svc.CurrentWeather(context.Background(), "   ")
	if !errors.Is(err, validation.ErrCityEmpty) {
		t.Errorf("blank city error = %v, want ErrCityEmpty", err)
	}
	if n := atomic.LoadInt32(&mc.currentCalls); n != 2 {
		t.Errorf("upstream calls = %d, want 2 (invalid input never reaches the provider)", n)
	}
}

func TestWeatherService_CurrentWeather_Coalesces(t *testing.T) {
	mc := &mockWeatherClient{
		current: map[string]models.CurrentWeather{"London": {City: "London"}},
		delay:   100 * time.Millisecond,
	}
	svc := newTestService(mc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CurrentWeather(context.Background(), "London")
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&mc.currentCalls); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestWeatherService_DailySummary(t *testing.T) {
	svc := newTestService(&mockWeatherClient{forecast: twoDayForecast()})

	days, err := svc.DailySummary(context.Background(), "London")
	if err != nil {
		t.Fatalf("DailySummary() error = %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("len(days) = %d, want 2", len(days))
	}
	if days[0].Date != "2026-05-01" || days[1].Date != "2026-05-02" {
		t.Errorf("dates = %s, %s", days[0].Date, days[1].Date)
	}
	if days[1].TempAvg != 21 || days[1].TempMin != 19 || days[1].TempMax != 23 {
		t.Errorf("day 2 = %+v", days[1])
	}
}

func TestWeatherService_FindBestDay(t *testing.T) {
	svc := newTestService(&mockWeatherClient{forecast: twoDayForecast()})

	best, err := svc.FindBestDay(context.Background(), "London")
	if err != nil {
		t.Fatalf("FindBestDay() error = %v", err)
	}
	if best.Date != "2026-05-02" {
		t.Errorf("Date = %q, want 2026-05-02", best.Date)
	}
	if len(best.AllDays) != 2 {
		t.Errorf("len(AllDays) = %d, want 2", len(best.AllDays))
	}
	if len(best.Reasoning) == 0 {
		t.Error("Reasoning is empty")
	}
}

func TestWeatherService_FindBestDay_EmptyForecast(t *testing.T) {
	svc := newTestService(&mockWeatherClient{forecast: models.Forecast{City: "London"}})

	_, err := svc.FindBestDay(context.Background(), "London")
	if !errors.Is(err, analyzer.ErrNoForecastData) {
		t.Errorf("FindBestDay() error = %v, want ErrNoForecastData", err)
	}
}

func TestWeatherService_FindBestDay_FetchFailure(t *testing.T) {
	svc := newTestService(&mockWeatherClient{err: map[string]error{"London": client.ErrRateLimited}})

	_, err := svc.FindBestDay(context.Background(), "London")
	if !errors.Is(err, client.ErrRateLimited) {
		t.Errorf("FindBestDay() error = %v, want wrapped ErrRateLimited", err)
	}
	if errors.Is(err, analyzer.ErrNoForecastData) {
		t.Error("fetch failure must not be reported as empty forecast")
	}
}

func TestWeatherService_CompareDays(t *testing.T) {
	svc := newTestService(&mockWeatherClient{forecast: twoDayForecast()})

	ranked, err := svc.CompareDays(context.Background(), "London")
	if err != nil {
		t.Fatalf("CompareDays() error = %v", err)
	}
	if len(ranked) != 2 || ranked[0].Date != "2026-05-02" {
		t.Fatalf("ranked = %+v, want 2026-05-02 first", ranked)
	}
	if ranked[0].Score < ranked[1].Score {
		t.Errorf("scores not descending: %v, %v", ranked[0].Score, ranked[1].Score)
	}
}

func TestWeatherService_CheckCurrentTemperature(t *testing.T) {
	mc := &mockWeatherClient{
		current: map[string]models.CurrentWeather{"Oslo": {City: "Oslo", Temperature: 10}},
		err:     map[string]error{"Cairo": client.ErrUpstreamFailure},
	}
	svc := newTestService(mc)

	rec := svc.CheckCurrentTemperature(context.Background(), "Oslo")
	if rec.Status != models.StatusTooCold || rec.Severity != models.SeverityMedium {
		t.Errorf("Oslo = %s/%s, want too_cold/medium", rec.Status, rec.Severity)
	}

	rec = svc.CheckCurrentTemperature(context.Background(), "Cairo")
	if rec.Status != models.StatusError {
		t.Errorf("Cairo status = %s, want error", rec.Status)
	}
	if rec.City != "Cairo" || rec.Temperature != nil {
		t.Errorf("error record = %+v", rec)
	}
	if !strings.HasPrefix(rec.Message, "Error checking temperature:") {
		t.Errorf("Message = %q", rec.Message)
	}
}

func TestWeatherService_ForecastAlerts(t *testing.T) {
	svc := newTestService(&mockWeatherClient{forecast: twoDayForecast()})

	got := svc.ForecastAlerts(context.Background(), "London")
	if len(got) != 1 || got[0].Date != "2026-05-01" {
		t.Fatalf("ForecastAlerts() = %+v, want only the cold first day", got)
	}
	if !strings.HasPrefix(got[0].Alerts[0], "Morning cold") {
		t.Errorf("Alerts = %v", got[0].Alerts)
	}
}

func TestWeatherService_ForecastAlerts_FetchFailure(t *testing.T) {
	svc := newTestService(&mockWeatherClient{err: map[string]error{"London": client.ErrUpstreamFailure}})

	got := svc.ForecastAlerts(context.Background(), "London")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 error entry", len(got))
	}
	if got[0].Error == "" || got[0].Date != "error" {
		t.Errorf("entry = %+v, want error entry", got[0])
	}
}

func TestWeatherService_ComfortableDays(t *testing.T) {
	svc := newTestService(&mockWeatherClient{forecast: twoDayForecast()})

	days, err := svc.ComfortableDays(context.Background(), "London")
	if err != nil {
		t.Fatalf("ComfortableDays() error = %v", err)
	}
	if len(days) != 1 || days[0].Date != "2026-05-02" {
		t.Errorf("ComfortableDays() = %+v, want 2026-05-02 only", days)
	}
}

func TestWeatherService_CompareCities(t *testing.T) {
	mc := &mockWeatherClient{
		current: map[string]models.CurrentWeather{
			"London": {City: "London", Temperature: 12},
			"Tokyo":  {City: "Tokyo", Temperature: 24},
		},
		err: map[string]error{"Paris": client.ErrUpstreamFailure},
	}
	svc := newTestService(mc)

	cities := []string{"Tokyo", "Paris", "London", "Atlantis"}
	got := svc.CompareCities(context.Background(), cities)
	if len(got) != len(cities) {
		t.Fatalf("len = %d, want %d", len(got), len(cities))
	}
	for i, r := range got {
		if r.City != cities[i] {
			t.Errorf("result %d city = %q, want %q", i, r.City, cities[i])
		}
	}
	if got[0].Weather == nil || got[0].Weather.Temperature != 24 {
		t.Errorf("Tokyo = %+v", got[0])
	}
	if got[1].Err == nil || got[3].Err == nil {
		t.Error("Paris and Atlantis should carry errors")
	}
	if got[2].Weather == nil || got[2].Err != nil {
		t.Errorf("London = %+v", got[2])
	}
}

func TestWeatherService_Prefetch(t *testing.T) {
	mc := &mockWeatherClient{
		current:  map[string]models.CurrentWeather{"London": {City: "London"}},
		forecast: twoDayForecast(),
	}
	svc := newTestService(mc)

	if err := svc.Prefetch(context.Background(), "London"); err != nil {
		t.Fatalf("Prefetch() error = %v", err)
	}
	if _, err := svc.FindBestDay(context.Background(), "london"); err != nil {
		t.Fatalf("FindBestDay() error = %v", err)
	}
	if n := atomic.LoadInt32(&mc.forecastCalls); n != 1 {
		t.Errorf("forecast calls = %d, want 1 (served from warmed cache)", n)
	}
}

func TestAlertKind(t *testing.T) {
	tests := map[string]string{
		"Morning cold: 3.0°C (12.0°C below comfortable)": "cold",
		"Afternoon heat: 30.0°C (5.0°C above comfortable)": "heat",
		"Freezing conditions expected!":                   "freezing",
		"Extreme heat expected!":                          "extreme_heat",
		"Large temperature swing: 16.0°C variation":       "swing",
		"something else":                                  "other",
	}
	for msg, want := range tests {
		if got := alertKind(msg); got != want {
			t.Errorf("alertKind(%q) = %q, want %q", msg, got, want)
		}
	}
}
