package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const currentJSON = `{
	"dt": 1760000000,
	"name": "London",
	"sys": {"country": "GB"},
	"main": {"temp": 14.56, "feels_like": 13.9, "temp_min": 12.04, "temp_max": 16.2, "pressure": 1012, "humidity": 72},
	"weather": [{"main": "Clouds", "description": "scattered clouds"}],
	"wind": {"speed": 4.1},
	"clouds": {"all": 40}
}`

const forecastJSON = `{
	"city": {"name": "London", "country": "GB", "timezone": 3600},
	"list": [
		{"dt": 1760000400, "main": {"temp": 10.0, "feels_like": 9.0, "temp_min": 9.5, "temp_max": 10.5, "humidity": 80},
		 "weather": [{"main": "Rain", "description": "light rain"}], "wind": {"speed": 3.0}, "pop": 0.45},
		{"dt": 1760011200, "main": {"temp": 12.0, "feels_like": 11.0, "temp_min": 11.5, "temp_max": 12.5, "humidity": 70},
		 "weather": [{"main": "Clear", "description": ""}], "pop": 0}
	]
}`

func newTestClient(t *testing.T, url string, attempts int) *OpenWeatherClient {
	t.Helper()
	c, err := NewOpenWeatherClientWithRetry("test-api-key-12345", url, 2*time.Second, attempts, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}
	return c
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
		})
	}
}

func TestNewOpenWeatherClient_DefaultBaseURL(t *testing.T) {
	c, err := NewOpenWeatherClient("valid-api-key-12345", "", time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
}

func TestOpenWeatherClient_GetCurrentWeather_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/weather" {
			t.Errorf("path = %q, want /weather", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "london" || q.Get("units") != "metric" || q.Get("appid") == "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(currentJSON))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 1).GetCurrentWeather(context.Background(), "london")
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}

	if got.City != "London" || got.Country != "GB" {
		t.Errorf("City/Country = %q/%q, want London/GB", got.City, got.Country)
	}
	if got.Temperature != 14.6 {
		t.Errorf("Temperature = %v, want 14.6", got.Temperature)
	}
	if got.TempMin != 12.0 || got.TempMax != 16.2 {
		t.Errorf("TempMin/TempMax = %v/%v, want 12.0/16.2", got.TempMin, got.TempMax)
	}
	if got.Humidity != 72 || got.Pressure != 1012 || got.Clouds != 40 {
		t.Errorf("Humidity/Pressure/Clouds = %d/%d/%d", got.Humidity, got.Pressure, got.Clouds)
	}
	if got.Description != "Scattered Clouds" {
		t.Errorf("Description = %q, want %q", got.Description, "Scattered Clouds")
	}
	if got.WindSpeed != 4.1 {
		t.Errorf("WindSpeed = %v, want 4.1", got.WindSpeed)
	}
	if !got.ObservedAt.Equal(time.Unix(1760000000, 0)) {
		t.Errorf("ObservedAt = %v", got.ObservedAt)
	}
}

func TestOpenWeatherClient_GetForecast_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("path = %q, want /forecast", r.URL.Path)
		}
		_, _ = w.Write([]byte(forecastJSON))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 1).GetForecast(context.Background(), "London")
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if got.TimezoneOffset != 3600 {
		t.Errorf("TimezoneOffset = %d, want 3600", got.TimezoneOffset)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(got.Entries))
	}
	first := got.Entries[0]
	if first.RainProbability != 45 {
		t.Errorf("RainProbability = %v, want 45", first.RainProbability)
	}
	if first.Description != "Light Rain" {
		t.Errorf("Description = %q, want %q", first.Description, "Light Rain")
	}
	second := got.Entries[1]
	if second.Description != "Clear" {
		t.Errorf("Description falls back to main: got %q", second.Description)
	}
	if second.WindSpeed != 0 {
		t.Errorf("missing wind should map to 0, got %v", second.WindSpeed)
	}
}

func TestOpenWeatherClient_MalformedResponses(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		forecast bool
	}{
		{name: "invalid json", body: `not json`},
		{name: "missing main", body: `{"name":"X","weather":[{"description":"clear"}]}`},
		{name: "empty weather", body: `{"name":"X","main":{"temp":1},"weather":[]}`},
		{name: "forecast missing list", body: `{"city":{"name":"X"}}`, forecast: true},
		{name: "forecast entry missing main", body: `{"list":[{"dt":1,"weather":[{"description":"a"}]}]}`, forecast: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 3)
			var err error
			if tt.forecast {
				_, err = c.GetForecast(context.Background(), "X")
			} else {
				_, err = c.GetCurrentWeather(context.Background(), "X")
			}
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("error = %v, want ErrMalformedResponse", err)
			}
			if KindOf(err) != KindMalformed {
				t.Errorf("KindOf() = %q, want malformed", KindOf(err))
			}
		})
	}
}

func TestOpenWeatherClient_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
		retryable  bool
	}{
		{name: "401 invalid key", statusCode: http.StatusUnauthorized, wantErr: ErrInvalidAPIKey},
		{name: "404 not found", statusCode: http.StatusNotFound, wantErr: ErrLocationNotFound},
		{name: "429 rate limited", statusCode: http.StatusTooManyRequests, wantErr: ErrRateLimited, retryable: true},
		{name: "500 server error", statusCode: http.StatusInternalServerError, wantErr: ErrUpstreamFailure, retryable: true},
		{name: "503 unavailable", statusCode: http.StatusServiceUnavailable, wantErr: ErrUpstreamFailure, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 1)
			_, err := c.GetCurrentWeather(context.Background(), "somewhere")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if got := c.isRetryable(err); got != tt.retryable {
				t.Errorf("isRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestOpenWeatherClient_RetryLogic(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(currentJSON))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 3).GetCurrentWeather(context.Background(), "London")
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}
	if got.City != "London" {
		t.Errorf("City = %q, want London", got.City)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestOpenWeatherClient_NoRetryOnNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 3).GetForecast(context.Background(), "Atlantis")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("error = %v, want ErrLocationNotFound", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestOpenWeatherClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 2).GetCurrentWeather(context.Background(), "London")
	if err == nil || !strings.Contains(err.Error(), "exhausted retries") {
		t.Fatalf("error = %v, want exhausted retries", err)
	}
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("error should wrap ErrUpstreamFailure: %v", err)
	}
}

func TestOpenWeatherClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, server.URL, 1).GetCurrentWeather(ctx, "London")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("KindOf() = %q, want transient", KindOf(err))
	}
}

func TestOpenWeatherClient_CorrelationID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(currentJSON))
	}))
	defer server.Close()

	ctx := observability.WithCorrelationID(context.Background(), "corr-123")
	if _, err := newTestClient(t, server.URL, 1).GetCurrentWeather(ctx, "London"); err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}
	if got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

func TestOpenWeatherClient_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute}))

	for i := 0; i < 2; i++ {
		_, _ = c.GetCurrentWeather(context.Background(), "London")
	}
	_, err := c.GetCurrentWeather(context.Background(), "London")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("error = %v, want circuitbreaker.ErrOpen", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
	if c.isRetryable(err) {
		t.Error("open circuit must not be retried")
	}
}

func TestOpenWeatherClient_RateLimiterCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(currentJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	c.SetRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1))

	if _, err := c.GetCurrentWeather(context.Background(), "London"); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.GetCurrentWeather(ctx, "London")
	if err == nil || !strings.Contains(err.Error(), "rate limit wait") {
		t.Errorf("error = %v, want rate limit wait failure", err)
	}
}

func TestOpenWeatherClient_calculateBackoff(t *testing.T) {
	c, _ := NewOpenWeatherClientWithRetry("test-api-key-12345", "", time.Second, 5, 100*time.Millisecond, 300*time.Millisecond)
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{attempt: 1, min: 100 * time.Millisecond, max: 110 * time.Millisecond},
		{attempt: 2, min: 200 * time.Millisecond, max: 220 * time.Millisecond},
		{attempt: 4, min: 300 * time.Millisecond, max: 330 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			got := c.calculateBackoff(tt.attempt)
			if got < tt.min || got > tt.max {
				t.Errorf("calculateBackoff(%d) = %v, want [%v, %v]", tt.attempt, got, tt.min, tt.max)
			}
		})
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
		wantAnyErr bool
	}{
		{name: "valid", statusCode: http.StatusOK},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantErr: ErrInvalidAPIKey, wantAnyErr: true},
		{name: "500 server error", statusCode: http.StatusInternalServerError, wantAnyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := newTestClient(t, server.URL, 1).ValidateAPIKey(context.Background())
			if (err != nil) != tt.wantAnyErr {
				t.Fatalf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantAnyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "success",
		429: "rate_limited",
		404: "client_error",
		502: "server_error",
		302: "error",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
