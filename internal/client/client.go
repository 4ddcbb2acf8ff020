package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root; endpoints are appended to it.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

const (
	endpointWeather  = "weather"
	endpointForecast = "forecast"
)

// WeatherClient fetches raw provider data and maps it into display-ready records.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (models.CurrentWeather, error)
	GetForecast(ctx context.Context, city string) (models.Forecast, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("unexpected API response format")
)

type OpenWeatherClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
	limiter        *rate.Limiter
	titler         cases.Caser
}

func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
		titler: cases.Title(language.English),
	}, nil
}

// SetCircuitBreaker wraps every upstream attempt in cb. Pass nil to disable.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// SetRateLimiter makes every upstream attempt wait for a token from l. Pass nil to disable.
func (c *OpenWeatherClient) SetRateLimiter(l *rate.Limiter) {
	c.limiter = l
}

type mainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type conditionBlock struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type windBlock struct {
	Speed float64 `json:"speed"`
}

type cloudsBlock struct {
	All int `json:"all"`
}

type currentResponse struct {
	Dt      int64            `json:"dt"`
	Name    string           `json:"name"`
	Main    *mainBlock       `json:"main"`
	Weather []conditionBlock `json:"weather"`
	Wind    *windBlock       `json:"wind"`
	Clouds  cloudsBlock      `json:"clouds"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type forecastItem struct {
	Dt      int64            `json:"dt"`
	Main    *mainBlock       `json:"main"`
	Weather []conditionBlock `json:"weather"`
	Wind    *windBlock       `json:"wind"`
	Pop     float64          `json:"pop"`
}

type forecastResponse struct {
	List []forecastItem `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

// GetCurrentWeather fetches current conditions for city.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.CurrentWeather, error) {
	var resp currentResponse
	if err := c.fetch(ctx, endpointWeather, city, &resp); err != nil {
		return models.CurrentWeather{}, err
	}
	return c.mapCurrent(resp, city)
}

// GetForecast fetches the 5-day / 3-hour forecast for city.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, city string) (models.Forecast, error) {
	var resp forecastResponse
	if err := c.fetch(ctx, endpointForecast, city, &resp); err != nil {
		return models.Forecast{}, err
	}
	return c.mapForecast(resp, city)
}

// fetch calls endpoint with retries for transient failures and decodes the body into out.
func (c *OpenWeatherClient) fetch(ctx context.Context, endpoint, city string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(endpoint).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var body []byte
		call := func() error {
			var err error
			body, err = c.callAPI(ctx, endpoint, city)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(call)
		} else {
			err = call()
		}
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%w: parse %s response: %v", ErrMalformedResponse, endpoint, err)
			}
			return nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, city string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, endpoint, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout for city %q: %w", city, err)
		}
		return nil, fmt.Errorf("%w: http request failed: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp, city); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrUpstreamFailure, err)
	}
	return body, nil
}

func (c *OpenWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint, city string) (*http.Request, error) {
	endpointURL, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	endpointURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response, city string) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w: city %q", ErrLocationNotFound, city)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func (c *OpenWeatherClient) mapCurrent(r currentResponse, city string) (models.CurrentWeather, error) {
	if r.Main == nil {
		return models.CurrentWeather{}, fmt.Errorf("%w: missing main", ErrMalformedResponse)
	}
	if len(r.Weather) == 0 {
		return models.CurrentWeather{}, fmt.Errorf("%w: missing weather", ErrMalformedResponse)
	}

	name := r.Name
	if name == "" {
		name = city
	}
	var wind float64
	if r.Wind != nil {
		wind = r.Wind.Speed
	}

	return models.CurrentWeather{
		City:        name,
		Country:     r.Sys.Country,
		Temperature: round1(r.Main.Temp),
		FeelsLike:   round1(r.Main.FeelsLike),
		TempMin:     round1(r.Main.TempMin),
		TempMax:     round1(r.Main.TempMax),
		Humidity:    r.Main.Humidity,
		Pressure:    r.Main.Pressure,
		Description: c.describe(r.Weather[0]),
		WindSpeed:   wind,
		Clouds:      r.Clouds.All,
		ObservedAt:  observedAt(r.Dt),
	}, nil
}

func (c *OpenWeatherClient) mapForecast(r forecastResponse, city string) (models.Forecast, error) {
	if r.List == nil {
		return models.Forecast{}, fmt.Errorf("%w: missing list", ErrMalformedResponse)
	}

	name := r.City.Name
	if name == "" {
		name = city
	}
	out := models.Forecast{
		City:           name,
		Country:        r.City.Country,
		TimezoneOffset: r.City.Timezone,
		Entries:        make([]models.ForecastEntry, 0, len(r.List)),
	}
	for i, item := range r.List {
		if item.Main == nil || len(item.Weather) == 0 || item.Dt == 0 {
			return models.Forecast{}, fmt.Errorf("%w: incomplete forecast entry %d", ErrMalformedResponse, i)
		}
		var wind float64
		if item.Wind != nil {
			wind = item.Wind.Speed
		}
		out.Entries = append(out.Entries, models.ForecastEntry{
			Time:            time.Unix(item.Dt, 0),
			Temperature:     round1(item.Main.Temp),
			FeelsLike:       round1(item.Main.FeelsLike),
			TempMin:         round1(item.Main.TempMin),
			TempMax:         round1(item.Main.TempMax),
			Humidity:        item.Main.Humidity,
			Description:     c.describe(item.Weather[0]),
			WindSpeed:       wind,
			RainProbability: item.Pop * 100,
		})
	}
	return out, nil
}

// describe prefers the detailed description and title-cases it ("light rain" -> "Light Rain").
func (c *OpenWeatherClient) describe(w conditionBlock) string {
	d := w.Description
	if d == "" {
		d = w.Main
	}
	return c.titler.String(d)
}

func observedAt(dt int64) time.Time {
	if dt == 0 {
		return time.Now()
	}
	return time.Unix(dt, 0)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey makes a cheap lookup to confirm the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, endpointWeather, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
