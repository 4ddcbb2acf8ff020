//go:build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test when WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a live provider client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService builds a service over the live client. Memcached is used when
// requested and reachable, otherwise in-memory caches.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) *service.WeatherService {
	t.Helper()
	c := SetupIntegrationClient(t, cfg)

	var current cache.Cache[models.CurrentWeather] = cache.NewInMemoryCache[models.CurrentWeather]()
	var forecasts cache.Cache[models.Forecast] = cache.NewInMemoryCache[models.Forecast]()
	if cfg.CacheBackend == cache.BackendMemcached {
		mc := cache.NewMemcachedClient(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err != nil {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		} else {
			current = cache.NewMemcachedCache[models.CurrentWeather](mc, "it-current")
			forecasts = cache.NewMemcachedCache[models.Forecast](mc, "it-forecast")
			t.Cleanup(func() { _ = mc.Close() })
		}
	}
	return service.NewWeatherService(c, current, forecasts, service.Config{}, zap.NewNop())
}
