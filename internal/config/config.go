package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// DefaultCities is used when neither the config nor the cities file lists any.
var DefaultCities = []string{"London", "New York", "Tokyo"}

// Config holds application configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend          string
	CurrentTTL            time.Duration
	ForecastTTL           time.Duration
	CoalesceTimeout       time.Duration
	WarmInterval          time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	UpstreamRPS    float64

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	Comfort   models.TempRange
	Preferred models.TempRange

	ForecastTimezone string

	Cities []string

	ShutdownTimeout  time.Duration
	DegradedWindow   time.Duration
	DegradedErrorPct int

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration

	// Warnings lists recoverable problems found while loading, such as an
	// unreadable cities file. Callers report them; Load does not log.
	Warnings []string
}

type tempRangeFile struct {
	Min *float64 `yaml:"min_temp"`
	Max *float64 `yaml:"max_temp"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		CurrentTTL      string `yaml:"current_ttl"`
		ForecastTTL     string `yaml:"forecast_ttl"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		WarmInterval    string `yaml:"warm_interval"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int     `yaml:"retry_max_attempts"`
		RetryBaseDelay   string  `yaml:"retry_base_delay"`
		RetryMaxDelay    string  `yaml:"retry_max_delay"`
		RateLimitRPS     int     `yaml:"rate_limit_rps"`
		RateLimitBurst   int     `yaml:"rate_limit_burst"`
		UpstreamRPS      float64 `yaml:"upstream_rps"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Comfort     tempRangeFile `yaml:"comfort"`
	Preferences tempRangeFile `yaml:"preferences"`

	Forecast struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"forecast"`

	Cities     []string `yaml:"cities"`
	CitiesFile string   `yaml:"cities_file"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`

		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleWindow             string `yaml:"idle_window"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

type citiesFile struct {
	Cities []string `json:"cities"`
}

// Load reads configuration from CONFIG_PATH, or config/{ENV_NAME}.yaml (default dev)
// relative to the working directory, then config/secrets.yaml and .env. A missing
// default config file yields built-in defaults; an explicitly named one is an error.
// The API key comes from WEATHER_API_KEY, OPENWEATHER_API_KEY or the secrets file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	configPath, explicit := os.Getenv("CONFIG_PATH"), true
	if configPath == "" {
		env := os.Getenv("ENV_NAME")
		explicit = env != ""
		if env == "" {
			env = "dev"
		}
		configPath = filepath.Join(cwd, "config", env+".yaml")
	}

	var fc fileConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("config file not found: %s", configPath)
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	key, err := loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}

	cfg := fromFile(fc)
	cfg.WeatherAPIKey = key

	cities, warning := resolveCities(fc, filepath.Dir(configPath))
	cfg.Cities = cities
	if warning != "" {
		cfg.Warnings = append(cfg.Warnings, warning)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKey(cwd string) (string, error) {
	for _, name := range []string{"WEATHER_API_KEY", "OPENWEATHER_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}

	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	if err == nil {
		var sec secretsFile
		if err := yaml.Unmarshal(data, &sec); err != nil {
			return "", fmt.Errorf("parse secrets file: %w", err)
		}
		if sec.WeatherAPIKey != "" {
			return sec.WeatherAPIKey, nil
		}
	}
	return "", fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = client.DefaultBaseURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = cache.BackendInMemory
	}
	cfg.CurrentTTL = parseDuration(fc.Cache.CurrentTTL, 5*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.ForecastTTL, 30*time.Minute)
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 30*time.Second)
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	r := fc.Reliability
	cfg.RetryAttempts = r.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(r.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(r.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = r.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = r.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cfg.UpstreamRPS = r.UpstreamRPS
	cfg.BreakerFailureThreshold = r.CircuitBreaker.FailureThreshold
	cfg.BreakerSuccessThreshold = r.CircuitBreaker.SuccessThreshold
	cfg.BreakerTimeout = parseDurationOrZero(r.CircuitBreaker.Timeout, 0)

	cfg.Comfort = tempRange(fc.Comfort)
	cfg.Preferred = tempRange(fc.Preferences)

	cfg.ForecastTimezone = strings.TrimSpace(fc.Forecast.Timezone)
	if cfg.ForecastTimezone == "" {
		cfg.ForecastTimezone = "local"
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 25
	}

	cfg.OverloadWindow = parseDuration(fc.Health.OverloadWindow, time.Minute)
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleWindow = parseDuration(fc.Health.IdleWindow, 5*time.Minute)
	cfg.IdleThresholdReqPerMin = fc.Health.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.MinimumLifespan = parseDuration(fc.Health.MinimumLifespan, 5*time.Minute)
	return cfg
}

func tempRange(r tempRangeFile) models.TempRange {
	out := models.DefaultTempRange
	if r.Min != nil {
		out.Min = *r.Min
	}
	if r.Max != nil {
		out.Max = *r.Max
	}
	return out
}

// resolveCities prefers the inline list, then cities_file (relative to the config
// directory), then DefaultCities. An unusable cities file falls back to the
// defaults and is described in the returned warning.
func resolveCities(fc fileConfig, baseDir string) ([]string, string) {
	if cities := cleanCities(fc.Cities); len(cities) > 0 {
		return cities, ""
	}
	defaults := append([]string(nil), DefaultCities...)
	if fc.CitiesFile == "" {
		return defaults, ""
	}
	path := fc.CitiesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	cities, err := LoadCities(path)
	if err != nil {
		return defaults, fmt.Sprintf("%v; using default cities %s", err, strings.Join(DefaultCities, ", "))
	}
	return cities, ""
}

// LoadCities reads a JSON file of the form {"cities": ["London", ...]}.
func LoadCities(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}
	var cf citiesFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse cities file: %w", err)
	}
	cities := cleanCities(cf.Cities)
	if len(cities) == 0 {
		return nil, fmt.Errorf("cities file %s lists no cities", path)
	}
	return cities, nil
}

func cleanCities(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range in {
		c = strings.TrimSpace(c)
		k := strings.ToLower(c)
		if c == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(os.Getenv("WEATHER_API_URL")); v != "" {
		cfg.WeatherAPIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("FORECAST_TIMEZONE")); v != "" {
		cfg.ForecastTimezone = v
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above the
// upstream timeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case cache.BackendInMemory, cache.BackendMemcached, cache.BackendNone:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or none, got %q", cfg.CacheBackend)
	}
	if cfg.Comfort.Min >= cfg.Comfort.Max {
		return fmt.Errorf("comfort.min_temp (%.1f) must be below comfort.max_temp (%.1f)", cfg.Comfort.Min, cfg.Comfort.Max)
	}
	if cfg.Preferred.Min >= cfg.Preferred.Max {
		return fmt.Errorf("preferences.min_temp (%.1f) must be below preferences.max_temp (%.1f)", cfg.Preferred.Min, cfg.Preferred.Max)
	}
	if _, err := forecast.Location(cfg.ForecastTimezone, 0); err != nil {
		return fmt.Errorf("forecast.timezone: %w", err)
	}
	if cfg.UpstreamRPS < 0 {
		return fmt.Errorf("reliability.upstream_rps must not be negative")
	}
	return nil
}
