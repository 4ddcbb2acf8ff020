package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/tui"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `Usage: weather-dashboard <command> [flags] [args]

Commands:
  report [city]         current weather and 5-day forecast (all configured cities when omitted)
  forecast <city>       daily forecast summaries
  best-day <city>       best day for outdoor activities with full ranking
  alerts <city>         current and forecast temperature alerts
  compare [city...]     current conditions side by side (configured cities when omitted)
  serve                 run the HTTP API
  tui                   interactive terminal dashboard

Run 'weather-dashboard <command> -h' for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		args = []string{"report"}
	}
	cmd, rest := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Fprint(stdout, usage)
		return 0
	}
	if _, ok := commands[cmd]; !ok && cmd != "serve" && cmd != "tui" {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	var (
		logger *zap.Logger
		err    error
	)
	switch cmd {
	case "serve":
		logger, err = observability.NewLogger()
	case "tui":
		logger, err = observability.NewTUILogger()
	default:
		logger, err = observability.NewCLILogger()
	}
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = observability.FlushTelemetry(context.Background(), logger) }()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	reportWarnings(cmd, cfg.Warnings, logger, stderr)

	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return 1
	}
	defer a.close()

	switch cmd {
	case "serve":
		if err := runServe(cfg, logger, a, rest); err != nil {
			logger.Error("server", zap.Error(err))
			fmt.Fprintf(stderr, "serve: %v\n", err)
			return 1
		}
		return 0
	case "tui":
		m := tui.New(a.svc, cfg.Cities, tui.Options{Timeout: cfg.RequestTimeout})
		if _, err := tea.NewProgram(m).Run(); err != nil {
			fmt.Fprintf(stderr, "tui: %v\n", err)
			return 1
		}
		return 0
	}

	if err := runCommand(cmd, a.svc, cfg, rest, stdout, stderr); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		}
		return 1
	}
	return 0
}

// reportWarnings surfaces recoverable config problems: logged for the server,
// printed for interactive commands.
func reportWarnings(cmd string, warnings []string, logger *zap.Logger, stderr io.Writer) {
	for _, w := range warnings {
		if cmd == "serve" {
			logger.Warn("config warning", zap.String("warning", w))
			continue
		}
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
}

// app holds the wired service and the resources main must release.
type app struct {
	svc       *service.WeatherService
	cachePing func() error
	closers   []func() error
	logger    *zap.Logger
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	weatherClient, err := newWeatherClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger}

	var (
		current   cache.Cache[models.CurrentWeather]
		forecasts cache.Cache[models.Forecast]
	)
	switch cfg.CacheBackend {
	case cache.BackendMemcached:
		mc := cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		current = cache.NewMemcachedCache[models.CurrentWeather](mc, "current")
		forecasts = cache.NewMemcachedCache[models.Forecast](mc, "forecast")
		a.cachePing = mc.Ping
		a.closers = append(a.closers, mc.Close)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case cache.BackendNone:
		current = cache.NoopCache[models.CurrentWeather]{}
		forecasts = cache.NoopCache[models.Forecast]{}
		logger.Info("cache backend: none")
	default:
		current = cache.NewInMemoryCache[models.CurrentWeather]()
		forecasts = cache.NewInMemoryCache[models.Forecast]()
		logger.Info("cache backend: in_memory")
	}

	observability.SetTrackedCities(cfg.Cities)
	a.svc = service.NewWeatherService(weatherClient, current, forecasts, service.Config{
		CurrentTTL:      cfg.CurrentTTL,
		ForecastTTL:     cfg.ForecastTTL,
		CoalesceTimeout: cfg.CoalesceTimeout,
		Comfort:         cfg.Comfort,
		Preferred:       cfg.Preferred,
		Timezone:        cfg.ForecastTimezone,
	}, logger)
	return a, nil
}

// newWeatherClient builds the provider client with its circuit breaker and optional outbound limiter.
func newWeatherClient(cfg *config.Config, logger *zap.Logger) (*client.OpenWeatherClient, error) {
	c, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}

	const component = "weather_api"
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        component,
		IsFailure:        countsAgainstProvider,
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
			logger.Warn("circuit breaker state change",
				zap.String("component", component),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	c.SetCircuitBreaker(cb)
	observability.CircuitBreakerState.WithLabelValues(component).Set(0)

	if cfg.UpstreamRPS > 0 {
		c.SetRateLimiter(rate.NewLimiter(rate.Limit(cfg.UpstreamRPS), 1))
	}
	return c, nil
}

// countsAgainstProvider reports whether err reflects provider health. Unknown cities
// and a bad API key are answered correctly by a healthy provider.
func countsAgainstProvider(err error) bool {
	return !errors.Is(err, client.ErrLocationNotFound) && !errors.Is(err, client.ErrInvalidAPIKey)
}
