package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/report"
)

// errReported marks a failure whose message was already written for the user.
var errReported = errors.New("reported")

// dashboard is the service surface the report commands use.
type dashboard interface {
	CurrentWeather(ctx context.Context, city string) (models.CurrentWeather, error)
	DailySummary(ctx context.Context, city string) ([]models.DailySummary, error)
	FindBestDay(ctx context.Context, city string) (models.BestDay, error)
	CheckCurrentTemperature(ctx context.Context, city string) models.AlertRecord
	ForecastAlerts(ctx context.Context, city string) []models.DayAlert
	ComfortableDays(ctx context.Context, city string) ([]models.DailySummary, error)
	CompareCities(ctx context.Context, cities []string) []models.CityResult
	Comfort() models.TempRange
	Preferred() models.TempRange
}

// commandFunc runs one report command. timeout bounds the work for each city,
// so a long batch never starves the cities at its end.
type commandFunc func(ctx context.Context, d dashboard, timeout time.Duration, defaults, args []string, out io.Writer) error

var commands = map[string]commandFunc{
	"report":   runReport,
	"forecast": runForecast,
	"best-day": runBestDay,
	"alerts":   runAlerts,
	"compare":  runCompare,
}

// runCommand parses the shared -timeout flag and runs a report command.
func runCommand(name string, d dashboard, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", commandTimeout(cfg), "deadline for each city's lookups")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return commands[name](context.Background(), d, *timeout, cfg.Cities, fs.Args(), stdout)
}

func commandTimeout(cfg *config.Config) time.Duration {
	if cfg.RequestTimeout > 0 {
		return 2 * cfg.RequestTimeout
	}
	return 30 * time.Second
}

func singleCity(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("city argument required")
	}
	return strings.Join(args, " "), nil
}

// runReport prints the full report for one city, or for every configured city
// when none is given. Only the single-city form fails on lookup errors.
func runReport(ctx context.Context, d dashboard, timeout time.Duration, defaults, args []string, out io.Writer) error {
	cities := defaults
	single := len(args) > 0
	if single {
		cities = []string{strings.Join(args, " ")}
	}
	failed := false
	for _, city := range cities {
		cityCtx, cancel := context.WithTimeout(ctx, timeout)
		current, currentErr := d.CurrentWeather(cityCtx, city)
		days, daysErr := d.DailySummary(cityCtx, city)
		cancel()
		fmt.Fprint(out, report.FullReport(city, current, currentErr, days, daysErr))
		if currentErr != nil || daysErr != nil {
			failed = true
		}
	}
	if single && failed {
		return errReported
	}
	return nil
}

func runForecast(ctx context.Context, d dashboard, timeout time.Duration, _, args []string, out io.Writer) error {
	city, err := singleCity(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	days, err := d.DailySummary(ctx, city)
	if err != nil {
		fmt.Fprint(out, report.Error(city, err))
		return errReported
	}
	fmt.Fprintf(out, "%s\n", strings.ToUpper(city))
	fmt.Fprint(out, report.Forecast(days))
	return nil
}

func runBestDay(ctx context.Context, d dashboard, timeout time.Duration, _, args []string, out io.Writer) error {
	city, err := singleCity(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	best, err := d.FindBestDay(ctx, city)
	if err != nil {
		fmt.Fprint(out, report.Error(city, err))
		return errReported
	}
	fmt.Fprint(out, report.BestDay(city, best, d.Preferred()))
	return nil
}

func runAlerts(ctx context.Context, d dashboard, timeout time.Duration, _, args []string, out io.Writer) error {
	city, err := singleCity(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rec := d.CheckCurrentTemperature(ctx, city)
	upcoming := d.ForecastAlerts(ctx, city)
	comfortable, err := d.ComfortableDays(ctx, city)
	if err != nil {
		comfortable = nil
	}
	fmt.Fprint(out, report.Alerts(rec, upcoming, comfortable, d.Comfort()))
	if rec.Status == models.StatusError {
		return errReported
	}
	return nil
}

// runCompare fetches every city concurrently, so one timeout covers the batch.
func runCompare(ctx context.Context, d dashboard, timeout time.Duration, defaults, args []string, out io.Writer) error {
	cities := args
	if len(cities) == 0 {
		cities = defaults
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	fmt.Fprint(out, report.Comparison(d.CompareCities(ctx, cities)))
	return nil
}
