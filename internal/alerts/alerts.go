package alerts

import (
	"fmt"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Absolute thresholds (°C) that override the comfort-band classification.
const (
	FreezingTemp    = 0.0
	ExtremeHeatTemp = 35.0
	// SwingThreshold is the intra-day max-min spread that raises a swing alert.
	SwingThreshold = 15.0
	// ComfortTolerance is how far a comfortable day's extremes may stray outside the range.
	ComfortTolerance = 5.0
	// highSeverityDiff is how far outside the band a reading must be for high severity.
	highSeverityDiff = 10.0
)

// Evaluator classifies temperatures against a comfortable range.
type Evaluator struct {
	comfort models.TempRange
}

// NewEvaluator returns an Evaluator holding its own copy of the comfortable range.
func NewEvaluator(comfort models.TempRange) Evaluator {
	return Evaluator{comfort: comfort}
}

// Comfort returns the comfortable range.
func (e Evaluator) Comfort() models.TempRange {
	return e.comfort
}

// CheckCurrent classifies the current temperature. The comfort band decides the
// status and a medium/high severity; readings below freezing or above extreme
// heat are then escalated to extreme regardless of the band.
func (e Evaluator) CheckCurrent(w models.CurrentWeather) models.AlertRecord {
	temp := w.Temperature
	rec := models.AlertRecord{
		City:        w.City,
		Temperature: &temp,
		Status:      models.StatusComfortable,
		Severity:    models.SeverityNone,
		Message:     "Temperature is comfortable",
	}

	switch {
	case temp < e.comfort.Min:
		diff := e.comfort.Min - temp
		rec.Status = models.StatusTooCold
		rec.Severity = bandSeverity(diff)
		rec.Message = fmt.Sprintf("COLD ALERT: %.1f°C is %.1f°C below comfortable range", temp, diff)
	case temp > e.comfort.Max:
		diff := temp - e.comfort.Max
		rec.Status = models.StatusTooHot
		rec.Severity = bandSeverity(diff)
		rec.Message = fmt.Sprintf("HEAT ALERT: %.1f°C is %.1f°C above comfortable range", temp, diff)
	}

	switch {
	case temp < FreezingTemp:
		rec.Severity = models.SeverityExtreme
		rec.Message = fmt.Sprintf("EXTREME COLD: %.1f°C - Freezing conditions!", temp)
	case temp > ExtremeHeatTemp:
		rec.Severity = models.SeverityExtreme
		rec.Message = fmt.Sprintf("EXTREME HEAT: %.1f°C - Very hot conditions!", temp)
	}
	return rec
}

func bandSeverity(diff float64) models.Severity {
	if diff > highSeverityDiff {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// ErrorRecord is the alert returned when the current conditions could not be fetched.
func ErrorRecord(city string, err error) models.AlertRecord {
	return models.AlertRecord{
		City:     city,
		Status:   models.StatusError,
		Severity: models.SeverityNone,
		Message:  fmt.Sprintf("Error checking temperature: %v", err),
	}
}

// ForecastAlerts checks each day independently and returns only the days that
// raised at least one alert, in input order.
func (e Evaluator) ForecastAlerts(days []models.DailySummary) []models.DayAlert {
	out := make([]models.DayAlert, 0)
	for _, d := range days {
		var msgs []string
		if d.TempMin < e.comfort.Min {
			msgs = append(msgs, fmt.Sprintf("Morning cold: %.1f°C (%.1f°C below comfortable)", d.TempMin, e.comfort.Min-d.TempMin))
		}
		if d.TempMax > e.comfort.Max {
			msgs = append(msgs, fmt.Sprintf("Afternoon heat: %.1f°C (%.1f°C above comfortable)", d.TempMax, d.TempMax-e.comfort.Max))
		}
		if d.TempMin < FreezingTemp {
			msgs = append(msgs, "Freezing conditions expected!")
		}
		if d.TempMax > ExtremeHeatTemp {
			msgs = append(msgs, "Extreme heat expected!")
		}
		if swing := d.TempMax - d.TempMin; swing > SwingThreshold {
			msgs = append(msgs, fmt.Sprintf("Large temperature swing: %.1f°C variation", swing))
		}
		if len(msgs) == 0 {
			continue
		}
		out = append(out, models.DayAlert{
			Date:    d.Date,
			TempMin: d.TempMin,
			TempMax: d.TempMax,
			Alerts:  msgs,
		})
	}
	return out
}

// ErrorDayAlerts is the single-entry list returned when the forecast could not be fetched.
func ErrorDayAlerts(err error) []models.DayAlert {
	msg := fmt.Sprintf("Error: %v", err)
	return []models.DayAlert{{Date: "error", Alerts: []string{msg}, Error: err.Error()}}
}

// ComfortableDays returns the days whose average lies inside the comfortable
// range and whose extremes stay within ComfortTolerance of it.
func (e Evaluator) ComfortableDays(days []models.DailySummary) []models.DailySummary {
	out := make([]models.DailySummary, 0)
	for _, d := range days {
		if !e.comfort.Contains(d.TempAvg) {
			continue
		}
		if d.TempMin >= e.comfort.Min-ComfortTolerance && d.TempMax <= e.comfort.Max+ComfortTolerance {
			out = append(out, d)
		}
	}
	return out
}
