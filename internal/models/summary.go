package models

import "encoding/json"

// DateLayout is the calendar-day format used for DailySummary.Date.
const DateLayout = "2006-01-02"

// DailySummary aggregates one calendar day of forecast entries.
// RainProbability is the worst slot of the day, not an average.
type DailySummary struct {
	Date            string  `json:"date"`
	TempAvg         float64 `json:"tempAvg"`
	TempMin         float64 `json:"tempMin"`
	TempMax         float64 `json:"tempMax"`
	AvgHumidity     float64 `json:"avgHumidity"`
	MaxWindSpeed    float64 `json:"maxWindSpeed"`
	RainProbability float64 `json:"rainProbability"`
	Description     string  `json:"description"`
}

// ScoredDay pairs a day with its desirability score (0-100).
type ScoredDay struct {
	Date    string       `json:"date"`
	Score   float64      `json:"score"`
	Summary DailySummary `json:"summary"`
}

// BestDay is the recommendation for a city's forecast window.
type BestDay struct {
	Date      string       `json:"date"`
	Score     float64      `json:"score"`
	Weather   DailySummary `json:"weather"`
	Reasoning []string     `json:"reasoning"`
	AllDays   []ScoredDay  `json:"allDays"`
}

// TempRange is a [Min, Max] band in °C. It serves both as the comfortable
// range for alerts and the preferred range for scoring.
type TempRange struct {
	Min float64 `json:"min" yaml:"min_temp"`
	Max float64 `json:"max" yaml:"max_temp"`
}

// DefaultTempRange is used when no range is configured.
var DefaultTempRange = TempRange{Min: 15, Max: 25}

// Midpoint returns the centre of the range.
func (r TempRange) Midpoint() float64 {
	return (r.Min + r.Max) / 2
}

// Contains reports whether v lies within the range, bounds included.
func (r TempRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// CityResult is one entry of a multi-city batch: exactly one of Weather or Err is set.
type CityResult struct {
	City    string
	Weather *CurrentWeather
	Err     error
}

// MarshalJSON exposes Err as a string so batch results can be served as JSON.
func (r CityResult) MarshalJSON() ([]byte, error) {
	out := struct {
		City    string          `json:"city"`
		Weather *CurrentWeather `json:"weather,omitempty"`
		Error   string          `json:"error,omitempty"`
	}{City: r.City, Weather: r.Weather}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
