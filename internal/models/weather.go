package models

import "time"

// CurrentWeather is the display-ready view of a current-conditions lookup.
type CurrentWeather struct {
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Humidity    int       `json:"humidity"`
	Pressure    int       `json:"pressure"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"windSpeed"`
	Clouds      int       `json:"clouds"`
	ObservedAt  time.Time `json:"observedAt"`
}

// ForecastEntry is one 3-hour forecast slot. RainProbability is a percentage (0-100).
type ForecastEntry struct {
	Time            time.Time `json:"time"`
	Temperature     float64   `json:"temperature"`
	FeelsLike       float64   `json:"feelsLike"`
	TempMin         float64   `json:"tempMin"`
	TempMax         float64   `json:"tempMax"`
	Humidity        int       `json:"humidity"`
	Description     string    `json:"description"`
	WindSpeed       float64   `json:"windSpeed"`
	RainProbability float64   `json:"rainProbability"`
}

// Forecast is the full multi-day forecast for a city as returned by the provider.
type Forecast struct {
	City           string          `json:"city"`
	Country        string          `json:"country"`
	TimezoneOffset int             `json:"timezoneOffset"` // seconds east of UTC
	Entries        []ForecastEntry `json:"entries"`
}
