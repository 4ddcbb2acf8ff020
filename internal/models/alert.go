package models

// AlertStatus classifies a single temperature reading against the comfortable range.
type AlertStatus string

const (
	StatusComfortable AlertStatus = "comfortable"
	StatusTooCold     AlertStatus = "too_cold"
	StatusTooHot      AlertStatus = "too_hot"
	StatusError       AlertStatus = "error"
)

// Severity is the urgency tier of an alert.
type Severity string

const (
	SeverityNone    Severity = "none"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityExtreme Severity = "extreme"
)

// AlertRecord is the result of checking a city's current temperature.
// Temperature is nil when the lookup failed.
type AlertRecord struct {
	City        string      `json:"city"`
	Temperature *float64    `json:"temperature"`
	Status      AlertStatus `json:"status"`
	Severity    Severity    `json:"severity"`
	Message     string      `json:"message"`
}

// DayAlert lists the forecast alerts raised for one day. Error is set only on
// the single entry returned when the forecast could not be fetched.
type DayAlert struct {
	Date    string   `json:"date"`
	TempMin float64  `json:"tempMin"`
	TempMax float64  `json:"tempMax"`
	Alerts  []string `json:"alerts"`
	Error   string   `json:"error,omitempty"`
}
