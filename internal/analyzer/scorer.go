package analyzer

import (
	"math"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// maxTempPenalty caps the deduction for a day outside the preferred range.
const maxTempPenalty = 40

// Scorer rates days for outdoor activities against a preferred temperature range.
// The zero value is not useful; build one with NewScorer.
type Scorer struct {
	preferred models.TempRange
}

// NewScorer returns a Scorer holding its own copy of the preferred range.
func NewScorer(preferred models.TempRange) Scorer {
	return Scorer{preferred: preferred}
}

// Preferred returns the range this scorer judges against.
func (s Scorer) Preferred() models.TempRange {
	return s.preferred
}

// Score returns a desirability score in [0, 100] for one day, deducting from a
// perfect 100 for temperature, rain chance, wind and humidity.
func (s Scorer) Score(day models.DailySummary) float64 {
	score := 100.0
	score -= s.temperaturePenalty(day.TempAvg)
	score -= rainPenalty(day.RainProbability)
	score -= windPenalty(day.MaxWindSpeed)
	score -= humidityPenalty(day.AvgHumidity)
	return math.Max(score, 0)
}

func (s Scorer) temperaturePenalty(avg float64) float64 {
	switch {
	case avg < s.preferred.Min:
		return math.Min((s.preferred.Min-avg)*2, maxTempPenalty)
	case avg > s.preferred.Max:
		return math.Min((avg-s.preferred.Max)*2, maxTempPenalty)
	default:
		return math.Abs(avg - s.preferred.Midpoint())
	}
}

func rainPenalty(pct float64) float64 {
	switch {
	case pct > 70:
		return 30
	case pct > 50:
		return 20
	case pct > 30:
		return 10
	case pct > 10:
		return 5
	}
	return 0
}

func windPenalty(speed float64) float64 {
	switch {
	case speed > 15:
		return 15
	case speed > 10:
		return 10
	case speed > 7:
		return 5
	}
	return 0
}

func humidityPenalty(pct float64) float64 {
	switch {
	case pct > 85:
		return 15
	case pct > 70:
		return 8
	case pct < 30:
		return 5
	}
	return 0
}
