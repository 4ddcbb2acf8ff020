package analyzer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kjstillabower/weather-dashboard/internal/forecast"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// ErrNoForecastData is returned when there are no days to choose from.
var ErrNoForecastData = errors.New("no forecast data available")

// ScoreDays scores every day, keeping input order.
func (s Scorer) ScoreDays(days []models.DailySummary) []models.ScoredDay {
	out := make([]models.ScoredDay, 0, len(days))
	for _, d := range days {
		out = append(out, models.ScoredDay{Date: d.Date, Score: s.Score(d), Summary: d})
	}
	return out
}

// FindBestDay picks the highest-scoring day. On equal scores the earliest day in
// input order wins. Returns ErrNoForecastData when days is empty.
func (s Scorer) FindBestDay(days []models.DailySummary) (models.BestDay, error) {
	if len(days) == 0 {
		return models.BestDay{}, ErrNoForecastData
	}
	scored := s.ScoreDays(days)
	best := scored[0]
	for _, d := range scored[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	return models.BestDay{
		Date:      best.Date,
		Score:     best.Score,
		Weather:   best.Summary,
		Reasoning: s.Reasoning(best.Summary, best.Score),
		AllDays:   scored,
	}, nil
}

// RankDays returns a copy of scored sorted by descending score with scores
// rounded to one decimal. Equal scores keep their input order.
func RankDays(scored []models.ScoredDay) []models.ScoredDay {
	ranked := make([]models.ScoredDay, len(scored))
	copy(ranked, scored)
	for i := range ranked {
		ranked[i].Score = forecast.Round1(ranked[i].Score)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Reasoning explains a day's score: one line each for temperature, rain, wind
// and an overall assessment.
func (s Scorer) Reasoning(day models.DailySummary, score float64) []string {
	reasons := make([]string, 0, 4)

	switch {
	case s.preferred.Contains(day.TempAvg):
		reasons = append(reasons, fmt.Sprintf("Comfortable temperature: %.1f°C", day.TempAvg))
	case day.TempAvg < s.preferred.Min:
		reasons = append(reasons, fmt.Sprintf("Cooler than ideal: %.1f°C", day.TempAvg))
	default:
		reasons = append(reasons, fmt.Sprintf("Warmer than ideal: %.1f°C", day.TempAvg))
	}

	rain := day.RainProbability
	switch {
	case rain < 10:
		reasons = append(reasons, fmt.Sprintf("Very low rain chance: %.0f%%", rain))
	case rain < 30:
		reasons = append(reasons, fmt.Sprintf("Low rain chance: %.0f%%", rain))
	case rain < 50:
		reasons = append(reasons, fmt.Sprintf("Moderate rain chance: %.0f%%", rain))
	default:
		reasons = append(reasons, fmt.Sprintf("High rain chance: %.0f%%", rain))
	}

	wind := day.MaxWindSpeed
	switch {
	case wind < 5:
		reasons = append(reasons, fmt.Sprintf("Calm winds: %.1f m/s", wind))
	case wind < 10:
		reasons = append(reasons, fmt.Sprintf("Light breeze: %.1f m/s", wind))
	default:
		reasons = append(reasons, fmt.Sprintf("Windy conditions: %.1f m/s", wind))
	}

	return append(reasons, overallAssessment(score))
}

func overallAssessment(score float64) string {
	switch {
	case score >= 90:
		return "Perfect conditions for outdoor activities!"
	case score >= 75:
		return "Great day for being outside!"
	case score >= 60:
		return "Good day, though not perfect"
	case score >= 40:
		return "Fair day with some challenges"
	}
	return "Challenging weather conditions"
}
