// Package report renders dashboard records as styled terminal text.
// Every renderer is pure: it returns a string and never fetches data.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kjstillabower/weather-dashboard/internal/analyzer"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const width = 70

// rainyThreshold is the rain probability above which a day is flagged as wet.
const rainyThreshold = 30

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	bestStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))
)

func rule(ch string) string {
	return strings.Repeat(ch, width)
}

// Header is the dashboard banner.
func Header() string {
	var b strings.Builder
	b.WriteString(rule("="))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(center("WEATHER DASHBOARD")))
	b.WriteString("\n")
	b.WriteString(rule("="))
	b.WriteString("\n")
	return b.String()
}

func center(s string) string {
	pad := (width - len(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}

// Error describes a failed lookup for city in user terms.
func Error(city string, err error) string {
	return errorStyle.Render("Error: "+ErrorMessage(city, err)) + "\n"
}

// ErrorMessage turns a fetch error into a short user-facing sentence.
func ErrorMessage(city string, err error) string {
	if errors.Is(err, analyzer.ErrNoForecastData) {
		return fmt.Sprintf("No forecast data available for %s", city)
	}
	switch client.KindOf(err) {
	case client.KindNotFound:
		return fmt.Sprintf("City '%s' not found", city)
	case client.KindMalformed:
		return fmt.Sprintf("Unexpected response from weather provider for %s", city)
	}
	return fmt.Sprintf("Could not fetch weather for %s: %v", city, err)
}

// CurrentWeather renders one city's current conditions.
func CurrentWeather(w models.CurrentWeather) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render(place(w)))
	b.WriteString(rule("-"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %.1f°C (feels like %.1f°C)\n", labelStyle.Render("Temperature:"), w.Temperature, w.FeelsLike)
	fmt.Fprintf(&b, "%s %.1f°C - %.1f°C\n", labelStyle.Render("Range:      "), w.TempMin, w.TempMax)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Conditions: "), w.Description)
	fmt.Fprintf(&b, "%s %d%%\n", labelStyle.Render("Humidity:   "), w.Humidity)
	fmt.Fprintf(&b, "%s %.1f m/s\n", labelStyle.Render("Wind Speed: "), w.WindSpeed)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Updated:    "), w.ObservedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

func place(w models.CurrentWeather) string {
	if w.Country == "" {
		return strings.ToUpper(w.City)
	}
	return fmt.Sprintf("%s, %s", strings.ToUpper(w.City), w.Country)
}

// Forecast renders the daily summaries as a table.
func Forecast(days []models.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("5-DAY FORECAST"))
	b.WriteString(rule("-"))
	b.WriteString("\n")
	if len(days) == 0 {
		b.WriteString("No forecast data available\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%-12s | %-17s | %-20s | %s\n", "Date", "Temperature", "Conditions", "Rain")
	b.WriteString(rule("-"))
	b.WriteString("\n")
	for _, d := range days {
		tempRange := fmt.Sprintf("%.1f°C - %.1f°C", d.TempMin, d.TempMax)
		rain := fmt.Sprintf("%.0f%%", d.RainProbability)
		if d.RainProbability > rainyThreshold {
			rain = warnStyle.Render(rain + " wet")
		}
		fmt.Fprintf(&b, "%-12s | %-17s | %-20s | %s\n", d.Date, tempRange, truncate(d.Description, 20), rain)
	}
	return b.String()
}

// FullReport combines current conditions and the daily forecast; either half may have failed.
func FullReport(city string, current models.CurrentWeather, currentErr error, days []models.DailySummary, daysErr error) string {
	var b strings.Builder
	b.WriteString(Header())
	if currentErr != nil {
		b.WriteString(Error(city, currentErr))
	} else {
		b.WriteString(CurrentWeather(current))
	}
	if daysErr != nil {
		b.WriteString(Error(city, daysErr))
	} else {
		b.WriteString(Forecast(days))
	}
	b.WriteString(rule("="))
	b.WriteString("\n")
	return b.String()
}

// BestDay renders the recommendation and the full ranking with the top three marked.
func BestDay(city string, best models.BestDay, preferred models.TempRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("BEST DAY FOR OUTDOOR ACTIVITIES: "+strings.ToUpper(city)))
	fmt.Fprintf(&b, "%s\n", labelStyle.Render(fmt.Sprintf("Preferred temperature: %.1f°C - %.1f°C", preferred.Min, preferred.Max)))
	b.WriteString(rule("-"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s (score %.1f/100)\n", bestStyle.Render("Recommended:"), best.Date, best.Score)
	fmt.Fprintf(&b, "  %.1f°C avg (%.1f°C - %.1f°C), %s\n", best.Weather.TempAvg, best.Weather.TempMin, best.Weather.TempMax, best.Weather.Description)
	for _, reason := range best.Reasoning {
		fmt.Fprintf(&b, "  - %s\n", reason)
	}
	b.WriteString("\n")
	b.WriteString(Ranking(analyzer.RankDays(best.AllDays)))
	return b.String()
}

// Ranking renders scored days in the given order, marking the first three.
// Callers pass days already ranked.
func Ranking(days []models.ScoredDay) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render("DAY RANKING"))
	fmt.Fprintf(&b, "%-4s | %-12s | %-6s | %-10s | %-6s | %s\n", "Rank", "Date", "Score", "Avg Temp", "Rain", "Conditions")
	b.WriteString(rule("-"))
	b.WriteString("\n")
	for i, d := range days {
		line := fmt.Sprintf("%-4d | %-12s | %-6.1f | %-10s | %-6s | %s",
			i+1, d.Date, d.Score,
			fmt.Sprintf("%.1f°C", d.Summary.TempAvg),
			fmt.Sprintf("%.0f%%", d.Summary.RainProbability),
			truncate(d.Summary.Description, 20))
		if i < 3 {
			line = goodStyle.Render(line + " *")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Alerts renders the current alert, upcoming day alerts and comfortable days.
// comfortable may be nil when it could not be computed.
func Alerts(rec models.AlertRecord, upcoming []models.DayAlert, comfortable []models.DailySummary, comfort models.TempRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("TEMPERATURE ALERTS: "+strings.ToUpper(rec.City)))
	fmt.Fprintf(&b, "%s\n", labelStyle.Render(fmt.Sprintf("Comfortable range: %.1f°C - %.1f°C", comfort.Min, comfort.Max)))
	b.WriteString(rule("-"))
	b.WriteString("\n")
	b.WriteString(alertLine(rec))
	b.WriteString("\n")

	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("UPCOMING ALERTS"))
	if len(upcoming) == 0 {
		b.WriteString(goodStyle.Render("No temperature alerts for the forecast period"))
		b.WriteString("\n")
	}
	for _, d := range upcoming {
		if d.Error != "" {
			for _, msg := range d.Alerts {
				b.WriteString(errorStyle.Render(msg))
				b.WriteString("\n")
			}
			continue
		}
		fmt.Fprintf(&b, "%s (%.1f°C - %.1f°C)\n", d.Date, d.TempMin, d.TempMax)
		for _, msg := range d.Alerts {
			fmt.Fprintf(&b, "  - %s\n", warnStyle.Render(msg))
		}
	}

	if comfortable != nil {
		fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("COMFORTABLE DAYS"))
		if len(comfortable) == 0 {
			b.WriteString("No comfortable days in the forecast\n")
		}
		for _, d := range comfortable {
			fmt.Fprintf(&b, "%s  %.1f°C avg, %s\n", goodStyle.Render(d.Date), d.TempAvg, d.Description)
		}
	}
	return b.String()
}

func alertLine(rec models.AlertRecord) string {
	switch rec.Status {
	case models.StatusComfortable:
		return goodStyle.Render(fmt.Sprintf("%s (%.1f°C)", rec.Message, derefTemp(rec.Temperature)))
	case models.StatusError:
		return errorStyle.Render(rec.Message)
	}
	return warnStyle.Render(fmt.Sprintf("[%s] %s", strings.ToUpper(string(rec.Severity)), rec.Message))
}

func derefTemp(t *float64) float64 {
	if t == nil {
		return 0
	}
	return *t
}

// Comparison renders a multi-city table; failed cities show their error inline.
func Comparison(results []models.CityResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("TEMPERATURE COMPARISON"))
	b.WriteString(rule("-"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-20s | %-12s | %-12s | %s\n", "City", "Current", "Feels Like", "Conditions")
	b.WriteString(rule("-"))
	b.WriteString("\n")
	for _, r := range results {
		if r.Err != nil || r.Weather == nil {
			msg := "no data"
			if r.Err != nil {
				msg = ErrorMessage(r.City, r.Err)
			}
			fmt.Fprintf(&b, "%-20s | %s\n", truncate(r.City, 20), errorStyle.Render(truncate(msg, 45)))
			continue
		}
		w := r.Weather
		name := w.City
		if w.Country != "" {
			name += ", " + w.Country
		}
		fmt.Fprintf(&b, "%-20s | %-12s | %-12s | %s\n",
			truncate(name, 20),
			fmt.Sprintf("%.1f°C", w.Temperature),
			fmt.Sprintf("%.1f°C", w.FeelsLike),
			w.Description)
	}
	b.WriteString(rule("-"))
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
