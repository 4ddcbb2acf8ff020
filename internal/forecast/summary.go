package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// dayBucket accumulates the entries of one calendar day in arrival order.
type dayBucket struct {
	date        string
	tempSum     float64
	tempMin     float64
	tempMax     float64
	humiditySum float64
	maxWind     float64
	maxRain     float64
	count       int
	descCounts  map[string]int
	descOrder   []string
}

func newDayBucket(date string, e models.ForecastEntry) *dayBucket {
	return &dayBucket{
		date:       date,
		tempMin:    e.Temperature,
		tempMax:    e.Temperature,
		maxWind:    e.WindSpeed,
		maxRain:    e.RainProbability,
		descCounts: make(map[string]int),
	}
}

func (b *dayBucket) add(e models.ForecastEntry) {
	b.count++
	b.tempSum += e.Temperature
	b.humiditySum += float64(e.Humidity)
	b.tempMin = math.Min(b.tempMin, e.Temperature)
	b.tempMax = math.Max(b.tempMax, e.Temperature)
	b.maxWind = math.Max(b.maxWind, e.WindSpeed)
	b.maxRain = math.Max(b.maxRain, e.RainProbability)
	if _, seen := b.descCounts[e.Description]; !seen {
		b.descOrder = append(b.descOrder, e.Description)
	}
	b.descCounts[e.Description]++
}

// modalDescription returns the most frequent description; the first one seen wins ties.
func (b *dayBucket) modalDescription() string {
	best, bestCount := "", 0
	for _, d := range b.descOrder {
		if c := b.descCounts[d]; c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

func (b *dayBucket) summary() models.DailySummary {
	n := float64(b.count)
	return models.DailySummary{
		Date:            b.date,
		TempAvg:         Round1(b.tempSum / n),
		TempMin:         Round1(b.tempMin),
		TempMax:         Round1(b.tempMax),
		AvgHumidity:     Round1(b.humiditySum / n),
		MaxWindSpeed:    Round1(b.maxWind),
		RainProbability: Round1(b.maxRain),
		Description:     b.modalDescription(),
	}
}

// Summarize groups forecast entries by the calendar date of their timestamp in loc
// (time.Local when nil) and returns one DailySummary per date, ordered by first
// appearance in entries. An empty input yields an empty, non-nil slice.
func Summarize(entries []models.ForecastEntry, loc *time.Location) []models.DailySummary {
	if loc == nil {
		loc = time.Local
	}
	buckets := make(map[string]*dayBucket)
	var order []*dayBucket
	for _, e := range entries {
		date := e.Time.In(loc).Format(models.DateLayout)
		b, ok := buckets[date]
		if !ok {
			b = newDayBucket(date, e)
			buckets[date] = b
			order = append(order, b)
		}
		b.add(e)
	}

	out := make([]models.DailySummary, 0, len(order))
	for _, b := range order {
		out = append(out, b.summary())
	}
	return out
}

// Round1 rounds v to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Location resolves the zone used to assign entries to calendar days.
// mode is "local" (or empty), "utc", "city" (fixed zone from the provider's
// offset in seconds), or an IANA zone name.
func Location(mode string, cityOffset int) (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	case "city":
		return time.FixedZone(fmt.Sprintf("UTC%+d", cityOffset/3600), cityOffset), nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(mode))
	if err != nil {
		return nil, fmt.Errorf("forecast timezone %q: %w", mode, err)
	}
	return loc, nil
}
