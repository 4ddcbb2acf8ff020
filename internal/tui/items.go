package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

type cityItem struct {
	name    string
	current *models.CurrentWeather
}

func (i cityItem) Title() string {
	return i.name
}

func (i cityItem) Description() string {
	if i.current == nil {
		return "no data yet"
	}
	return fmt.Sprintf("%.1f°C | %s | %s", i.current.Temperature, i.current.Description, i.current.ObservedAt.Format("Jan 2 15:04"))
}

func (i cityItem) FilterValue() string {
	return i.name
}

var _ list.Item = cityItem{}
