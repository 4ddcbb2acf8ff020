// Package tui is the interactive terminal dashboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/report"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

// Dashboard is the subset of the weather service the TUI drives.
type Dashboard interface {
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

// Options tunes the TUI. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	CityMinLen int
	CityMaxLen int
}

// ErrDuplicateCity is returned when adding a city that is already listed.
var ErrDuplicateCity = errors.New("city already in list")

type View int

const (
	ViewCities View = iota
	ViewAddCity
	ViewResult
	ViewHelp
)

type Model struct {
	svc     Dashboard
	opts    Options
	view    View
	list    list.Model
	input   textinput.Model
	output  string
	loading bool
	width   int
	height  int
	err     error
	status  string
}

type reportMsg struct {
	city    string
	body    string
	current *models.CurrentWeather
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
)

// New builds the dashboard model over the given starting cities.
func New(svc Dashboard, cities []string, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.CityMinLen <= 0 {
		opts.CityMinLen = validation.DefaultMinLen
	}
	if opts.CityMaxLen <= 0 {
		opts.CityMaxLen = validation.DefaultMaxLen
	}

	items := make([]list.Item, 0, len(cities))
	for _, c := range cities {
		items = append(items, cityItem{name: c})
	}
	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 0, 0)
	l.Title = "Weather Dashboard"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	ti := textinput.New()
	ti.Placeholder = "City name"
	ti.CharLimit = opts.CityMaxLen

	return Model{
		svc:   svc,
		opts:  opts,
		view:  ViewCities,
		list:  l,
		input: ti,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

// Cities returns the names currently listed.
func (m Model) Cities() []string {
	items := m.list.Items()
	out := make([]string, 0, len(items))
	for _, it := range items {
		if c, ok := it.(cityItem); ok {
			out = append(out, c.name)
		}
	}
	return out
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case reportMsg:
		m.loading = false
		m.err = nil
		m.output = msg.body
		m.view = ViewResult
		m.status = ""
		if msg.current != nil {
			return m, m.updateCurrent(msg.city, msg.current)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// updateCurrent stores the latest conditions on the matching row. The returned
// command re-runs an applied filter so the visible row picks up the change.
func (m *Model) updateCurrent(city string, w *models.CurrentWeather) tea.Cmd {
	for i, it := range m.list.Items() {
		c, ok := it.(cityItem)
		if ok && strings.EqualFold(c.name, city) {
			c.current = w
			return m.list.SetItem(i, c)
		}
	}
	return nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewCities:
		return m.handleListKeys(msg)
	case ViewAddCity:
		return m.handleInputKeys(msg)
	case ViewResult:
		return m.handleResultKeys(msg)
	case ViewHelp:
		return m.handleHelpKeys(msg)
	}
	return m, nil
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "enter", "r":
		return m.fetchSelected("Loading report", fullReport)

	case "f":
		return m.fetchSelected("Loading forecast", forecastReport)

	case "b":
		return m.fetchSelected("Finding best day", bestDayReport)

	case "a":
		return m.fetchSelected("Checking alerts", alertsReport)

	case "c":
		if m.loading {
			return m, nil
		}
		cities := m.Cities()
		if len(cities) == 0 {
			m.err = errors.New("no cities to compare")
			return m, nil
		}
		m.loading = true
		m.err = nil
		m.status = fmt.Sprintf("Comparing %d cities", len(cities))
		return m, compareCmd(m.svc, cities, m.opts.Timeout)

	case "n":
		m.view = ViewAddCity
		m.err = nil
		m.input.SetValue("")
		cmd := m.input.Focus()
		return m, cmd

	case "x":
		if len(m.list.Items()) == 0 {
			return m, nil
		}
		c, ok := m.list.SelectedItem().(cityItem)
		if !ok {
			return m, nil
		}
		// RemoveItem addresses the unfiltered slice; drop the filter first so
		// the filtered view does not keep a stale match.
		idx := m.list.GlobalIndex()
		m.list.ResetFilter()
		m.list.RemoveItem(idx)
		m.status = fmt.Sprintf("Removed %s", c.name)
		return m, nil

	case "?":
		m.view = ViewHelp
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

type fetchFunc func(ctx context.Context, svc Dashboard, city string) reportMsg

func (m Model) fetchSelected(status string, fn fetchFunc) (tea.Model, tea.Cmd) {
	c, ok := m.list.SelectedItem().(cityItem)
	if !ok || m.loading {
		return m, nil
	}
	m.loading = true
	m.err = nil
	m.status = fmt.Sprintf("%s for %s...", status, c.name)
	svc, timeout := m.svc, m.opts.Timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx, svc, c.name)
	}
}

func (m Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		m.input.Blur()
		m.view = ViewCities
		m.err = nil
		return m, nil

	case tea.KeyEnter:
		name, err := m.addCity(m.input.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		m.input.Blur()
		m.view = ViewCities
		m.err = nil
		m.status = fmt.Sprintf("Added %s", name)
		cmd := m.list.InsertItem(len(m.list.Items()), cityItem{name: name})
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// addCity validates a new city name and rejects case-insensitive duplicates.
func (m Model) addCity(raw string) (string, error) {
	name, err := validation.ValidateCity(raw, m.opts.CityMinLen, m.opts.CityMaxLen)
	if err != nil {
		return "", err
	}
	for _, existing := range m.Cities() {
		if strings.EqualFold(existing, name) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateCity, existing)
		}
	}
	return name, nil
}

func (m Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = ViewCities
		m.output = ""
		return m, nil
	case "?":
		m.view = ViewHelp
		return m, nil
	}
	return m, nil
}

func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "?", "q":
		if m.output != "" {
			m.view = ViewResult
		} else {
			m.view = ViewCities
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.view {
	case ViewCities:
		return m.renderList()
	case ViewAddCity:
		return m.renderInput()
	case ViewResult:
		return m.renderResult()
	case ViewHelp:
		return m.renderHelp()
	}
	return ""
}

func (m Model) statusLine() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	return ""
}

func (m Model) renderList() string {
	var s strings.Builder
	s.WriteString(m.list.View())
	s.WriteString("\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: report • f: forecast • b: best day • a: alerts • c: compare • n: add • x: remove • ?: help • q: quit"))
	return s.String()
}

func (m Model) renderInput() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Add a city"))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: add • esc: cancel"))
	return s.String()
}

func (m Model) renderResult() string {
	var s strings.Builder
	s.WriteString(m.output)
	s.WriteString("\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back • ?: help • q: quit"))
	return s.String()
}

func (m Model) renderHelp() string {
	help := `
Weather Dashboard - Keyboard Shortcuts

City List:
  ↑/↓, j/k     Navigate cities
  enter, r     Full report for selected city
  f            5-day forecast
  b            Best day for outdoor activities
  a            Temperature alerts
  c            Compare all listed cities
  n            Add a city
  x            Remove selected city
  /            Filter cities
  q, ctrl+c    Quit

Report:
  esc          Back to list

General:
  ?            Show/hide this help
`
	return help + "\n" + helpStyle.Render("Press ? or esc to close help")
}

func fullReport(ctx context.Context, svc Dashboard, city string) reportMsg {
	current, currentErr := svc.CurrentWeather(ctx, city)
	days, daysErr := svc.DailySummary(ctx, city)
	msg := reportMsg{city: city, body: report.FullReport(city, current, currentErr, days, daysErr)}
	if currentErr == nil {
		msg.current = &current
	}
	return msg
}

func forecastReport(ctx context.Context, svc Dashboard, city string) reportMsg {
	days, err := svc.DailySummary(ctx, city)
	if err != nil {
		return reportMsg{city: city, body: report.Error(city, err)}
	}
	return reportMsg{city: city, body: titleStyle.Render(city) + report.Forecast(days)}
}

func bestDayReport(ctx context.Context, svc Dashboard, city string) reportMsg {
	best, err := svc.FindBestDay(ctx, city)
	if err != nil {
		return reportMsg{city: city, body: report.Error(city, err)}
	}
	return reportMsg{city: city, body: report.BestDay(city, best, svc.Preferred())}
}

func alertsReport(ctx context.Context, svc Dashboard, city string) reportMsg {
	rec := svc.CheckCurrentTemperature(ctx, city)
	upcoming := svc.ForecastAlerts(ctx, city)
	comfortable, err := svc.ComfortableDays(ctx, city)
	if err != nil {
		comfortable = nil
	}
	return reportMsg{city: city, body: report.Alerts(rec, upcoming, comfortable, svc.Comfort())}
}

func compareCmd(svc Dashboard, cities []string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return reportMsg{body: report.Comparison(svc.CompareCities(ctx, cities))}
	}
}
