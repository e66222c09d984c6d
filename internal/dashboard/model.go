package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerrad567/medwatch/internal/evaluator"
	"github.com/nerrad567/medwatch/internal/history"
	"github.com/nerrad567/medwatch/internal/liveness"
	"github.com/nerrad567/medwatch/internal/monitor"
	"github.com/nerrad567/medwatch/internal/profile"
)

// Controller is the subset of *monitor.Monitor the dashboard drives.
type Controller interface {
	SelectProfile(id string) error
	Restart() error
	SendCommand(cmd string) error
}

// Options configures a Model.
type Options struct {
	Mode Mode

	// Commands maps single keys to payloads for the command channel.
	Commands map[string]string

	// Profile is shown until the monitor announces its own selection.
	Profile string
}

// Keys handled by the dashboard itself. Command bindings on these keys
// are ignored.
var reservedKeys = map[string]bool{
	"q": true, "r": true, "c": true, "tab": true, "shift+tab": true, "ctrl+c": true,
	"1": true, "2": true, "3": true, "4": true, "5": true,
}

// Reserved reports whether key is bound by the dashboard.
func Reserved(key string) bool {
	return reservedKeys[key]
}

// ── Palette ─────────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorRule     = lipgloss.Color("236")
	colorFooterBg = lipgloss.Color("235")
	colorSeries   = lipgloss.Color("39")
	colorOK       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
)

// ── Messages ────────────────────────────────────────────────────────

type eventMsg struct{ ev monitor.Event }

// closedMsg reports that the monitor closed the event channel.
type closedMsg struct{}

// actionMsg carries the outcome of a Controller request.
type actionMsg struct {
	what string
	err  error
}

func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func request(what string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{what: what, err: fn()}
	}
}

// ── Model ───────────────────────────────────────────────────────────

type reading struct {
	value float64
	at    time.Time
	ok    bool
}

// Model is the bubbletea model for the live dashboard. It only renders
// monitor events; changes go through the Controller.
type Model struct {
	events   <-chan monitor.Event
	ctl      Controller
	commands map[string]string
	mode     Mode

	width  int
	height int

	link      monitor.LinkStatusEvent
	linkErr   *monitor.LinkErrorEvent
	reconnect *monitor.ReconnectEvent

	profileID   string
	profileName string
	known       bool

	temp  reading
	hum   reading
	class *monitor.ClassificationEvent

	points    []history.Point
	tempStats history.Stats
	humStats  history.Stats

	notice string
	closed bool
}

// New creates a Model reading from events.
func New(events <-chan monitor.Event, ctl Controller, opts Options) Model {
	m := Model{
		events:    events,
		ctl:       ctl,
		commands:  make(map[string]string, len(opts.Commands)),
		mode:      opts.Mode,
		link:      monitor.LinkStatusEvent{State: liveness.StateConnecting},
		profileID: opts.Profile,
	}
	for k, v := range opts.Commands {
		if !Reserved(k) {
			m.commands[k] = v
		}
	}
	if p, ok := profile.Lookup(opts.Profile); ok {
		m.profileName, m.known = p.Name, true
	}
	return m
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, events <-chan monitor.Event, ctl Controller, opts Options) error {
	p := tea.NewProgram(
		New(events, ctl, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// ── Init / Update ───────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case eventMsg:
		m.apply(msg.ev)
		return m, waitForEvent(m.events)

	case closedMsg:
		m.closed = true
		return m, tea.Quit

	case actionMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
		} else {
			m.notice = msg.what
		}

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	ids := profile.IDs()

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		return m, request("restart requested", m.ctl.Restart)

	case "c":
		m.mode = m.mode.Next()

	case "tab", "shift+tab":
		i := profile.Index(m.profileID)
		switch {
		case i < 0:
			i = 0
		case key == "tab":
			i = (i + 1) % len(ids)
		default:
			i = (i - 1 + len(ids)) % len(ids)
		}
		return m, m.selectProfile(ids[i])

	case "1", "2", "3", "4", "5":
		i := int(key[0] - '1')
		if i < len(ids) {
			return m, m.selectProfile(ids[i])
		}

	default:
		if payload, ok := m.commands[key]; ok {
			return m, request("command "+payload+" sent", func() error {
				return m.ctl.SendCommand(payload)
			})
		}
	}
	return m, nil
}

func (m Model) selectProfile(id string) tea.Cmd {
	return request("profile "+id+" selected", func() error {
		return m.ctl.SelectProfile(id)
	})
}

// apply folds one monitor event into the model.
func (m *Model) apply(ev monitor.Event) {
	switch e := ev.(type) {
	case monitor.LinkStatusEvent:
		m.link = e
		if e.State.Connected() {
			m.reconnect = nil
			m.linkErr = nil
		}
	case monitor.LinkErrorEvent:
		m.linkErr = &e
	case monitor.ReconnectEvent:
		m.reconnect = &e
	case monitor.ReadingEvent:
		r := reading{value: e.Value, at: e.At, ok: true}
		if e.Channel == "humidity" {
			m.hum = r
		} else {
			m.temp = r
		}
	case monitor.ClassificationEvent:
		m.class = &e
	case monitor.HistoryEvent:
		m.points = e.Points
		m.tempStats = e.Temperature
		m.humStats = e.Humidity
	case monitor.ProfileSelectedEvent:
		m.profileID = e.ProfileID
		m.profileName = e.ProfileName
		m.known = e.Known
		if m.class != nil && m.class.ProfileID != e.ProfileID {
			m.class = nil
		}
	}
}

// ── View ────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	contentWidth := max(m.width-2, 60)

	sections := []string{
		m.renderTitle(contentWidth),
		m.renderStatus(contentWidth),
		m.renderCards(contentWidth),
		m.renderClassification(contentWidth),
		m.renderChartPanel(contentWidth),
	}
	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1).
			Render(m.notice))
	}
	sections = append(sections, m.renderFooter(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("MEDWATCH")

	name := m.profileName
	if !m.known {
		name = m.profileID + " (unknown)"
	}
	right := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true).
		Render(name)

	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func stateColor(s liveness.State) lipgloss.Color {
	switch s {
	case liveness.StateConnectedLive:
		return colorOK
	case liveness.StateConnectedAwaitingData, liveness.StateConnecting, liveness.StateConnectedStale:
		return colorWarn
	default:
		return colorCrit
	}
}

func (m Model) renderStatus(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	parts := []string{
		lipgloss.NewStyle().Foreground(stateColor(m.link.State)).Bold(true).Render("● " + string(m.link.State)),
	}
	if m.link.LastDataAt != nil {
		parts = append(parts, dimS.Render("last data "+m.link.LastDataAt.Format("15:04:05")))
	}
	if m.link.State == liveness.StateConnectedStale {
		parts = append(parts, dimS.Render(fmt.Sprintf("silent %s", m.link.IdleFor.Round(time.Second))))
	}
	if m.reconnect != nil {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorWarn).Render(
			fmt.Sprintf("reconnect %d/%d", m.reconnect.Attempt, m.reconnect.MaxAttempts)))
	}
	if m.link.State == liveness.StateReconnectFailed {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorCrit).Render("press r to retry"))
	}
	if m.linkErr != nil {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorCrit).Render(
			fmt.Sprintf("%s: %s", m.linkErr.Category, m.linkErr.Reason)))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Render(strings.Join(parts, dimS.Render("  │  ")))
}

func (m Model) bands() (temp, hum band) {
	p, ok := profile.Lookup(m.profileID)
	if !ok {
		return band{}, band{}
	}
	return band{lo: p.TMin, hi: p.TMax, ok: true}, band{lo: p.UMin, hi: p.UMax, ok: true}
}

func (m Model) renderCards(width int) string {
	tb, hb := m.bands()
	cardWidth := (width - 4) / 2

	card := func(title string, r reading, unit string, b band, stats history.Stats) string {
		value := "--"
		valueS := lipgloss.NewStyle().Bold(true).Foreground(colorDim)
		updated := "no data"
		if r.ok {
			value = fmt.Sprintf("%.1f%s", r.value, unit)
			valueS = valueS.Foreground(b.color(r.value))
			updated = "updated " + r.at.Format("15:04:05")
		}

		lines := []string{
			lipgloss.NewStyle().Foreground(colorLabel).Bold(true).Render(title),
			valueS.Render(value),
			lipgloss.NewStyle().Foreground(colorDim).Render(updated),
		}
		if len(m.points) > 0 {
			lines = append(lines, lipgloss.NewStyle().Foreground(colorDim).Render(
				fmt.Sprintf("min %.1f  max %.1f  avg %.1f", stats.Min, stats.Max, stats.Avg)))
		}
		if b.ok {
			lines = append(lines, lipgloss.NewStyle().Foreground(colorDim).Render(
				fmt.Sprintf("range %g-%g%s", b.lo, b.hi, unit)))
		}

		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Width(cardWidth).
			Padding(0, 1).
			Render(strings.Join(lines, "\n"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Temperature", m.temp, "°C", tb, m.tempStats),
		card("Humidity", m.hum, "%", hb, m.humStats),
	)
}

func tierColor(t evaluator.Tier) lipgloss.Color {
	switch t {
	case evaluator.TierOK:
		return colorOK
	case evaluator.TierWarn:
		return colorWarn
	case evaluator.TierCritical:
		return colorCrit
	default:
		return colorDim
	}
}

func (m Model) renderClassification(width int) string {
	var lines []string

	switch {
	case m.class == nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(colorDim).Render("Waiting for a reading pair"))

	case m.class.Indeterminate:
		lines = append(lines, lipgloss.NewStyle().Foreground(colorDim).Render(
			fmt.Sprintf("Status indeterminate: unknown profile %q", m.class.ProfileID)))

	default:
		tier := m.class.Result.Tier
		badge := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(tierColor(tier)).
			Padding(0, 1).
			Render(string(tier))
		label := lipgloss.NewStyle().Foreground(tierColor(tier)).Render(m.class.Label)
		lines = append(lines, badge+"  "+label)

		barWidth := min(width-24, 40)
		lines = append(lines, lipgloss.NewStyle().Foreground(colorLabel).Render("Stability ")+
			renderStabilityBar(m.class.Result.Stability, barWidth)+
			lipgloss.NewStyle().Foreground(colorLabel).Render(fmt.Sprintf(" %3d%%", m.class.Result.Stability)))

		if m.class.Alert != "" {
			lines = append(lines, lipgloss.NewStyle().Foreground(tierColor(tier)).Bold(true).Render(m.class.Alert))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(width - 2).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderChartPanel(width int) string {
	tb, hb := m.bands()
	chartWidth := min(max(width-30, 10), history.DefaultCapacity*2)

	header := lipgloss.NewStyle().Foreground(colorLabel).Bold(true).Render("History") +
		lipgloss.NewStyle().Foreground(colorDim).Render(fmt.Sprintf("  %s  %d points", m.mode, len(m.points)))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(width - 2).
		Padding(0, 1).
		Render(header + "\n" + renderChart(m.mode, m.points, chartWidth, tb, hb))
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  r") + keyS.Render(":restart") +
		dimS.Render("  c") + keyS.Render(":chart") +
		dimS.Render("  tab/1-5") + keyS.Render(":profile")

	bound := make([]string, 0, len(m.commands))
	for k := range m.commands {
		bound = append(bound, k)
	}
	sort.Strings(bound)
	for _, k := range bound {
		keys += dimS.Render("  "+k) + keyS.Render(":"+m.commands[k])
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}
