package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nerrad567/medwatch/internal/history"
)

// Mode selects how the history window is charted.
type Mode int

// Chart modes, in the order the mode key cycles through them.
const (
	ModeSplit Mode = iota
	ModeTemperature
	ModeHumidity
	ModeCombined
)

var modeNames = [...]string{"split", "temperature", "humidity", "combined"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// Next returns the mode after m, wrapping around.
func (m Mode) Next() Mode {
	return (m + 1) % Mode(len(modeNames))
}

// ParseMode maps a configured name to a Mode. Empty and unknown names
// give ModeSplit.
func ParseMode(s string) Mode {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i)
		}
	}
	return ModeSplit
}

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// band is a safe range drawn against a series.
type band struct {
	lo, hi float64
	ok     bool
}

func (b band) color(v float64) lipgloss.Color {
	switch {
	case !b.ok:
		return colorSeries
	case v < b.lo || v > b.hi:
		return colorCrit
	default:
		return colorOK
	}
}

func seriesValues(points []history.Point, ch history.Channel) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		if ch == history.Humidity {
			out[i] = p.Hum
		} else {
			out[i] = p.Temp
		}
	}
	return out
}

// axis returns the vertical range for values, widened to include the
// safe band so its limits stay visible.
func axis(values []float64, b band) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if b.ok {
		lo = math.Min(lo, b.lo)
		hi = math.Max(hi, b.hi)
	}
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 1
	}
	return lo, hi
}

// renderSparkline draws the newest width values as block characters,
// padded on the left with a dim rule while the window is filling.
func renderSparkline(values []float64, width int, lo, hi float64, b band) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(colorRule)
	if len(values) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	span := hi - lo
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	sb.WriteString(dim.Render(strings.Repeat("╌", width-len(values))))
	for _, v := range values {
		norm := math.Max(0, math.Min(1, (v-lo)/span))
		idx := int(norm * 7)
		style := lipgloss.NewStyle().Foreground(b.color(v))
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

// renderTimeline labels the first and last point under a sparkline.
func renderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}

	first := points[0].Time.Format("15:04:05")
	last := points[len(points)-1].Time.Format("15:04:05")

	n := len(points)
	var line string
	switch {
	case n > len(first)+len(last):
		line = first + strings.Repeat(" ", n-len(first)-len(last)) + last
	case n >= len(last):
		line = strings.Repeat(" ", n-len(last)) + last
	default:
		return ""
	}
	return lipgloss.NewStyle().Foreground(colorDim).Render(strings.Repeat(" ", width-n) + line)
}

// renderChart renders the history window in the given mode. Each row is
// prefixed with a short label; width is the sparkline width.
func renderChart(mode Mode, points []history.Point, width int, temp, hum band) string {
	labelS := lipgloss.NewStyle().Foreground(colorLabel).Width(6)
	scaleS := lipgloss.NewStyle().Foreground(colorDim)

	row := func(label string, values []float64, lo, hi float64, b band, unit string) string {
		scale := scaleS.Render(fmt.Sprintf(" %5.1f-%-5.1f%s", lo, hi, unit))
		return labelS.Render(label) + renderSparkline(values, width, lo, hi, b) + scale
	}

	temps := seriesValues(points, history.Temperature)
	hums := seriesValues(points, history.Humidity)
	timeline := labelS.Render("") + renderTimeline(points, width)

	var rows []string
	switch mode {
	case ModeTemperature:
		lo, hi := axis(temps, temp)
		rows = append(rows, row("T", temps, lo, hi, temp, "°C"))
	case ModeHumidity:
		lo, hi := axis(hums, hum)
		rows = append(rows, row("U", hums, lo, hi, hum, "%"))
	case ModeCombined:
		// Both series share one axis.
		tlo, thi := axis(temps, temp)
		hlo, hhi := axis(hums, hum)
		lo, hi := math.Min(tlo, hlo), math.Max(thi, hhi)
		rows = append(rows,
			row("T", temps, lo, hi, temp, ""),
			row("U", hums, lo, hi, hum, ""),
		)
	default:
		tlo, thi := axis(temps, temp)
		hlo, hhi := axis(hums, hum)
		rows = append(rows,
			row("T", temps, tlo, thi, temp, "°C"),
			row("U", hums, hlo, hhi, hum, "%"),
		)
	}
	if len(points) > 0 {
		rows = append(rows, timeline)
	}
	return strings.Join(rows, "\n")
}

// renderStabilityBar draws a 0-100 score as a filled bar.
func renderStabilityBar(score, width int) string {
	if width <= 0 {
		return ""
	}
	score = max(0, min(100, score))
	filled := int(math.Round(float64(score) * float64(width) / 100))

	color := colorCrit
	switch {
	case score >= 70:
		color = colorOK
	case score >= 40:
		color = colorWarn
	}

	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(colorRule).Render(strings.Repeat("░", width-filled))
}
