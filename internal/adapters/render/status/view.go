package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/partybot/internal/application"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Now time.Time
	// MaxCountdown is the countdown a fresh party starts with; it scales
	// the reclaim colour ramp.
	MaxCountdown int
	// TickInterval converts countdown ticks into wall time.
	TickInterval time.Duration
}

func renderView(groups []application.GroupView, opts RenderOptions, s styles) string {
	parties := 0
	for _, g := range groups {
		parties += len(g.Parties)
	}

	lines := []string{
		s.title.Render("Parties"),
		s.header.Render(fmt.Sprintf("groups: %d  parties: %d", len(groups), parties)),
	}

	if len(groups) == 0 {
		lines = append(lines, s.empty.Render("No groups recorded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, group := range groups {
		lines = append(lines, s.section.Render(renderGroup(group, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderGroup(group application.GroupView, opts RenderOptions, s styles) string {
	title := fmt.Sprintf("Group %s", group.ID)
	if group.Admin != "" {
		title += fmt.Sprintf(" (admin %s)", group.Admin)
	}
	parts := []string{
		s.group.Render(title),
		s.detail.Render(fmt.Sprintf("version %d, updated %s", group.Version, formatAge(group.UpdatedAt, opts.Now))),
	}

	if len(group.Parties) == 0 {
		parts = append(parts, s.empty.Render("  no active parties"))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	for _, party := range group.Parties {
		parts = append(parts, partyLines(party, opts, s)...)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func partyLines(party application.PartyView, opts RenderOptions, s styles) []string {
	head := lipgloss.JoinHorizontal(
		lipgloss.Top,
		"  ",
		s.party.Render(party.Title),
		" ",
		s.detail.Render(fmt.Sprintf("%s, owner %s", party.Game, party.Owner)),
	)

	seats := fmt.Sprintf("%d/%d", party.Occupancy, party.Capacity)
	occupancy := lipgloss.JoinHorizontal(
		lipgloss.Top,
		"    ",
		renderProgressBar(party.Occupancy, party.Capacity, 20, s),
		" ",
		seats,
	)
	if party.Capacity > 0 && party.Occupancy >= party.Capacity {
		occupancy += " " + s.full.Render("[full]")
	}

	lines := []string{head, occupancy, "    " + reclaimLabel(party, opts, s)}
	if len(party.Members) > 0 {
		lines = append(lines, s.detail.Render("    members: "+strings.Join(party.Members, ", ")))
	}
	return lines
}

func reclaimLabel(party application.PartyView, opts RenderOptions, s styles) string {
	if party.Frozen {
		return s.frozen.Render(fmt.Sprintf("[frozen] countdown held at %d", party.Countdown))
	}

	label := fmt.Sprintf("reclaim in %d ticks", party.Countdown)
	if opts.TickInterval > 0 {
		label = fmt.Sprintf("reclaim in %s", formatDuration(time.Duration(party.Countdown)*opts.TickInterval))
	}

	// fades from bright at the start to dim as the countdown runs out
	color := interpolateColor(float64(party.Countdown), 0, float64(opts.MaxCountdown))
	return lipgloss.NewStyle().Foreground(color).Render(label)
}

func renderProgressBar(filled, total, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	cells := 0
	if total > 0 {
		cells = int(math.Round(float64(width) * float64(filled) / float64(total)))
	}
	cells = max(0, min(cells, width))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", cells)),
		s.barEmpty.Render(strings.Repeat("-", width-cells)),
		s.barBracket.Render("]"),
	)
}

func formatAge(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}
	if at.After(now) {
		return "just now"
	}
	return formatDuration(now.Sub(at)) + " ago"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp from 240 (faded) to 255 (bright)
	baseColor := 240.0
	targetColor := 255.0
	colorCode := int(baseColor + (targetColor-baseColor)*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}
