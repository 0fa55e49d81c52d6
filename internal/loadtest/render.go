package loadtest

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const maxPlayerWidth = 36

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	leaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	rankStyle   = lipgloss.NewStyle().Width(6).Align(lipgloss.Right)
	playerStyle = lipgloss.NewStyle().Width(maxPlayerWidth).Align(lipgloss.Left)
	scoreStyle  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
)

// RenderTable formats a leaderboard for a terminal.
func RenderTable(t Table) string {
	title := titleStyle.Render(tableTitle(t))
	if len(t.Entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No entries"))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Inherit(rankStyle).Render("Rank"), "  ",
		headerStyle.Inherit(playerStyle).Render("Player"), "  ",
		headerStyle.Inherit(scoreStyle).Render("Score"),
	)
	rows := []string{title, "", header, mutedStyle.Render(strings.Repeat("─", lipgloss.Width(header)))}

	for _, e := range t.Entries {
		style := lipgloss.NewStyle()
		if e.Rank == 1 {
			style = leaderStyle
		}
		name := e.PlayerID
		if len(name) > maxPlayerWidth {
			name = name[:maxPlayerWidth-3] + "..."
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			style.Inherit(rankStyle).Render(fmt.Sprintf("#%d", e.Rank)), "  ",
			style.Inherit(playerStyle).Render(name), "  ",
			style.Inherit(scoreStyle).Render(fmt.Sprintf("%d", e.Score)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// RenderStats formats run statistics for a terminal.
func RenderStats(s Stats) string {
	line := func(k string, v any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			mutedStyle.Width(14).Render(k), fmt.Sprint(v))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Load run"),
		line("generated", s.Generated),
		line("submitted", s.Submitted),
		line("created", s.Successful),
		line("duplicate", s.Duplicate),
		line("failed", s.Failed),
		line("boards", s.Boards),
		line("duration", s.Duration.Round(1e6)),
		line("per second", fmt.Sprintf("%.1f", s.Throughput())),
	)
}

func tableTitle(t Table) string {
	title := fmt.Sprintf("%s %s leaderboard for %s", t.Period, t.Scope, t.GameID)
	if t.PlayerID != "" {
		title += " / " + t.PlayerID
	}
	return title
}
