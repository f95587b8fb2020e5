package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"materiality/internal/engine/stattree"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Width(18)

	ratioStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1)
)

// RenderSummary formats the headline numbers of a run for a terminal.
func RenderSummary(entry string, s stattree.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("materiality: "+entry) + "\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("files", fmt.Sprintf("%d", s.Files))
	row("lines", fmt.Sprintf("%d", s.Lines))
	row("reachable", fmt.Sprintf("%s in %d changes", s.Reachable, s.Reachable.Count))
	row("repository", fmt.Sprintf("%s in %d changes", s.Repository, s.Repository.Count))
	row("ratio", ratioStyle.Render(fmt.Sprintf("%.1f%%", s.Ratio*100)))
	if s.AgedFiles > 0 {
		row("age", fmt.Sprintf("shortest %s, longest %s, average %s",
			formatAge(s.ShortestAge), formatAge(s.LongestAge), formatAge(s.AverageAge)))
	}
	for _, p := range s.Projects {
		row("  "+p.Name, fmt.Sprintf("%d files, %.1f%%", p.Files, p.Ratio*100))
	}
	if s.Untracked > 0 {
		row("untracked", warnStyle.Render(fmt.Sprintf("%d", s.Untracked)))
	}
	if s.Missing > 0 {
		row("missing", warnStyle.Render(fmt.Sprintf("%d", s.Missing)))
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func formatAge(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return d.Round(time.Minute).String()
}
