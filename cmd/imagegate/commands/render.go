package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ineyio/imagegate"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Width(14)
	busyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	freeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	fullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderStatus renders an admission snapshot as a bordered panel.
func renderStatus(st imagegate.Status) string {
	slots := renderSlots(st.Active, st.MaxConcurrent)
	active := fmt.Sprintf("%d / %d", st.Active, st.MaxConcurrent)
	if st.Active >= st.MaxConcurrent {
		active = fullStyle.Render(active + "  full")
	}

	daily := fmt.Sprintf("%d / %d", st.DailyUsed, st.DailyLimit)
	if st.DailyUsed >= st.DailyLimit {
		daily = fullStyle.Render(daily + "  limit reached")
	} else {
		daily = okStyle.Render(daily)
	}

	lastReset := st.LastResetDate
	if lastReset == "" {
		lastReset = "never"
	}

	rows := []string{
		titleStyle.Render("imagegate queue"),
		"",
		labelStyle.Render("slots") + slots,
		labelStyle.Render("active") + active,
		labelStyle.Render("today") + daily,
		labelStyle.Render("last reset") + lastReset,
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderSlots draws one cell per slot. Counts above the cap, possible with
// stores that lack atomic adds, show as extra busy cells.
func renderSlots(active, limit int64) string {
	var b strings.Builder
	for i := int64(0); i < max(active, limit); i++ {
		if i < active {
			b.WriteString(busyStyle.Render("■ "))
		} else {
			b.WriteString(freeStyle.Render("□ "))
		}
	}
	return b.String()
}
