package ui

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// moveSelection applies a navigation key to a list cursor. page is the
// number of visible rows.
func moveSelection(msg tea.KeyMsg, keys keyMap, selected, count, page int) int {
	if count == 0 {
		return 0
	}
	page = max(1, page)
	switch {
	case key.Matches(msg, keys.Down):
		selected++
	case key.Matches(msg, keys.Up):
		selected--
	case key.Matches(msg, keys.Top):
		selected = 0
	case key.Matches(msg, keys.Bottom):
		selected = count - 1
	case key.Matches(msg, keys.PageDown):
		selected += page
	case key.Matches(msg, keys.PageUp):
		selected -= page
	}
	return clamp(selected, count)
}

// scrollStart returns the first visible row that keeps selected on screen.
func scrollStart(selected, count, rows int) int {
	if rows <= 0 || count <= rows {
		return 0
	}
	start := selected - rows/2
	return max(0, min(start, count-rows))
}

func pick[T any](items []T, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(items) {
		return zero, false
	}
	return items[i], true
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// truncateMiddle keeps the start and the (longer) end of s.
func truncateMiddle(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 5 {
		return string(r[:max])
	}
	endLen := (max - 3) * 2 / 3
	startLen := max - 3 - endLen
	return string(r[:startLen]) + "..." + string(r[len(r)-endLen:])
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// renderTitledBox draws a bordered box with the title set into the top
// border: ┌─── Title ───┐. Content lines are padded or cut to fit.
func (m Model) renderTitledBox(title, content string, width, height int, bgColor string) string {
	borderColor := m.theme.BorderFocus
	bg := NewBgStyle(bgColor)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColor))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	inner := max(0, width-2)
	title = truncate(title, max(0, inner-4))
	titleLen := lipgloss.Width(title)
	leftPad := max(0, (inner-titleLen-2)/2)
	rightPad := max(0, inner-titleLen-2-leftPad)

	top := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)
	bottom := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", inner), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(inner).MaxWidth(inner).Background(lipgloss.Color(bgColor))
	lines := strings.Split(content, "\n")
	rows := max(0, height-2)
	out := make([]string, 0, rows+2)
	out = append(out, top)
	for i := 0; i < rows; i++ {
		var line string
		if i < len(lines) {
			line = lines[i]
		}
		out = append(out, bg.Render("│", borderStyle)+contentStyle.Render(line)+bg.Render("│", borderStyle))
	}
	out = append(out, bottom)
	return strings.Join(out, "\n")
}
