package tui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/wrangler/internal/history"
	"github.com/verte-zerg/wrangler/internal/model"
)

const progressWidth = 30

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderBody(height int) string {
	switch m.activeTab {
	case tabTasks:
		if len(m.taskList) == 0 {
			return "No tasks yet. Press a to add one."
		}
		return tableMutedStyle.Render(m.taskTable.View())
	case tabHistory:
		return m.historyView.View()
	default:
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, m.renderTimer())
	}
}

func (m *Model) renderTimer() string {
	snap := m.snap
	typeStyle := focusStyle
	if snap.Type == model.Break {
		typeStyle = breakStyle
	}
	total, remaining := snap.TotalSeconds, snap.RemainingSeconds
	if snap.State == model.Idle {
		total = m.opts.Preset.Minutes(snap.Type) * 60
		remaining = total
	}

	lines := []string{
		typeStyle.Render(snap.Type.Title()) + pendingStyle.Render(fmt.Sprintf("  %s %d/%d", m.opts.Preset.Name, m.opts.Preset.Focus, m.opts.Preset.Break)),
		"",
		clockStyle.Render(formatClock(remaining)),
		"",
		typeStyle.Render(progressBar(total, remaining, progressWidth)),
		"",
		pendingStyle.Render(stateLabel(snap.State)),
	}
	if snap.Type == model.Focus {
		lines = append(lines, m.renderNowTask())
	}
	if m.sessionOpen() || snap.State == model.Completed {
		lines = append(lines, pendingStyle.Render(fmt.Sprintf("Interruptions: %d", snap.Interruptions)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderNowTask() string {
	if m.nowTask == nil {
		return errorStyle.Render("No now task")
	}
	return "Now: " + truncateLine(m.nowTask.Title, maxInt(10, m.width-10))
}

func stateLabel(state model.TimerState) string {
	switch state {
	case model.Running:
		return "running"
	case model.Paused:
		return "paused"
	case model.Completed:
		return "time's up"
	default:
		return "ready"
	}
}

// formatClock renders seconds as MM:SS; minutes may exceed 59.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func progressBar(total, remaining, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 {
		done := total - remaining
		if done < 0 {
			done = 0
		}
		filled = minInt(width, done*width/total)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m *Model) renderHelp() string {
	var help string
	switch m.activeTab {
	case tabTasks:
		help = "Nav: left/right  Add: a  Now: enter  Clear now: c  Today: y  Doing: m  Done: d  Split: s  Delete: X  Quit: q"
	case tabHistory:
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Quit: q"
	default:
		help = m.timerHelp()
	}
	return headerStyle.Render(truncateLine(help, m.width))
}

func (m *Model) timerHelp() string {
	switch m.snap.State {
	case model.Running, model.Paused:
		cats := make([]string, len(model.InterruptionCategories))
		for i, c := range model.InterruptionCategories {
			cats[i] = fmt.Sprintf("%d %s", i+1, c)
		}
		return "Pause/resume: space  Stop: x  Interrupt: " + strings.Join(cats, " ") + "  Note: i  Quit: q"
	case model.Completed:
		return fmt.Sprintf("Keep going: e +%d  E +%d  Switch: b  Stop: x  Quit: q", m.opts.ExtendShort, m.opts.ExtendLong)
	default:
		return "Start: space  Type: t  Preset: p  Nav: left/right  Quit: q"
	}
}

func (m *Model) renderFooter() string {
	if m.status == "" {
		return m.renderHelp()
	}
	style := noticeStyle
	if m.statusErr {
		style = errorStyle
	}
	return m.renderHelp() + "\n" + style.Render(truncateLine(m.status, m.width))
}

func (m *Model) renderInputModal() string {
	lines := []string{m.input.View()}
	switch m.mode {
	case inputNote:
		lines = append(lines, "", pendingStyle.Render("Category: "+string(model.InterruptionCategories[m.noteCategory])+"  (tab to change)"))
		lines = append(lines, headerStyle.Render("enter: log  esc: cancel"))
	default:
		lines = append(lines, "", headerStyle.Render("enter: add to inbox  esc: cancel"))
	}
	box := modalStyle.Width(modalInnerWidth(m.width)).Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func modalInnerWidth(width int) int {
	return maxInt(20, minInt(70, width-8))
}

func (m *Model) renderHistory() {
	if m.sessions == nil {
		return
	}
	sessions, err := m.sessions.Recent(context.Background(), historyLimit)
	if err != nil {
		m.historyView.SetContent(fmt.Sprintf("Failed to load history: %v", err))
		return
	}
	var buf bytes.Buffer
	if err := history.WriteSessions(&buf, sessions, m.titles, history.Options{Width: m.width}); err != nil {
		m.historyView.SetContent(fmt.Sprintf("Failed to render history: %v", err))
		return
	}
	m.historyView.SetContent(strings.TrimRight(buf.String(), "\n"))
}

func buildTaskTable(tasks []model.Task, now *model.Task, width, height int) table.Model {
	columns, rows := buildTaskTableData(tasks, now)
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(maxInt(1, height-1)),
	)
	if width > 0 {
		t.SetWidth(width)
	}
	t.SetStyles(taskTableStyles())
	return t
}

func taskTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func buildTaskTableData(tasks []model.Task, now *model.Task) ([]table.Column, []table.Row) {
	columns := []table.Column{
		{Title: "", Width: 1},
		{Title: "ID", Width: 5},
		{Title: "Status", Width: 6},
		{Title: "Effort", Width: 6},
		{Title: "Est", Width: 3},
		{Title: "Title", Width: 48},
	}
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		mark := ""
		if now != nil && now.ID == t.ID {
			mark = "*"
		}
		est := "-"
		if t.EstimatedPomodoros != nil {
			est = strconv.Itoa(*t.EstimatedPomodoros)
		}
		effort := string(t.Effort)
		if effort == "" {
			effort = "-"
		}
		rows = append(rows, table.Row{
			mark,
			strconv.FormatInt(t.ID, 10),
			string(t.Status),
			effort,
			est,
			t.Title,
		})
	}
	return columns, rows
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(padLines(s, width), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
