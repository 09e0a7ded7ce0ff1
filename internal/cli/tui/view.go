package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	showLogs := m.ShowLogs || len(m.LogLines) > 0
	if m.Height <= 0 || !showLogs {
		return m.renderBaseView()
	}
	logHeight := m.Height / 2
	if logHeight < 3 {
		return m.renderBaseView()
	}
	topHeight := m.Height - logHeight

	top := m.renderTopArea(topHeight)
	logs := m.renderLogArea(logHeight)
	if logs == "" {
		return top
	}
	return top + "\n" + logs
}

func (m *Model) renderBaseView() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderActiveTasks())
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderTopArea(height int) string {
	if height <= 0 {
		return ""
	}

	header := m.renderHeader()
	status := m.renderStatusLine()
	footer := m.renderFooter()
	active := strings.TrimRight(m.renderActiveTasks(), "\n")
	activeLines := []string{}
	if active != "" {
		activeLines = strings.Split(active, "\n")
	}

	lines := []string{header}
	if height >= 4 {
		lines = append(lines, "")
	}

	reserved := 2
	remaining := height - len(lines) - reserved
	if remaining < 0 {
		remaining = 0
	}
	if len(activeLines) > remaining {
		activeLines = activeLines[:remaining]
	}
	lines = append(lines, activeLines...)
	lines = append(lines, status)
	lines = append(lines, footer)

	return padOrTrim(lines, height)
}

func (m *Model) renderLogArea(height int) string {
	if height <= 0 {
		return ""
	}

	lines := make([]string, 0, height)
	lines = append(lines, m.renderLogHeader())

	visible := height - 1
	logLines := m.tailLogLines(visible)
	for _, line := range logLines {
		lines = append(lines, m.Styles.LogLine.Render(m.truncateLine(line)))
	}

	return padOrTrim(lines, height)
}

func (m *Model) renderLogHeader() string {
	width := m.Width
	if width <= 0 {
		return m.Styles.LogTitle.Render("Logs")
	}
	title := " Logs "
	if len(title) >= width {
		return m.Styles.LogTitle.Render(title)
	}
	left := (width - len(title)) / 2
	right := width - len(title) - left
	return m.Styles.LogTitle.Render(strings.Repeat("─", left) + title + strings.Repeat("─", right))
}

func (m *Model) tailLogLines(max int) []string {
	if max <= 0 {
		return nil
	}
	if len(m.LogLines) == 0 {
		return []string{"(no logs yet)"}
	}
	if len(m.LogLines) <= max {
		return m.LogLines
	}
	return m.LogLines[len(m.LogLines)-max:]
}

func (m *Model) truncateLine(line string) string {
	if m.Width <= 0 {
		return line
	}
	if len(line) <= m.Width {
		return line
	}
	if m.Width <= 3 {
		return line[:m.Width]
	}
	return line[:m.Width-3] + "..."
}

func padOrTrim(lines []string, height int) string {
	if height <= 0 {
		return ""
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderHeader renders the title line with elapsed time and project ID.
func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	timer := fmt.Sprintf("[%s]", formatDuration(elapsed))
	project := fmt.Sprintf("Project: %s", m.ProjectID)

	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("OpenSprint"),
		m.Styles.Timer.Render(timer),
		m.Styles.Parallelism.Render(project),
	)
}

// renderActiveTasks renders the list of tasks currently occupying a Slot.
func (m *Model) renderActiveTasks() string {
	if len(m.ActiveTasks) == 0 {
		return "  No active tasks\n\n"
	}

	var b strings.Builder

	ids := make([]string, 0, len(m.ActiveTasks))
	for id := range m.ActiveTasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		b.WriteString(m.renderTask(m.ActiveTasks[id]))
		b.WriteString("\n")
	}

	return b.String()
}

// renderTask renders a single active task's status line.
func (m *Model) renderTask(t *TaskState) string {
	var b strings.Builder

	icon := m.Styles.UnitActive.Render(IconActive)
	name := m.Styles.UnitName.Render(t.ID)
	elapsed := formatDuration(time.Since(t.StartedAt).Round(time.Second))

	fmt.Fprintf(&b, "  %s %s %s\n", icon, name, m.Styles.Timer.Render("["+elapsed+"]"))

	phaseIcon := m.Styles.PhaseIcon.Render(t.PhaseIcon)
	title := t.Title
	if title == "" {
		title = t.ID
	}
	phaseText := m.Styles.PhaseText.Render(fmt.Sprintf("%s: %s", title, t.Phase))
	fmt.Fprintf(&b, "      %s %s\n", phaseIcon, phaseText)

	return b.String()
}

// renderStatusLine renders the summary status line.
func (m *Model) renderStatusLine() string {
	activeCount := len(m.ActiveTasks)

	complete := m.Styles.StatusComplete.Render(fmt.Sprintf("%d complete", m.Completed))
	failed := m.Styles.StatusFailed.Render(fmt.Sprintf("%d failed", m.Failed))
	active := m.Styles.StatusActive.Render(fmt.Sprintf("%d active", activeCount))

	return fmt.Sprintf("  Tasks: %s | %s | %s", complete, failed, active)
}

// renderFooter renders the help text.
func (m *Model) renderFooter() string {
	key := m.Styles.FooterKey.Render("q")
	return m.Styles.Footer.Render(fmt.Sprintf("  Press %s to quit", key))
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	mi := d / time.Minute
	d -= mi * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
}
