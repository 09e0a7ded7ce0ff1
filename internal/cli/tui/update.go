package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case TickMsg:
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case QuitMsg:
		m.Quitting = true
		return m, tea.Quit

	case TaskSpawnedMsg:
		m.ActiveTasks[msg.TaskID] = &TaskState{
			ID:        msg.TaskID,
			Title:     msg.Title,
			Phase:     "coding",
			PhaseIcon: IconClaude,
			StartedAt: time.Now(),
		}

	case TaskPhaseMsg:
		if t, ok := m.ActiveTasks[msg.TaskID]; ok {
			t.Phase = msg.Phase
			t.PhaseIcon = msg.PhaseIcon
		}

	case TaskDoneMsg:
		delete(m.ActiveTasks, msg.TaskID)
		if msg.Failed {
			m.Failed++
		} else {
			m.Completed++
		}

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if m.LogLimit > 0 && len(m.LogLines) > m.LogLimit {
			m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
		}
	}

	return m, nil
}
