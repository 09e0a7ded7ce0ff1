package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TaskState tracks one in-flight task for the status dashboard.
type TaskState struct {
	ID        string
	Title     string
	Phase     string
	PhaseIcon string
	StartedAt time.Time
}

// Model is the bubbletea model backing `status --watch`.
type Model struct {
	ProjectID string
	Styles    Styles

	ActiveTasks map[string]*TaskState
	Completed   int
	Failed      int
	StartTime   time.Time
	LogLines    []string
	LogLimit    int
	ShowLogs    bool
	Width       int
	Height      int

	Quitting bool
	Done     bool
}

// NewModel creates a dashboard model for one project.
func NewModel(projectID string) *Model {
	return &Model{
		ProjectID:   projectID,
		Styles:      DefaultStyles(),
		ActiveTasks: make(map[string]*TaskState),
		StartTime:   time.Now(),
		LogLimit:    500,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickCmd())
}

// TickMsg is sent every second to update the elapsed timer.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the dashboard should exit because the host process is
// finished (sent via Bridge.SendDone).
type DoneMsg struct{}

// QuitMsg signals the user requested quit (q or Ctrl+C inside the TUI).
type QuitMsg struct{}

// TaskSpawnedMsg indicates a task's agent was spawned.
type TaskSpawnedMsg struct {
	TaskID string
	Title  string
}

// TaskPhaseMsg indicates a tracked task moved to a new phase.
type TaskPhaseMsg struct {
	TaskID    string
	Phase     string
	PhaseIcon string
}

// TaskDoneMsg indicates a task left the active set, successfully or not.
type TaskDoneMsg struct {
	TaskID string
	Failed bool
}
