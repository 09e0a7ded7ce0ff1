// Package tui implements the `status --watch` live dashboard: a
// bubbletea program fed by the Event Log & Broadcast component's live
// fan-out (events emitted after it subscribes), rather than by polling the
// TaskStore.
//
// Grounded in the teacher's internal/cli/tui package (Bridge/Model/Update/
// View split, one goroutine subscribing to the event bus and Send-ing
// tea.Msg values into the running program) generalized from the teacher's
// unit/task event vocabulary to this core's task lifecycle events.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/opensprint/core/internal/model"
)

// Bridge forwards Event Log events into a running bubbletea program.
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a bridge for the given program.
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{program: program}
}

// Handler returns an events.Handler suitable for events.Bus.Subscribe.
func (b *Bridge) Handler() func(model.Event) {
	return func(e model.Event) {
		msg := b.eventToMsg(e)
		if msg != nil {
			b.program.Send(msg)
		}
	}
}

func (b *Bridge) eventToMsg(e model.Event) tea.Msg {
	switch e.Kind {
	case model.EventAgentSpawned:
		title, _ := e.Data["title"].(string)
		return TaskSpawnedMsg{TaskID: e.TaskID, Title: title}

	case model.EventAgentCompleted:
		return TaskPhaseMsg{TaskID: e.TaskID, Phase: "reviewing", PhaseIcon: IconValidate}

	case model.EventTaskCompleted:
		return TaskDoneMsg{TaskID: e.TaskID, Failed: false}

	case model.EventTaskFailed, model.EventTaskBlocked:
		return TaskDoneMsg{TaskID: e.TaskID, Failed: true}

	case model.EventTaskRequeued, model.EventTaskDemoted:
		return TaskPhaseMsg{TaskID: e.TaskID, Phase: "requeued", PhaseIcon: IconWaiting}

	case model.EventPushSucceeded:
		return TaskPhaseMsg{TaskID: e.TaskID, Phase: "pushed to main", PhaseIcon: IconCommit}

	default:
		return nil
	}
}

// SendDone sends a DoneMsg to the program.
func (b *Bridge) SendDone() { b.program.Send(DoneMsg{}) }

// SendQuit sends a QuitMsg to the program.
func (b *Bridge) SendQuit() { b.program.Send(QuitMsg{}) }
