package scheduler

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/model"
)

// ErrNoReady is returned by Admit when the ready queue is empty.
var ErrNoReady = fmt.Errorf("scheduler: no ready task")

// ErrAtCapacity is returned by Admit when the project is already running
// its configured concurrency limit.
var ErrAtCapacity = fmt.Errorf("scheduler: at capacity")

// ErrProviderExhausted is returned when the next ready task's provider is
// currently marked exhausted; the task is left ready for a later attempt.
var ErrProviderExhausted = fmt.Errorf("scheduler: provider exhausted")

// ErrScopedConflict is returned when the next ready task conflicts with an
// already-admitted branch/scope and must wait.
var ErrScopedConflict = fmt.Errorf("scheduler: scoped conflict with in-flight task")

// ScopeConflictChecker decides whether admitting a task would conflict
// with an already-admitted task's scope (e.g. overlapping files/branch).
// A nil checker means no scope conflicts are ever raised.
type ScopeConflictChecker func(candidate model.Task, active []model.Slot) bool

// Admit implements spec §4.7's admit(task) transition: moves the
// highest-priority ready task from open/ready to in_progress, creates its
// Slot, and returns it for the caller to allocate a worktree and start the
// agent. Admission requires: no exhausted provider for the task's agent,
// slot count below the configured concurrency, and no scoped conflict with
// an already-admitted branch.
//
// A task admitted after an infrastructure retry (useExistingBranch) is
// popped the same way but the caller is expected to pass the same branch
// forward rather than mint a new one.
func (s *Scheduler) Admit(ctx context.Context, task model.Task, provider string, concurrency int, useExistingBranch bool, checkScope ScopeConflictChecker) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready.Len() == 0 {
		return nil, ErrNoReady
	}
	if len(s.slots) >= concurrency {
		return nil, ErrAtCapacity
	}
	if s.deps.Exhausted != nil && s.deps.Exhausted.IsExhausted(s.project.ID, provider) {
		return nil, ErrProviderExhausted
	}
	if checkScope != nil {
		var active []model.Slot
		for _, sl := range s.slots {
			active = append(active, *sl)
		}
		if checkScope(task, active) {
			return nil, ErrScopedConflict
		}
	}

	top := heap.Pop(&s.ready).(*entry)
	s.status.QueueDepth = s.ready.Len()

	slot := &model.Slot{
		TaskID:            top.taskID,
		Attempt:           task.CumulativeAttempts + 1,
		Phase:             model.PhaseCoding,
		UseExistingBranch: useExistingBranch,
	}
	s.slots[top.taskID] = slot
	s.status.Active = len(s.slots)

	if s.deps.TaskStore != nil {
		s.deps.TaskStore.Update(ctx, top.taskID, map[string]any{
			"status":   model.TaskInProgress,
			"assignee": provider,
		})
	}
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(events.New(s.project.ID, top.taskID, model.EventTransition))
		s.deps.Bus.Emit(events.New(s.project.ID, top.taskID, model.EventAgentSpawned))
	}

	return slot, nil
}
