package scheduler

import (
	"container/heap"
	"context"

	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/model"
)

// ToReview moves an admitted task's Slot from coding to review phase,
// recording the coding attempt's result.
func (s *Scheduler) ToReview(taskID string, result model.PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[taskID]
	if !ok {
		return
	}
	slot.Phase = model.PhaseReview
	slot.Result = result
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(events.New(s.project.ID, taskID, model.EventTransition))
	}
}

// ToMerge moves a reviewed task's Slot into the merge phase.
func (s *Scheduler) ToMerge(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[taskID]
	if !ok {
		return
	}
	slot.Phase = model.PhaseMerge
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(events.New(s.project.ID, taskID, model.EventTransition))
	}
}

// ToComplete releases a task's Slot after the Merge Coordinator has closed
// it and kicked the asynchronous push. It is the scheduler's job to free
// the slot so another ready task can be admitted — it does not itself
// touch the TaskStore, since PerformMergeAndDone has already done that.
func (s *Scheduler) ToComplete(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, taskID)
	s.status.Active = len(s.slots)
	s.status.TotalDone++
}

// ToFail releases a task's Slot after the Failure Policy has applied its
// side effects (requeue/demote/block). When requeue is true the task goes
// back onto the ready queue at requeuePriority (the demoted priority after
// a demotion); otherwise, as for a block, it is not re-enqueued.
func (s *Scheduler) ToFail(ctx context.Context, taskID string, requeuePriority int, requeue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, taskID)
	s.status.Active = len(s.slots)
	s.status.TotalFailed++
	if requeue {
		heap.Push(&s.ready, &entry{taskID: taskID, priority: requeuePriority, seq: s.nextSeq})
		s.nextSeq++
		s.status.QueueDepth = s.ready.Len()
	}
}

// Nudge is a no-op hook point for callers that want to react to a
// scheduler state change (e.g. try another Admit). The scheduler itself
// holds no goroutine and does no polling — spec §4.7 places the
// re-evaluation loop in the runtime that owns this Scheduler, which calls
// Nudge after every ToComplete/ToFail/Enqueue to trigger another Admit
// attempt. Exposed for symmetry with Deps.Nudge in other components; the
// runtime is expected to supply its own callback rather than rely on this
// method doing anything on its own.
func (s *Scheduler) Nudge() {}
