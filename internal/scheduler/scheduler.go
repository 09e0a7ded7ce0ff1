// Package scheduler implements the Scheduler / State Machine (C7): a
// per-project, single-threaded dispatcher performing admission control,
// slot accounting, state transitions, orphan recovery, and event
// emission.
//
// Grounded directly in the teacher's internal/scheduler package: the
// states map[string]*UnitState + ReadyQueue shape of scheduler.Scheduler,
// the Dispatch/Complete/Fail/Transition method set, and the
// evaluateReady/propagateBlocked idiom — generalized from a DAG-of-units
// scheduler (topological levels, dependency-gated readiness) to this
// spec's flat priority-FIFO task scheduler (ascending priority, then FIFO
// arrival, then lexicographic identifier as the final tie-break), since
// the spec's Task model carries no cross-task dependency graph.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/exhaustion"
	"github.com/opensprint/core/internal/model"
)

// InactivityTimeout is the default per-Slot agent inactivity timer, reset
// by any agent output chunk; firing it kills the agent and classifies the
// failure as timeout.
const InactivityTimeout = 5 * time.Minute

// Status holds the counters the spec asks the Scheduler to maintain.
type Status struct {
	Active      int
	QueueDepth  int
	TotalDone   int
	TotalFailed int
}

// Deps are the Scheduler's collaborators.
type Deps struct {
	TaskStore  collab.TaskStore
	Bus        *events.Bus
	Exhausted  *exhaustion.Registry
	Heartbeats HeartbeatSource
	Git        GitOrphanCleanup
}

// HeartbeatSource reports stale worktrees for orphan recovery.
type HeartbeatSource interface {
	FindStale(base string, now time.Time) ([]StaleWorktree, error)
}

// StaleWorktree is a worktree whose heartbeat is missing or stale.
type StaleWorktree struct {
	TaskID string
	Path   string
}

// GitOrphanCleanup performs the best-effort recovery cleanup of an orphaned
// worktree.
type GitOrphanCleanup interface {
	CommitWipBestEffort(ctx context.Context, worktreePath, taskID string)
	RemoveWorktree(ctx context.Context, repo, taskID, path string) error
}

// entry is one task tracked by the ready queue, ordered by (priority asc,
// seq asc, taskID asc) — ascending priority then FIFO arrival, ties broken
// lexicographically, exactly as spec §4.7 "Scheduling order" states.
type entry struct {
	taskID   string
	priority int
	seq      int
	index    int
}

type readyHeap []*entry

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	if h[i].seq != h[j].seq {
		return h[i].seq < h[j].seq
	}
	return h[i].taskID < h[j].taskID
}
func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *readyHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler is the per-project dispatcher. It is not safe for concurrent
// calls to its mutating methods from more than one caller — by design, it
// is single-threaded per project; external parallelism comes only from
// running separate projects, each with their own Scheduler.
type Scheduler struct {
	project model.Project
	deps    Deps

	mu      sync.Mutex
	slots   map[string]*model.Slot
	ready   readyHeap
	nextSeq int
	status  Status
}

// New creates a Scheduler for one project.
func New(project model.Project, deps Deps) *Scheduler {
	return &Scheduler{
		project: project,
		deps:    deps,
		slots:   make(map[string]*model.Slot),
	}
}

// Enqueue adds a task to the ready queue in FIFO arrival order. A task
// already waiting in the ready queue keeps its place and is not added again.
func (s *Scheduler) Enqueue(taskID string, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.ready {
		if e.taskID == taskID {
			return
		}
	}
	heap.Push(&s.ready, &entry{taskID: taskID, priority: priority, seq: s.nextSeq})
	s.nextSeq++
	s.status.QueueDepth = s.ready.Len()
}

// Status returns a snapshot of the scheduler's counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ActiveCount returns the number of occupied slots.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// PeekReady returns the identifier of the task at the front of the ready
// queue (highest priority, then earliest arrival, then lexicographically
// smallest) without removing it, so a caller can look up its current
// details before calling Admit.
func (s *Scheduler) PeekReady() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Len() == 0 {
		return "", false
	}
	return s.ready[0].taskID, true
}

// Slot returns the Slot for a task, if any.
func (s *Scheduler) Slot(taskID string) (model.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[taskID]
	if !ok {
		return model.Slot{}, false
	}
	return *slot, true
}
