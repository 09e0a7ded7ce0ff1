// Package runtime is the application runtime from the spec's DESIGN
// NOTES: "global singletons (scheduler, registries) in the source map to
// per-project context objects owned by an application runtime." It wires
// the nine core components (C1-C9) plus the ambient collaborator
// implementations (taskstore, agentrunner, notify) into one cooperative
// loop per project, and exposes Nudge, the callback Failure Policy and
// Merge Coordinator use to wake the scheduler, per spec §9 "callbacks
// from failure policy back into the scheduler".
//
// Grounded in the teacher's worker.Pool/orchestrator.Orchestrator
// top-level wiring shape (one goroutine per project pulling ready work,
// dispatching to a pool, reacting to completion/failure) generalized from
// a single-repo unit pool to the spec's per-project task scheduler plus
// Merge Coordinator/Merge Queue pipeline.
package runtime

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/opensprint/core/internal/archive"
	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/exhaustion"
	"github.com/opensprint/core/internal/gitops"
	"github.com/opensprint/core/internal/heartbeat"
	"github.com/opensprint/core/internal/merge"
	"github.com/opensprint/core/internal/mergequeue"
	"github.com/opensprint/core/internal/model"
	"github.com/opensprint/core/internal/scheduler"
)

// Deps bundles the external collaborators a Project needs, per spec §6.
type Deps struct {
	TaskStore   collab.TaskStore
	AgentRunner func() collab.AgentRunner // factory: one Runner per Slot
	MergerAgent collab.MergerAgent
	Notify      collab.NotificationService
	Linker      gitops.DependencyLinker

	// ArchiveDir roots the Session Archive; WorktreeBase roots worktree
	// checkouts (spec's "<tmp>/opensprint-worktrees/<taskId>"); EventLog is
	// the per-repository append-only log file path (empty disables it).
	ArchiveDir   string
	WorktreeBase string
	EventLog     string
}

// Project owns every per-project component instance and the single
// cooperative loop that drives them, per spec §5 "one cooperative loop per
// project, N projects run in parallel across OS threads."
type Project struct {
	project model.Project
	deps    Deps

	bus        *events.Bus
	archiveSt  *archive.Archive
	exhausted  *exhaustion.Registry
	queue      *mergequeue.Queue
	sched      *scheduler.Scheduler
	mergeDeps  merge.Deps

	mu      sync.Mutex
	timers  map[string]*scheduler.InactivityTimer
	cancels map[string]context.CancelFunc

	nudgeCh chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup

	hbWatch *heartbeat.Watcher

	lastDone, lastFailed float64
}

// New wires every component for one project. Call Run to start its
// cooperative loop.
func New(project model.Project, deps Deps) (*Project, error) {
	if deps.ArchiveDir == "" {
		return nil, fmt.Errorf("runtime: ArchiveDir is required")
	}
	ar, err := archive.New(deps.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("runtime: open archive: %w", err)
	}
	bus, err := events.NewBus(deps.EventLog)
	if err != nil {
		return nil, fmt.Errorf("runtime: open event log: %w", err)
	}

	p := &Project{
		project:   project,
		deps:      deps,
		bus:       bus,
		archiveSt: ar,
		exhausted: exhaustion.New(),
		timers:    make(map[string]*scheduler.InactivityTimer),
		cancels:   make(map[string]context.CancelFunc),
		nudgeCh:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	if deps.WorktreeBase != "" {
		if w, err := heartbeat.Watch(deps.WorktreeBase); err == nil {
			p.hbWatch = w
		} else {
			log.Printf("runtime: heartbeat watch disabled, falling back to polling only: %v", err)
		}
	}

	p.queue = mergequeue.New(merge.ProcessWorktreeMergeJob, 64)
	p.sched = scheduler.New(project, scheduler.Deps{
		TaskStore: deps.TaskStore,
		Bus:       bus,
		Exhausted: p.exhausted,
		Heartbeats: heartbeatSource{},
		Git:        gitCleanup{p: p},
	})
	p.mergeDeps = merge.NewDeps(deps.TaskStore, ar, bus, p.queue, deps.MergerAgent, p.Nudge)

	return p, nil
}

// Bus exposes the Event Log & Broadcast component for external subscribers
// (the Broadcast collaborator emits onto this same bus; see Broadcast).
func (p *Project) Bus() *events.Bus { return p.bus }

// Broadcast returns the collab.Broadcast collaborator for this project,
// fanning out over the same Event Log Bus other subscribers use.
func (p *Project) Broadcast() collab.Broadcast { return &busBroadcast{bus: p.bus} }

// Scheduler exposes read-only status queries (spec §2 "exposes events and
// status queries").
func (p *Project) Scheduler() *scheduler.Scheduler { return p.sched }

// Nudge re-evaluates the ready queue; called on completion, failure,
// unblock, and external wakeups, per spec §4.7.
func (p *Project) Nudge() {
	select {
	case p.nudgeCh <- struct{}{}:
	default:
	}
}

// heartbeatSource adapts the heartbeat package's free functions to the
// scheduler.HeartbeatSource interface.
type heartbeatSource struct{}

func (heartbeatSource) FindStale(base string, now time.Time) ([]scheduler.StaleWorktree, error) {
	stale, err := heartbeat.FindStale(base, now)
	if err != nil {
		return nil, err
	}
	out := make([]scheduler.StaleWorktree, len(stale))
	for i, s := range stale {
		out[i] = scheduler.StaleWorktree{TaskID: s.TaskID, Path: s.Path}
	}
	return out, nil
}

// gitCleanup adapts the gitops package to scheduler.GitOrphanCleanup.
type gitCleanup struct{ p *Project }

func (g gitCleanup) CommitWipBestEffort(ctx context.Context, worktreePath, taskID string) {
	gitops.CommitWip(ctx, worktreePath, taskID)
}

func (g gitCleanup) RemoveWorktree(ctx context.Context, repo, taskID, path string) error {
	return gitops.RemoveTaskWorktree(ctx, repo, g.p.deps.WorktreeBase, taskID, path)
}

// Run starts the project's cooperative loop: it repeatedly admits ready
// tasks up to the configured concurrency, drives each admitted task's
// coding phase to completion or failure, and hands the outcome to the
// Merge Coordinator or Failure Policy. Run blocks until ctx is cancelled
// or Stop is called.
func (p *Project) Run(ctx context.Context) {
	p.RecoverOrphans(ctx)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var hbEvents <-chan struct{}
	if p.hbWatch != nil {
		hbEvents = p.hbWatch.Events
	}

	for {
		p.dispatchReady(ctx)
		p.sampleMetrics()

		select {
		case <-ctx.Done():
			p.shutdown()
			return
		case <-p.stop:
			p.shutdown()
			return
		case <-p.nudgeCh:
		case <-ticker.C:
			p.RecoverOrphans(ctx)
		case <-hbEvents:
			p.RecoverOrphans(ctx)
		}
	}
}

// Stop ends the cooperative loop after the current dispatch pass.
func (p *Project) Stop() { close(p.stop) }

func (p *Project) shutdown() {
	p.wg.Wait()
	p.queue.Close()
	p.bus.Close()
	p.hbWatch.Close()
	if p.archiveSt != nil {
		p.archiveSt.CloseDB()
	}
}

// RecoverOrphans runs the orphan-recovery sweep (spec §4.7), safe to call
// at startup and periodically; idempotent per testable property 7.
func (p *Project) RecoverOrphans(ctx context.Context) {
	p.sched.RecoverOrphans(ctx, p.project.RepoPath, p.worktreeBase(), p.deps.TaskStore)
}

// dispatchReady admits as many ready tasks as the project's concurrency
// budget and provider exhaustion allow, after first mirroring open/ready
// tasks from the TaskStore into the scheduler's ready queue.
func (p *Project) dispatchReady(ctx context.Context) {
	p.refillReadyQueue(ctx)

	for {
		task, ok := p.nextReadyTask(ctx)
		if !ok {
			return
		}
		provider := p.project.Settings.SimpleComplexityAgent
		slot, err := p.sched.Admit(ctx, task, provider, p.project.Settings.Concurrency, false, nil)
		if err != nil {
			return
		}
		p.wg.Add(1)
		go p.runSlot(ctx, task, slot)
	}
}

// refillReadyQueue mirrors newly-ready/open tasks from the TaskStore into
// the scheduler's ready heap; tasks already tracked (in a Slot, or already
// enqueued) are left alone.
func (p *Project) refillReadyQueue(ctx context.Context) {
	tasks, err := p.deps.TaskStore.ListAll(ctx, p.project.ID)
	if err != nil {
		log.Printf("runtime: list tasks for %s: %v", p.project.ID, err)
		return
	}
	for _, t := range tasks {
		if t.Status != model.TaskOpen && t.Status != model.TaskReady {
			continue
		}
		if _, held := p.sched.Slot(t.ID); held {
			continue
		}
		p.sched.Enqueue(t.ID, t.Priority)
	}
}

// nextReadyTask re-fetches the task the scheduler is about to admit so the
// caller has its current priority/attempt count (the ready heap only
// tracks identifiers). Admission itself still goes through sched.Admit
// for its uniqueness/capacity/exhaustion checks.
func (p *Project) nextReadyTask(ctx context.Context) (model.Task, bool) {
	id, ok := p.sched.PeekReady()
	if !ok {
		return model.Task{}, false
	}
	t, err := p.deps.TaskStore.Show(ctx, id)
	if err != nil {
		return model.Task{}, false
	}
	return t, true
}

func (p *Project) worktreeBase() string {
	if p.deps.WorktreeBase != "" {
		return p.deps.WorktreeBase
	}
	return filepath.Join("/tmp", "opensprint-worktrees")
}

var _ collab.Broadcast = (*busBroadcast)(nil)

// busBroadcast satisfies collab.Broadcast by fanning every call out
// through the project's Event Log Bus, reusing its best-effort,
// non-blocking Subscribe machinery (spec §6 "Broadcast: broadcast(...)
// best-effort").
type busBroadcast struct{ bus *events.Bus }

func (b *busBroadcast) BroadcastEvent(ctx context.Context, projectID string, e model.Event) {
	b.bus.Emit(e)
}
