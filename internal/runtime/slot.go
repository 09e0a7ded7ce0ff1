package runtime

import (
	"context"
	"time"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/failure"
	"github.com/opensprint/core/internal/gitops"
	"github.com/opensprint/core/internal/heartbeat"
	"github.com/opensprint/core/internal/merge"
	"github.com/opensprint/core/internal/model"
	"github.com/opensprint/core/internal/scheduler"
)

// heartbeatInterval is how often a running agent's worktree heartbeat is
// rewritten; well under heartbeat.StaleThreshold so a brief scheduling
// hiccup never misreads a live attempt as orphaned.
const heartbeatInterval = 20 * time.Second

// runSlot drives one admitted task through its coding phase and, on the
// result, through the Merge Coordinator (success) or the Failure Policy
// (failure) — the control flow from spec §2: "Scheduler selects a ready
// task, acquires a Slot, asks the Git Toolkit for a worktree, invokes the
// agent while the Heartbeat Registry watches it, then hands off to Merge
// Coordinator or Failure Policy."
func (p *Project) runSlot(ctx context.Context, task model.Task, slot *model.Slot) {
	defer p.wg.Done()
	defer p.Nudge()

	slotCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels[task.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancels, task.ID)
		p.mu.Unlock()
		cancel()
	}()

	var worktreePath, branch string
	var err error
	if p.project.Settings.GitWorkingMode == model.GitModeBranches {
		branch = gitops.TaskBranch(task.ID)
		worktreePath = p.project.RepoPath
	} else {
		worktreePath, branch, err = gitops.CreateTaskWorktree(slotCtx, p.project.RepoPath, p.worktreeBase(),
			task.ID, slot.UseExistingBranch, p.deps.Linker, time.Now())
		if err != nil {
			p.fail(slotCtx, task, slot, failure.AgentCrash, err.Error())
			return
		}
		p.hbWatch.AddWorktree(worktreePath)
	}
	slot.WorktreePath = worktreePath
	slot.Branch = branch

	stopHeartbeat := p.startHeartbeat(slotCtx, worktreePath, task.ID)
	defer stopHeartbeat()

	chunks := make(chan collab.AgentChunk, 64)
	runner := p.deps.AgentRunner()

	timer := scheduler.NewInactivityTimer(scheduler.InactivityTimeout, func() {
		slot.Agent.KilledByTimeout = true
		runner.Kill(context.Background())
	})
	defer timer.Stop()

	var outputLog []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range chunks {
			outputLog = append(outputLog, c.Data...)
			timer.Reset()
		}
	}()

	if p.bus != nil {
		p.bus.Emit(events.New(p.project.ID, task.ID, model.EventAgentSpawned))
	}

	result, runErr := runner.Spawn(slotCtx, p.project.Settings, codingPrompt(task), systemPrompt(), worktreePath, chunks)
	close(chunks)
	<-done
	slot.Agent.OutputLog = outputLog

	if p.bus != nil {
		p.bus.Emit(events.New(p.project.ID, task.ID, model.EventAgentCompleted))
	}

	if slot.Agent.KilledByTimeout || result.Killed {
		p.fail(slotCtx, task, slot, failure.Timeout, "agent inactivity timeout")
		return
	}
	if runErr != nil {
		p.fail(slotCtx, task, slot, failure.AgentCrash, runErr.Error())
		return
	}
	if result.ExitCode != 0 {
		p.fail(slotCtx, task, slot, failure.CodingFailure, string(outputLog))
		return
	}

	diff := gitops.CaptureUncommittedDiff(slotCtx, worktreePath)
	slot.Result = model.PhaseResult{Diff: diff, Summary: task.LastExecSummary}
	p.sched.ToReview(task.ID, slot.Result)
	p.sched.ToMerge(task.ID)

	mergeStart := time.Now()
	err = merge.PerformMergeAndDone(slotCtx, p.mergeDeps, merge.Input{
		Project:      p.project,
		Task:         task,
		WorktreePath: worktreePath,
		Branch:       branch,
		Summary:      slot.Result.Summary,
	})
	p.observeMergeWait(mergeStart)
	if err != nil {
		p.fail(slotCtx, task, slot, failure.MergeConflict, err.Error())
		return
	}
	p.sched.ToComplete(task.ID)
}

// fail routes a failing attempt through the Failure Policy and releases
// the Slot with whatever requeue decision it made.
func (p *Project) fail(ctx context.Context, task model.Task, slot *model.Slot, ft failure.Type, reason string) {
	out, err := failure.Handle(ctx, failure.Deps{
		TaskStore: p.deps.TaskStore,
		Archive:   p.archiveSt,
		Bus:       p.bus,
		Exhausted: p.exhausted,
		Notify:    p.deps.Notify,
		Git:       gitFailureCleanup{p: p},
		Nudge:     p.Nudge,
	}, failure.Input{
		Project:          p.project,
		Task:             task,
		Slot:             *slot,
		FailureType:      ft,
		Reason:           reason,
		BlockReasonLabel: "Coding Failure",
	})
	if err != nil {
		return
	}
	requeue := out.Action == failure.ActionRequeue || out.Action == failure.ActionInfraRetry || out.Action == failure.ActionDemote
	p.sched.ToFail(ctx, task.ID, out.NewPriority, requeue)
}

// gitFailureCleanup adapts gitops to failure.GitCleanup.
type gitFailureCleanup struct{ p *Project }

func (g gitFailureCleanup) RemoveWorktree(ctx context.Context, repo, taskID string, deleteBranch bool) error {
	branch := gitops.TaskBranch(taskID)
	if err := gitops.RemoveTaskWorktree(ctx, repo, g.p.worktreeBase(), taskID, ""); err != nil {
		return err
	}
	if deleteBranch {
		return gitops.DeleteBranch(ctx, repo, branch)
	}
	return nil
}

func (g gitFailureCleanup) RevertAndReturnToMain(ctx context.Context, repo, branch string) error {
	return gitops.RevertAndReturnToMain(ctx, repo, branch)
}

// startHeartbeat writes the initial heartbeat synchronously (an agent
// must write one before producing output, per spec §4.1) then rewrites it
// on a fixed cadence until ctx is done.
func (p *Project) startHeartbeat(ctx context.Context, worktreePath, taskID string) func() {
	instanceID := heartbeat.NewInstanceID()
	heartbeat.Write(worktreePath, taskID, instanceID, time.Now())
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				heartbeat.Write(worktreePath, taskID, instanceID, time.Now())
			}
		}
	}()
	return func() { close(stop) }
}

func codingPrompt(task model.Task) string {
	return "Implement task " + task.ID + ": " + task.Title
}

func systemPrompt() string { return "" }
