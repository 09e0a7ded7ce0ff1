// Package merge implements the Merge Coordinator (C6): commits the
// outcome of a successful coding attempt to main, invokes the merger agent
// on conflict, and handles push with rebase-and-retry, including the
// deferred branch/worktree cleanup invariant (a branch registered for
// cleanup is removed only after the next successful push).
//
// Grounded in the teacher's Worker.mergeToFeatureBranch/mergeWithCleanup/
// resolveConflictsWithClaude (rebase → conflict → merger-agent retry loop
// → escalate) generalized from "merge a unit branch into the feature
// branch" to "merge a task branch into main", and in
// git.MergeManager.Merge's fetch → rebase → resolve → force-push →
// ScheduleBranchDelete/FlushDeletes sequence for the deferred-cleanup
// invariant itself.
package merge

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/gitops"
	"github.com/opensprint/core/internal/mergequeue"
	"github.com/opensprint/core/internal/model"
)

// MaxMergeFailuresMultiplier is the cumulative-attempts multiple (of the backoff
// threshold) at which a task is blocked rather than reopened after
// repeated merge failures, per spec §4.6.6.
const MaxMergeFailuresMultiplier = 2

// Deps are the Merge Coordinator's collaborators.
type Deps struct {
	TaskStore   collab.TaskStore
	Archive     Archiver
	Bus         *events.Bus
	Queue       *mergequeue.Queue
	MergerAgent collab.MergerAgent
	Nudge       func()

	// pushMu serializes pushMain calls across the whole project — there
	// must be at most one in-flight push per project at a time.
	pushMu *sync.Mutex
	// pushInProgress signals postCompletionAsync not to start a second
	// concurrent push.
	pushInProgress *boolFlag

	// pendingCleanup holds branches registered for deferred removal,
	// flushed only after the next successful push.
	pendingCleanup *cleanupQueue
}

type boolFlag struct {
	mu sync.Mutex
	v  bool
}

func (b *boolFlag) trySet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.v {
		return false
	}
	b.v = true
	return true
}
func (b *boolFlag) clear() { b.mu.Lock(); b.v = false; b.mu.Unlock() }

type cleanupQueue struct {
	mu    sync.Mutex
	items []cleanupItem
}

type cleanupItem struct {
	RepoPath     string
	TaskID       string
	WorktreePath string
	Branch       string
}

func (q *cleanupQueue) add(item cleanupItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *cleanupQueue) drain() []cleanupItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len reports how many items are currently pending cleanup. Exported for
// tests; safe to call concurrently with add/drain.
func (q *cleanupQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Archiver is the subset of the Session Archive the Merge Coordinator uses.
type Archiver interface {
	ArchiveSession(sess model.Session) error
}

// NewDeps wraps the given collaborators with the internal synchronization
// state (push mutex, in-progress flag, deferred-cleanup queue) every
// Coordinator instance needs, one per project.
func NewDeps(ts collab.TaskStore, ar Archiver, bus *events.Bus, q *mergequeue.Queue, merger collab.MergerAgent, nudge func()) Deps {
	return Deps{
		TaskStore: ts, Archive: ar, Bus: bus, Queue: q, MergerAgent: merger, Nudge: nudge,
		pushMu:         &sync.Mutex{},
		pushInProgress: &boolFlag{},
		pendingCleanup: &cleanupQueue{},
	}
}

// Input bundles what PerformMergeAndDone needs about one successful attempt.
type Input struct {
	Project      model.Project
	Task         model.Task
	WorktreePath string
	Branch       string
	Summary      string
}

// PerformMergeAndDone implements spec §4.6 steps 1-4: commit WIP, drain the
// queue, enqueue a worktree_merge job, close the task on success, register
// deferred cleanup, and kick an asynchronous push.
func PerformMergeAndDone(ctx context.Context, deps Deps, in Input) error {
	gitops.CommitWip(ctx, in.WorktreePath, in.Task.ID)

	// Wait for any in-flight push to finish before draining/enqueuing the
	// next merge job, per spec §4.6 step 1. The repo lock acquired inside
	// ProcessWorktreeMergeJob and PostCompletionAsync is what actually
	// serializes the git operations; this additionally blocks until a push
	// already running has released pushMu, so the drain below never races
	// ahead of a push that is about to register deferred cleanup.
	deps.pushMu.Lock()
	deps.pushMu.Unlock()

	deps.Queue.Drain()

	err := deps.Queue.EnqueueAndWait(ctx, model.MergeJob{
		Kind:      model.JobWorktreeMerge,
		RepoPath:  in.Project.RepoPath,
		WorktreePath: in.WorktreePath,
		Branch:    in.Branch,
		TaskID:    in.Task.ID,
		TaskTitle: in.Task.Title,
	})
	if err != nil {
		return handleMergeFailure(ctx, deps, in, err)
	}

	summary := in.Summary
	if summary == "" {
		summary = "Implemented and tested"
	}
	if deps.TaskStore != nil {
		deps.TaskStore.Close(ctx, in.Task.ID, summary)
	}
	if deps.Archive != nil {
		deps.Archive.ArchiveSession(model.Session{
			TaskID: in.Task.ID, Status: model.SessionApproved, Summary: summary, Branch: in.Branch,
		})
	}
	if deps.Bus != nil {
		deps.Bus.Emit(events.New(in.Project.ID, in.Task.ID, model.EventTaskCompleted))
	}

	deps.pendingCleanup.add(cleanupItem{
		RepoPath: in.Project.RepoPath, TaskID: in.Task.ID, WorktreePath: in.WorktreePath, Branch: in.Branch,
	})

	go PostCompletionAsync(context.Background(), deps, in.Project)
	return nil
}

// ProcessWorktreeMergeJob is the mergequeue.Processor for JobWorktreeMerge:
// rebase onto main, merge with no commit, then produce a single merge
// commit with message "merge: <branch> — <title>". Runs under the same
// per-repo lock PostCompletionAsync's push uses (gitops.WithRepoLock), so a
// merge in progress on this thread and a push in flight on another task's
// completion goroutine never touch .git/index at the same time — the
// single-writer-to-main invariant of spec §3 Inv. 1, grounded in the
// teacher's MergeManager.Merge holding one mutex across
// fetch→rebase→merge→push.
func ProcessWorktreeMergeJob(ctx context.Context, job model.MergeJob) error {
	return gitops.WithRepoLock(job.RepoPath, func() error {
		if err := gitops.RebaseOntoMain(ctx, job.WorktreePath); err != nil {
			return err
		}
		if err := gitops.MergeToMainNoCommit(ctx, job.RepoPath, job.Branch); err != nil {
			return err
		}
		message := fmt.Sprintf("merge: %s — %s", job.Branch, job.TaskTitle)
		return gitops.CommitMerge(ctx, job.RepoPath, message)
	})
}

// PostCompletionAsync runs pushMain guarded by the per-project push mutex
// if no push is already in progress, and by the same repo lock
// ProcessWorktreeMergeJob uses, then flushes deferred cleanup on success. A
// failed push leaves cleanup pending for the next completion to retry, per
// spec §4.6.4/§6 invariant 6.
func PostCompletionAsync(ctx context.Context, deps Deps, project model.Project) {
	if !deps.pushInProgress.trySet() {
		return
	}
	defer deps.pushInProgress.clear()

	deps.pushMu.Lock()
	defer deps.pushMu.Unlock()

	err := gitops.WithRepoLock(project.RepoPath, func() error {
		return gitops.PushMain(ctx, project.RepoPath)
	})
	if err != nil {
		handlePushFailure(ctx, deps, project, err)
		return
	}

	if deps.Bus != nil {
		deps.Bus.Emit(events.New(project.ID, "", model.EventPushSucceeded))
	}
	flushDeferredCleanup(ctx, deps)
}

// flushDeferredCleanup removes every branch/worktree registered by a
// successful merge, now that the push that made them safe to delete has
// itself succeeded. Must never run before a successful push — collapsing
// cleanup into the merge step would delete a branch an in-flight rebase
// still references.
func flushDeferredCleanup(ctx context.Context, deps Deps) {
	for _, item := range deps.pendingCleanup.drain() {
		gitops.RemoveTaskWorktree(ctx, item.RepoPath, "", item.TaskID, item.WorktreePath)
		gitops.DeleteBranch(ctx, item.RepoPath, item.Branch)
	}
}

// handlePushFailure implements spec §4.6.5: on a rebase conflict during
// push, invoke the merger agent once; on success, continue the rebase and
// push; otherwise abort the rebase and leave the push for the next
// completion to retry.
func handlePushFailure(ctx context.Context, deps Deps, project model.Project, err error) {
	var rc *gitops.RebaseConflict
	if rebaseConflict(err, &rc) && deps.MergerAgent != nil {
		resolved, mErr := deps.MergerAgent.RunMergerAgent(ctx, collab.MergerAgentRequest{
			Project: project.ID, Cwd: project.RepoPath, Config: project.Settings,
			Phase: collab.PhasePushRebase, ConflictFiles: rc.Files, TestCommand: project.Settings.TestCommand,
		})
		if mErr == nil && resolved {
			retried := gitops.WithRepoLock(project.RepoPath, func() error {
				if cErr := gitops.ContinueRebase(ctx, project.RepoPath); cErr != nil {
					return cErr
				}
				return gitops.PushMain(ctx, project.RepoPath)
			})
			if retried == nil {
				if deps.Bus != nil {
					deps.Bus.Emit(events.New(project.ID, "", model.EventPushSucceeded))
				}
				flushDeferredCleanup(ctx, deps)
				return
			}
		}
		gitops.AbortRebase(ctx, project.RepoPath)
	}
	if deps.Bus != nil {
		deps.Bus.Emit(events.New(project.ID, "", model.EventPushFailed))
	}
	// Deferred cleanup stays pending; the next successful completion's
	// PostCompletionAsync will retry the push and, if it succeeds, flush it.
}

func rebaseConflict(err error, target **gitops.RebaseConflict) bool {
	rc, ok := err.(*gitops.RebaseConflict)
	if ok {
		*target = rc
	}
	return ok
}

// handleMergeFailure implements spec §4.6.6: abort any in-progress merge,
// archive a failed session, increment cumulative attempts, and either
// block the task (at 2x the backoff threshold) or reopen it.
func handleMergeFailure(ctx context.Context, deps Deps, in Input, jobErr error) error {
	gitops.AbortMerge(ctx, in.Project.RepoPath)

	var files []string
	var stage string
	switch e := jobErr.(type) {
	case *gitops.MergeConflict:
		files = e.Files
		stage = "merge_to_main"
	case *gitops.RebaseConflict:
		files = e.Files
		stage = "rebase_before_merge"
	case *mergequeue.JobFailed:
		files = e.Files
		stage = string(e.Stage)
	}

	if deps.Archive != nil {
		deps.Archive.ArchiveSession(model.Session{
			TaskID: in.Task.ID, Status: model.SessionFailed, FailureReason: jobErr.Error(), Branch: in.Branch,
		})
	}

	newCumulative := in.Task.CumulativeAttempts + 1
	if deps.TaskStore != nil {
		deps.TaskStore.SetCumulativeAttempts(ctx, in.Task.ID, newCumulative)
		deps.TaskStore.SetConflictFiles(ctx, in.Task.ID, files)
	}

	resolvedBy := "requeued"
	if newCumulative >= MaxMergeFailuresMultiplier*model.BackoffThreshold {
		resolvedBy = "blocked"
		if deps.TaskStore != nil {
			deps.TaskStore.Update(ctx, in.Task.ID, map[string]any{
				"status": model.TaskBlocked, "blockReason": "Merge Failure", "assignee": "",
			})
		}
		if deps.Bus != nil {
			deps.Bus.Emit(events.New(in.Project.ID, in.Task.ID, model.EventTaskBlocked))
		}
	} else {
		if deps.TaskStore != nil {
			deps.TaskStore.Update(ctx, in.Task.ID, map[string]any{
				"status": model.TaskOpen, "assignee": "",
			})
		}
		if deps.Bus != nil {
			deps.Bus.Emit(events.New(in.Project.ID, in.Task.ID, model.EventTaskRequeued))
		}
	}

	if deps.Bus != nil {
		failed := events.New(in.Project.ID, in.Task.ID, model.EventMergeFailed)
		failed = events.WithData(failed, "stage", stage)
		failed = events.WithData(failed, "conflictedFiles", files)
		failed = events.WithData(failed, "resolvedBy", resolvedBy)
		deps.Bus.Emit(failed)
	}
	if deps.Nudge != nil {
		deps.Nudge()
	}
	return nil
}
