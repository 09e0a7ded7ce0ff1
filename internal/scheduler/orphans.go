package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensprint/core/internal/model"
)

// InProgressLister is the subset of the TaskStore orphan recovery needs:
// tasks the store believes are in_progress with an assignee, independent
// of whether the scheduler currently holds a Slot for them (the scheduler
// itself may have restarted and lost all in-memory Slot state). Satisfied
// directly by collab.TaskStore.
type InProgressLister interface {
	ListInProgressWithAgentAssignee(ctx context.Context, projectID string) ([]model.Task, error)
}

// RecoverOrphans implements spec §4.7's orphan recovery sweep, run once at
// startup (and safe to re-run any time — it is idempotent per testable
// property 7): any worktree whose heartbeat is missing or stale gets its
// uncommitted work best-effort committed and then removed, and any task
// the store still lists in_progress with an assignee but which has no
// corresponding in-memory Slot is set back to open with its assignee
// cleared, so a later dispatch pass can admit it again.
func (s *Scheduler) RecoverOrphans(ctx context.Context, repoPath, worktreeBase string, lister InProgressLister) []string {
	var requeued []string

	if s.deps.Heartbeats != nil {
		stale, err := s.deps.Heartbeats.FindStale(worktreeBase, now())
		if err == nil {
			var orphaned []string
			for _, w := range stale {
				s.mu.Lock()
				_, slotted := s.slots[w.TaskID]
				s.mu.Unlock()
				if slotted {
					continue
				}
				orphaned = append(orphaned, w.TaskID)
			}

			// Best-effort WIP commit + worktree removal is independent
			// per orphan, so a large backlog of stale worktrees cleans up
			// in parallel rather than one filesystem round-trip at a time.
			if s.deps.Git != nil {
				var grp errgroup.Group
				for _, w := range stale {
					w := w
					s.mu.Lock()
					_, slotted := s.slots[w.TaskID]
					s.mu.Unlock()
					if slotted {
						continue
					}
					grp.Go(func() error {
						s.deps.Git.CommitWipBestEffort(ctx, w.Path, w.TaskID)
						s.deps.Git.RemoveWorktree(ctx, repoPath, w.TaskID, w.Path)
						return nil
					})
				}
				_ = grp.Wait()
			}

			for _, taskID := range orphaned {
				s.reopenOrphan(ctx, taskID)
				requeued = append(requeued, taskID)
			}
		}
	}

	if lister != nil {
		inProgress, err := lister.ListInProgressWithAgentAssignee(ctx, s.project.ID)
		if err == nil {
			for _, task := range inProgress {
				s.mu.Lock()
				_, held := s.slots[task.ID]
				s.mu.Unlock()
				if held {
					continue
				}
				s.reopenOrphan(ctx, task.ID)
				requeued = append(requeued, task.ID)
			}
		}
	}

	return dedupe(requeued)
}

// reopenOrphan sets an orphaned in_progress task back to open with its
// assignee cleared, per spec §4.7 "Orphan recovery". The branch itself is
// preserved — only the worktree is removed — so the next admission can
// resume work on it.
func (s *Scheduler) reopenOrphan(ctx context.Context, taskID string) {
	if s.deps.TaskStore == nil {
		return
	}
	if t, err := s.deps.TaskStore.Show(ctx, taskID); err != nil || t.Status != model.TaskInProgress {
		return
	}
	s.deps.TaskStore.Update(ctx, taskID, map[string]any{
		"status":   model.TaskOpen,
		"assignee": "",
	})
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// now is a seam for tests; production code always wants wall-clock time.
var nowFunc = time.Now

func now() time.Time { return nowFunc() }
