package gitops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opensprint/core/internal/heartbeat"
)

// BranchPrefix is prepended to every task identifier to form its branch
// name, per the spec's worktree entity (branch ref opensprint/<taskId>).
const BranchPrefix = "opensprint/"

// TaskBranch returns the branch name for a task.
func TaskBranch(taskID string) string { return BranchPrefix + taskID }

// DependencyLinker optionally links/installs dependency caches from the
// primary checkout into a freshly created worktree (e.g. node_modules,
// vendor/). The Git Toolkit itself is dependency-manager agnostic; callers
// inject the linker appropriate to the project.
type DependencyLinker interface {
	Link(ctx context.Context, primaryRepo, worktreePath string) error
}

// NoopDependencyLinker links nothing.
type NoopDependencyLinker struct{}

func (NoopDependencyLinker) Link(context.Context, string, string) error { return nil }

// CreateTaskWorktree ensures branch opensprint/<taskId> exists (creating it
// from main if absent), reclaims the branch from any stale worktree, adds
// a linked working tree at <base>/<taskId> with commit hooks disabled, and
// links dependency caches from the primary checkout.
//
// An already-existing local branch is always reused. If useExistingBranch
// is true (a task readmitted after an infrastructure retry), a failure to
// create the branch from main is also not treated as an error.
func CreateTaskWorktree(ctx context.Context, repo, base, taskID string, useExistingBranch bool, linker DependencyLinker, now time.Time) (path string, branch string, err error) {
	if linker == nil {
		linker = NoopDependencyLinker{}
	}
	branch = TaskBranch(taskID)
	path = filepath.Join(base, taskID)

	var lockErr error
	err = WithRepoLock(repo, func() error {
		exists, locErr := branchWorktreeLocation(ctx, repo, branch)
		if locErr != nil {
			lockErr = locErr
			return nil
		}
		if exists != "" && exists != path {
			rec, found, hbErr := heartbeat.Read(exists)
			if hbErr == nil && heartbeat.IsFresh(rec, found, now) {
				lockErr = &BranchInUse{Branch: branch, OtherPath: exists, OtherTaskID: taskID}
				return nil
			}
			// Stale: reclaim by removing the other worktree.
			if _, rmErr := run(ctx, DefaultRunner(), repo, "worktree", "remove", "--force", exists); rmErr != nil {
				lockErr = rmErr
				return nil
			}
		}

		if !localBranchExists(ctx, repo, branch) {
			if _, cErr := run(ctx, DefaultRunner(), repo, "branch", branch, "main"); cErr != nil && !useExistingBranch {
				lockErr = cErr
				return nil
			}
		}

		if _, err := os.Stat(path); err == nil {
			return nil // Worktree already present at destination; idempotent.
		}

		if _, addErr := run(ctx, DefaultRunner(), repo, "worktree", "add", path, branch); addErr != nil {
			lockErr = addErr
			return nil
		}
		if _, cfgErr := run(ctx, DefaultRunner(), path, "config", "core.hooksPath", os.DevNull); cfgErr != nil {
			lockErr = cfgErr
			return nil
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if lockErr != nil {
		return "", "", lockErr
	}

	if err := linker.Link(ctx, repo, path); err != nil {
		return "", "", fmt.Errorf("gitops: link dependencies: %w", err)
	}
	return path, branch, nil
}

// RemoveTaskWorktree removes the worktree for a task. It is idempotent: a
// missing worktree is not an error.
func RemoveTaskWorktree(ctx context.Context, repo, base, taskID, explicitPath string) error {
	path := explicitPath
	if path == "" {
		path = filepath.Join(base, taskID)
	}
	return WithRepoLock(repo, func() error {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		_, err := run(ctx, DefaultRunner(), repo, "worktree", "remove", "--force", path)
		if err != nil {
			// Already-pruned worktrees are not failures.
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				return nil
			}
			return err
		}
		return nil
	})
}

func localBranchExists(ctx context.Context, repo, branch string) bool {
	_, err := run(ctx, DefaultRunner(), repo, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// branchWorktreeLocation returns the worktree path currently checked out
// on branch, or "" if none, by parsing `git worktree list --porcelain`.
func branchWorktreeLocation(ctx context.Context, repo, branch string) (string, error) {
	out, err := run(ctx, DefaultRunner(), repo, "worktree", "list", "--porcelain")
	if err != nil {
		return "", err
	}
	var currentPath string
	for _, line := range splitLines(out) {
		switch {
		case len(line) > 9 && line[:9] == "worktree ":
			currentPath = line[9:]
		case line == "branch refs/heads/"+branch:
			return currentPath, nil
		}
	}
	return "", nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
