package gitops

import (
	"context"
	"fmt"
)

// CommitWip stages all changes, unstages the configured runtime-only
// paths, and commits "WIP: <taskId>" with hooks disabled. Returns whether
// a commit was produced (false when there was nothing to commit).
func CommitWip(ctx context.Context, path, taskID string) (bool, error) {
	if _, err := run(ctx, DefaultRunner(), path, "add", "-A"); err != nil {
		return false, err
	}

	staged, err := run(ctx, DefaultRunner(), path, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	for _, f := range splitLines(staged) {
		if f != "" && IsRuntimeExcluded(f) {
			if _, err := run(ctx, DefaultRunner(), path, "reset", "HEAD", "--", f); err != nil {
				return false, err
			}
		}
	}

	remaining, err := run(ctx, DefaultRunner(), path, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	if len(splitLines(trimEmpty(remaining))) == 0 {
		return false, nil
	}

	message := fmt.Sprintf("WIP: %s", taskID)
	if _, err := run(ctx, DefaultRunner(), path, "-c", "core.hooksPath=/dev/null", "commit", "--no-verify", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// RevertAndReturnToMain hard-resets, cleans, checks out main, and deletes
// the branch. Tolerant of a missing branch (branches-mode cleanup after a
// failed attempt, or a task that never produced a branch).
func RevertAndReturnToMain(ctx context.Context, repo, branch string) error {
	run(ctx, DefaultRunner(), repo, "reset", "--hard")
	run(ctx, DefaultRunner(), repo, "clean", "-fd")
	if _, err := run(ctx, DefaultRunner(), repo, "checkout", "main"); err != nil {
		return err
	}
	run(ctx, DefaultRunner(), repo, "branch", "-D", branch) // tolerate missing branch
	return nil
}

func trimEmpty(s string) string {
	out := ""
	for _, line := range splitLines(s) {
		if line != "" {
			out += line + "\n"
		}
	}
	return out
}
