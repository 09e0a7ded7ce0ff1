package gitops

import "context"

// CommitMerge produces the merge commit for a merge staged via
// MergeToMainNoCommit (which leaves the merge uncommitted so conflicts can
// be inspected first).
func CommitMerge(ctx context.Context, repo, message string) error {
	_, err := run(ctx, DefaultRunner(), repo, "-c", "core.hooksPath=/dev/null", "commit", "-m", message)
	return err
}

// DeleteBranch removes a local branch. Tolerant of an already-absent
// branch, matching the idempotency the deferred-cleanup step requires.
func DeleteBranch(ctx context.Context, repo, branch string) error {
	run(ctx, DefaultRunner(), repo, "branch", "-D", branch)
	return nil
}
