package gitops

import "context"

// CaptureBranchDiff returns the diff main..branch.
func CaptureBranchDiff(ctx context.Context, repo, branch string) (string, error) {
	return run(ctx, DefaultRunner(), repo, "diff", "main.."+branch)
}

// CaptureUncommittedDiff stages all changes, diffs against HEAD, then
// unstages — returning empty on any failure rather than propagating an
// error, matching the spec's "returns empty on failure" contract (this is
// best-effort telemetry, never load-bearing for correctness).
func CaptureUncommittedDiff(ctx context.Context, path string) string {
	if _, err := run(ctx, DefaultRunner(), path, "add", "-A"); err != nil {
		return ""
	}
	diff, err := run(ctx, DefaultRunner(), path, "diff", "--cached")
	if err != nil {
		diff = ""
	}
	run(ctx, DefaultRunner(), path, "reset")
	return diff
}
