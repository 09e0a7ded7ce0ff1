package gitops

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ClosedCommitPrefix identifies the squash-worthy per-task completion
// commits produced by the Merge Coordinator (spec §6: "Closed <taskId>:
// <title>").
const ClosedCommitPrefix = "Closed "

// PushMain fetches origin/main; if it exists, squashes local-only commits
// into one (deriving a message from the most recent "Closed <taskId>:
// <title>" commit subject, or a generic fallback) and rebases
// `--empty=drop` onto origin/main. On rebase conflict it raises
// RebaseConflict and leaves rebase state for the merger agent. On success
// it force-pushes with hooks disabled.
//
// Grounded in the teacher's git.MergeManager.Merge / ForcePushWithLease /
// Fetch sequence (fetch → rebase → resolve-or-fail → force-push-with-lease).
func PushMain(ctx context.Context, repo string) error {
	if _, err := run(ctx, DefaultRunner(), repo, "fetch", "origin", "main"); err != nil {
		return fmt.Errorf("gitops: fetch origin main: %w", err)
	}

	hasRemote := remoteMainExists(ctx, repo)
	if hasRemote {
		if err := squashLocalCommits(ctx, repo); err != nil {
			return err
		}

		out, err := runWithTimeout(ctx, DefaultRunner(), RebaseTimeout, repo, "rebase", "--empty=drop", "origin/main")
		if err != nil {
			if looksLikeConflict(out) || IsRebaseInProgress(repo) {
				files, _ := GetConflictedFiles(ctx, repo)
				return &RebaseConflict{Files: files}
			}
			return err
		}
	}

	_, err := run(ctx, DefaultRunner(), repo, "-c", "core.hooksPath=/dev/null", "push", "--force-with-lease", "origin", "main")
	return err
}

func remoteMainExists(ctx context.Context, repo string) bool {
	_, err := run(ctx, DefaultRunner(), repo, "show-ref", "--verify", "--quiet", "refs/remotes/origin/main")
	return err == nil
}

// squashLocalCommits collapses every commit reachable from HEAD but not
// from origin/main into one, with a message derived from the most recent
// "Closed <taskId>: <title>" subject among them, falling back to a generic
// summary when none match.
func squashLocalCommits(ctx context.Context, repo string) error {
	countOut, err := run(ctx, DefaultRunner(), repo, "rev-list", "--count", "origin/main..HEAD")
	if err != nil {
		return err
	}
	n, _ := strconv.Atoi(strings.TrimSpace(countOut))
	if n <= 1 {
		return nil
	}

	subjects, err := run(ctx, DefaultRunner(), repo, "log", "--format=%s", "origin/main..HEAD")
	if err != nil {
		return err
	}
	message := "Integration update"
	for _, s := range splitLines(subjects) {
		if strings.HasPrefix(s, ClosedCommitPrefix) {
			message = s
			break
		}
	}

	if _, err := run(ctx, DefaultRunner(), repo, "reset", "--soft", "origin/main"); err != nil {
		return err
	}
	_, err = run(ctx, DefaultRunner(), repo, "-c", "core.hooksPath=/dev/null", "commit", "-m", message)
	return err
}

// SyncMainWithOrigin fetches origin, checks out main, computes ahead/behind
// against origin/main, fast-forwards when behind with no local-only
// commits, otherwise leaves main untouched (preserving in-flight local
// work for the caller to reconcile).
func SyncMainWithOrigin(ctx context.Context, repo string) error {
	if _, err := run(ctx, DefaultRunner(), repo, "fetch", "origin"); err != nil {
		return fmt.Errorf("gitops: fetch origin: %w", err)
	}
	if _, err := run(ctx, DefaultRunner(), repo, "checkout", "main"); err != nil {
		return err
	}
	if !remoteMainExists(ctx, repo) {
		return nil
	}

	aheadBehind, err := run(ctx, DefaultRunner(), repo, "rev-list", "--left-right", "--count", "main...origin/main")
	if err != nil {
		return err
	}
	fields := strings.Fields(strings.TrimSpace(aheadBehind))
	if len(fields) != 2 {
		return nil
	}
	ahead, behind := fields[0], fields[1]

	if ahead == "0" && behind != "0" {
		_, err := run(ctx, DefaultRunner(), repo, "merge", "--ff-only", "origin/main")
		return err
	}
	return nil
}
