// Package failure implements the Failure Policy (C5): classifies a
// failing attempt, diagnoses unresolvable no-result cases, enriches the
// failure reason, and decides whether to retry, requeue, demote, or block
// the task, applying backoff per the spec's exact decision tree (§4.5).
//
// Grounded in the teacher's worker.RetryWithBackoff/RetryConfig for the
// infrastructure-retry/backoff shape, and in
// orchestrator.categorizeErrorSeverity/categorizeErrorType for the
// string-sniffing classification idiom, generalized from "retry the
// Claude call" into "retry, demote, or block the task".
package failure

import (
	"context"
	"strings"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/model"
)

// Type is the failure classification of an attempt.
type Type string

const (
	CodingFailure   Type = "coding_failure"
	ReviewRejection Type = "review_rejection"
	NoResult        Type = "no_result"
	Timeout         Type = "timeout"
	AgentCrash      Type = "agent_crash"
	MergeConflict   Type = "merge_conflict"
)

// IsInfrastructure reports whether t belongs to the infrastructure set
// {agent_crash, timeout, merge_conflict} — failures attributable to the
// environment rather than the agent's coding attempt.
func (t Type) IsInfrastructure() bool {
	switch t {
	case AgentCrash, Timeout, MergeConflict:
		return true
	default:
		return false
	}
}

// MaxInfraRetries is how many infrastructure retries a Slot gets on the
// same branch before the backoff/demotion rules apply instead.
const MaxInfraRetries = 2

// noResultPatterns are substrings whose presence in the enriched reason
// marks a no_result failure as diagnosed — i.e. certainly not worth
// retrying, per spec §4.5.2.
var noResultPatterns = []string{
	"authentication required",
	"missing cli",
	"missing api key",
	"rate limited",
	"command not found",
	"task file unreadable",
	"5-minute hang",
	"not a chat model",
}

// apiBlockedPatterns identify API-level errors that should also mark the
// provider exhausted and raise an operator notification.
var apiBlockedPatterns = map[string]string{
	"rate limited":  "rate_limited",
	"unauthorized":  "unauthorized",
	"out of credit": "out_of_credit",
}

// MaxReasonLength bounds the enriched failure reason.
const MaxReasonLength = 1200

// Diagnose reports whether a no_result failure's enriched reason matches a
// known unrecoverable pattern.
func Diagnose(failureType Type, enrichedReason string) bool {
	if failureType != NoResult {
		return false
	}
	lower := strings.ToLower(enrichedReason)
	for _, p := range noResultPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DetectAPIBlocked returns the ApiBlocked code matched in reason, if any.
func DetectAPIBlocked(reason string) (code string, matched bool) {
	lower := strings.ToLower(reason)
	for pattern, c := range apiBlockedPatterns {
		if strings.Contains(lower, pattern) {
			return c, true
		}
	}
	return "", false
}

// EnrichReason searches outputLog for the most recent "[Agent error: ...]"
// token and appends it to reason; if none is found, appends the last 8
// non-blank lines joined by " | ". The result is capped at
// MaxReasonLength.
func EnrichReason(reason, outputLog string) string {
	enriched := reason
	if token, ok := lastAgentErrorToken(outputLog); ok {
		enriched = reason + " " + token
	} else if tail, ok := lastNonBlankLines(outputLog, 8); ok {
		enriched = reason + " " + tail
	}
	if len(enriched) > MaxReasonLength {
		enriched = enriched[:MaxReasonLength]
	}
	return enriched
}

func lastAgentErrorToken(log string) (string, bool) {
	const open = "[Agent error:"
	idx := strings.LastIndex(log, open)
	if idx < 0 {
		return "", false
	}
	end := strings.IndexByte(log[idx:], ']')
	if end < 0 {
		return "", false
	}
	return log[idx : idx+end+1], true
}

func lastNonBlankLines(log string, n int) (string, bool) {
	lines := strings.Split(log, "\n")
	var nonBlank []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonBlank = append(nonBlank, strings.TrimSpace(l))
		}
	}
	if len(nonBlank) == 0 {
		return "", false
	}
	if len(nonBlank) > n {
		nonBlank = nonBlank[len(nonBlank)-n:]
	}
	return strings.Join(nonBlank, " | "), true
}

// Action is the next-action decision for a failed attempt.
type Action string

const (
	ActionBlock        Action = "block"
	ActionInfraRetry   Action = "infra_retry"
	ActionRequeue      Action = "requeue"
	ActionDemote       Action = "demote"
)

// Decide implements the spec §4.5.4 next-action decision tree.
func Decide(failureType Type, diagnosedNoResult bool, infraRetries int, cumulativeAttempts int, priority int) Action {
	if diagnosedNoResult {
		return ActionBlock
	}
	if failureType.IsInfrastructure() && infraRetries < MaxInfraRetries {
		return ActionInfraRetry
	}
	if cumulativeAttempts%model.BackoffThreshold != 0 {
		return ActionRequeue
	}
	if priority >= model.MaxPriority {
		return ActionBlock
	}
	return ActionDemote
}

// Input bundles everything Handle needs about one failing attempt.
type Input struct {
	Project      model.Project
	Task         model.Task
	Slot         model.Slot
	FailureType  Type
	Reason       string
	BlockReasonLabel string // e.g. "Coding Failure", used verbatim as the block reason.
}

// Outcome is what Handle decided and applied.
type Outcome struct {
	Action            Action
	EnrichedReason    string
	Diagnosed         bool
	NewPriority       int
	NewCumulative     int
	NewInfraRetries   int
}

// Deps are the Failure Policy's collaborators.
type Deps struct {
	TaskStore collab.TaskStore
	Archive   Archiver
	Bus       *events.Bus
	Exhausted Exhaustion
	Notify    collab.NotificationService
	Git       GitCleanup
	Nudge     func()
}

// Archiver is the subset of the Session Archive the Failure Policy uses.
type Archiver interface {
	ArchiveSession(sess model.Session) error
}

// Exhaustion is the subset of the Exhaustion Registry the Failure Policy uses.
type Exhaustion interface {
	Mark(project, provider string)
}

// GitCleanup performs the cleanup step appropriate to the project's git
// working mode.
type GitCleanup interface {
	// RemoveWorktree removes a task's worktree. deleteBranch controls
	// whether the branch itself is also deleted (worktree mode only
	// deletes on demotion/block, per spec §4.5.6).
	RemoveWorktree(ctx context.Context, repo, taskID string, deleteBranch bool) error
	// RevertAndReturnToMain is used in branches mode.
	RevertAndReturnToMain(ctx context.Context, repo, branch string) error
}

const maxCommentLength = 2000

// Handle runs the full Failure Policy pipeline for one failing attempt and
// applies its side effects, returning the decision made.
func Handle(ctx context.Context, deps Deps, in Input) (Outcome, error) {
	enriched := in.Reason
	diagnosed := false
	if in.FailureType == NoResult {
		enriched = EnrichReason(in.Reason, string(in.Slot.Agent.OutputLog))
		diagnosed = Diagnose(in.FailureType, enriched)
	}

	if code, ok := DetectAPIBlocked(enriched); ok {
		deps.Exhausted.Mark(in.Project.ID, in.Task.Assignee)
		if deps.Notify != nil {
			deps.Notify.CreateApiBlocked(ctx, in.Project.ID, in.Task.Assignee, code)
		}
	}

	infraRetries := in.Slot.InfraRetries
	action := Decide(in.FailureType, diagnosed, infraRetries, in.Task.CumulativeAttempts+1, in.Task.Priority)

	out := Outcome{
		Action:         action,
		EnrichedReason: enriched,
		Diagnosed:      diagnosed,
		NewCumulative:  in.Task.CumulativeAttempts + 1,
		NewPriority:    in.Task.Priority,
	}

	if action == ActionInfraRetry {
		out.NewInfraRetries = infraRetries + 1
		out.NewCumulative = in.Task.CumulativeAttempts // infra retries don't count as a coding attempt
	}
	if action == ActionDemote {
		out.NewPriority = in.Task.Priority + 1
	}

	if err := applySideEffects(ctx, deps, in, out); err != nil {
		return out, err
	}
	if deps.Nudge != nil {
		deps.Nudge()
	}
	return out, nil
}

func applySideEffects(ctx context.Context, deps Deps, in Input, out Outcome) error {
	if deps.TaskStore != nil {
		if err := deps.TaskStore.SetCumulativeAttempts(ctx, in.Task.ID, out.NewCumulative); err != nil {
			return err
		}
		comment := out.EnrichedReason
		if len(comment) > maxCommentLength {
			comment = comment[:maxCommentLength]
		}
		deps.TaskStore.Comment(ctx, in.Task.ID, comment)
	}

	if in.FailureType != ReviewRejection && deps.Archive != nil {
		deps.Archive.ArchiveSession(model.Session{
			TaskID:        in.Task.ID,
			Attempt:       out.NewCumulative,
			Status:        model.SessionFailed,
			FailureReason: out.EnrichedReason,
			Branch:        in.Slot.Branch,
		})
	}

	applyCleanup(ctx, deps, in, out)

	if deps.Bus != nil {
		failed := events.New(in.Project.ID, in.Task.ID, model.EventTaskFailed)
		failed = events.WithData(failed, "failureType", string(in.FailureType))
		failed = events.WithData(failed, "reason", out.EnrichedReason)
		deps.Bus.Emit(failed)

		deps.Bus.Emit(events.New(in.Project.ID, in.Task.ID, followUpKind(out.Action)))
	}

	switch out.Action {
	case ActionBlock:
		reason := in.BlockReasonLabel
		if reason == "" {
			reason = "Coding Failure"
		}
		if deps.TaskStore != nil {
			deps.TaskStore.Update(ctx, in.Task.ID, map[string]any{
				"status":      model.TaskBlocked,
				"blockReason": reason,
				"assignee":    "",
			})
		}
	case ActionDemote:
		if deps.TaskStore != nil {
			deps.TaskStore.Update(ctx, in.Task.ID, map[string]any{
				"status":   model.TaskOpen,
				"priority": out.NewPriority,
				"assignee": "",
			})
		}
	case ActionRequeue, ActionInfraRetry:
		if deps.TaskStore != nil {
			deps.TaskStore.Update(ctx, in.Task.ID, map[string]any{
				"status":   model.TaskOpen,
				"assignee": "",
			})
		}
	}
	return nil
}

// applyCleanup removes worktree/branch state per the project's git
// working mode, per spec §4.5.6: in worktree mode the worktree is always
// removed, and the branch is deleted only when the task is demoted or
// blocked (a plain requeue or infra retry keeps the branch so the next
// attempt can resume it); in branches mode the repo is always reverted to
// main, which inherently deletes the branch every time.
func applyCleanup(ctx context.Context, deps Deps, in Input, out Outcome) {
	if deps.Git == nil {
		return
	}
	if in.Project.Settings.GitWorkingMode == model.GitModeBranches {
		deps.Git.RevertAndReturnToMain(ctx, in.Project.RepoPath, in.Slot.Branch)
		return
	}
	deleteBranch := out.Action == ActionDemote || out.Action == ActionBlock
	deps.Git.RemoveWorktree(ctx, in.Project.RepoPath, in.Task.ID, deleteBranch)
}

func followUpKind(action Action) model.EventKind {
	switch action {
	case ActionBlock:
		return model.EventTaskBlocked
	case ActionDemote:
		return model.EventTaskDemoted
	default:
		return model.EventTaskRequeued
	}
}
