// Package collab declares the external collaborator contracts the
// execution core consumes (spec §6): TaskStore, ProjectService,
// AgentRunner, MergerAgent, NotificationService and Broadcast. The core's
// components depend only on these interfaces, never on a concrete
// transport, database, or UI — reference implementations live in
// internal/taskstore, internal/agentrunner, and internal/notify.
package collab

import (
	"context"
	"io"

	"github.com/opensprint/core/internal/model"
)

// TaskStore is the external system of record for tasks.
type TaskStore interface {
	Show(ctx context.Context, taskID string) (model.Task, error)
	ListAll(ctx context.Context, projectID string) ([]model.Task, error)
	Update(ctx context.Context, taskID string, fields map[string]any) error
	Comment(ctx context.Context, taskID, body string) error
	Close(ctx context.Context, taskID, summary string) error
	SetCumulativeAttempts(ctx context.Context, taskID string, n int) error
	SetConflictFiles(ctx context.Context, taskID string, files []string) error
	SetMergeStage(ctx context.Context, taskID, stage string) error
	GetCumulativeAttemptsFromIssue(ctx context.Context, taskID string) (int, error)
	ListInProgressWithAgentAssignee(ctx context.Context, projectID string) ([]model.Task, error)
}

// ProjectService resolves project identifiers to their current settings.
type ProjectService interface {
	GetProject(ctx context.Context, projectID string) (model.Project, error)
	GetSettings(ctx context.Context, projectID string) (model.ProjectSettings, error)
}

// AgentChunk is one piece of streamed agent output.
type AgentChunk struct {
	Data []byte
}

// AgentResult reports how an agent subprocess exited.
type AgentResult struct {
	ExitCode int
	Killed   bool
}

// AgentRunner spawns an agent subprocess bound to a task's coding attempt.
type AgentRunner interface {
	Spawn(ctx context.Context, cfg model.ProjectSettings, prompt, systemPrompt, cwd string, chunks chan<- AgentChunk) (AgentResult, error)
	Kill(ctx context.Context) error
}

// MergePhase identifies which stage the merger agent is being asked to
// resolve conflicts for.
type MergePhase string

const (
	PhaseRebaseBeforeMerge MergePhase = "rebase_before_merge"
	PhaseMergeToMain       MergePhase = "merge_to_main"
	PhasePushRebase        MergePhase = "push_rebase"
)

// MergerAgentRequest carries everything the merger agent needs to attempt
// conflict resolution in place.
type MergerAgentRequest struct {
	Project        string
	Cwd            string
	Config         model.ProjectSettings
	Phase          MergePhase
	Task           model.Task
	Branch         string
	ConflictFiles  []string
	TestCommand    string
}

// MergerAgent is invoked to resolve git conflicts left by the Git Toolkit.
type MergerAgent interface {
	RunMergerAgent(ctx context.Context, req MergerAgentRequest) (resolved bool, err error)
}

// NotificationService surfaces operator-facing events the core cannot
// resolve on its own.
type NotificationService interface {
	CreateApiBlocked(ctx context.Context, projectID, provider, code string) error
	CreateHilApproval(ctx context.Context, projectID, taskID, reason string) error
}

// Broadcast is a best-effort fan-out of events to external subscribers.
type Broadcast interface {
	BroadcastEvent(ctx context.Context, projectID string, e model.Event)
}

// Writer is a narrow alias used by AgentRunner implementations that tee
// subprocess output, kept here so callers don't need to import io directly
// just to satisfy this package's interfaces.
type Writer = io.Writer
