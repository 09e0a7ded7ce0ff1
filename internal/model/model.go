// Package model holds the shared entity types of the execution core:
// Project, Task, Slot, Session, Worktree, MergeJob and Event. These are
// plain data structures; behavior lives in the component packages that
// operate on them.
package model

import "time"

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in_progress"
	TaskInReview   TaskStatus = "in_review"
	TaskBlocked    TaskStatus = "blocked"
	TaskClosed     TaskStatus = "closed"
)

// GitWorkingMode selects how the core isolates in-flight coding attempts.
type GitWorkingMode string

const (
	GitModeWorktree GitWorkingMode = "worktree"
	GitModeBranches GitWorkingMode = "branches"
)

// MaxPriority is the lowest-urgency priority value; priority 0 is highest.
const MaxPriority = 4

// BackoffThreshold is the number of cumulative failures between demotions.
const BackoffThreshold = 5

// Task is a unit of work tracked in the external Task Store.
type Task struct {
	ID                 string
	Title              string
	Status             TaskStatus
	Priority           int
	Labels             []string
	CumulativeAttempts int
	EpicID             string
	LastExecSummary    string
	BlockReason        string
	ConflictFiles      []string
	Assignee           string
	CreatedAt          time.Time
}

// SlotPhase is the phase of work a Slot is currently in.
type SlotPhase string

const (
	PhaseCoding SlotPhase = "coding"
	PhaseReview SlotPhase = "review"
	PhaseMerge  SlotPhase = "merge"
)

// PhaseResult carries the outcome of a coding attempt forward to review/merge.
type PhaseResult struct {
	Diff        string
	Summary     string
	TestResults string
	TestOutput  string
}

// AgentState tracks the running agent subprocess bound to a Slot.
type AgentState struct {
	OutputLog       []byte
	StartedAt       time.Time
	InactivityKill  bool
	KilledByTimeout bool
}

// Slot is the runtime execution context owned by the Scheduler for one task.
type Slot struct {
	TaskID              string
	Attempt             int
	Phase               SlotPhase
	InfraRetries        int
	WorktreePath        string
	Branch              string
	UseExistingBranch   bool
	Result              PhaseResult
	Agent               AgentState
}

// SessionStatus is the terminal outcome of an archived attempt.
type SessionStatus string

const (
	SessionApproved SessionStatus = "approved"
	SessionFailed   SessionStatus = "failed"
)

// Session is the immutable archived record of one attempt.
type Session struct {
	TaskID        string
	Attempt       int
	AgentType     string
	Model         string
	StartedAt     time.Time
	EndedAt       time.Time
	Status        SessionStatus
	OutputLog     string
	Branch        string
	Diff          string
	TestResults   string
	FailureReason string
	Summary       string
}

// Worktree is an isolated git checkout dedicated to one task branch.
type Worktree struct {
	Path          string
	Branch        string
	HeartbeatPath string
}

// MergeJobKind distinguishes the variants the Merge Queue processes.
type MergeJobKind string

const (
	JobRebaseBeforeMerge MergeJobKind = "rebase_before_merge"
	JobWorktreeMerge     MergeJobKind = "worktree_merge"
	JobPush              MergeJobKind = "push"
)

// MergeJob is a single element processed by the Merge Queue.
type MergeJob struct {
	Kind         MergeJobKind
	RepoPath     string
	WorktreePath string
	Branch       string
	TaskID       string
	TaskTitle    string
}

// EventKind identifies the category of an Event.
type EventKind string

const (
	EventTransition      EventKind = "transition"
	EventAgentSpawned    EventKind = "agent.spawned"
	EventAgentCompleted  EventKind = "agent.completed"
	EventTaskFailed      EventKind = "task.failed"
	EventTaskRequeued    EventKind = "task.requeued"
	EventTaskDemoted     EventKind = "task.demoted"
	EventTaskBlocked     EventKind = "task.blocked"
	EventTaskCompleted   EventKind = "task.completed"
	EventMergeFailed     EventKind = "merge.failed"
	EventPushSucceeded   EventKind = "push.succeeded"
	EventPushFailed      EventKind = "push.failed"
	EventNotificationAdd EventKind = "notification.added"
)

// Event is an append-only record of something that happened in a project.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ProjectID string         `json:"projectId"`
	TaskID    string         `json:"taskId,omitempty"`
	Kind      EventKind      `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// ProjectSettings is the settings snapshot the core reads from ProjectService.
type ProjectSettings struct {
	SimpleComplexityAgent  string
	ComplexComplexityAgent string
	GitWorkingMode         GitWorkingMode
	TestCommand            string
	DeploymentTargets      []string
	UnknownScopeStrategy   string
	Concurrency            int
}

// Project is the configuration container the core references by identifier.
type Project struct {
	ID       string
	RepoPath string
	Settings ProjectSettings
}
