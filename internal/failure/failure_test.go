package failure

import (
	"context"
	"testing"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeTaskStore struct {
	collab.TaskStore
	updates  []map[string]any
	comments []string
}

func (f *fakeTaskStore) Update(ctx context.Context, taskID string, fields map[string]any) error {
	f.updates = append(f.updates, fields)
	return nil
}
func (f *fakeTaskStore) Comment(ctx context.Context, taskID, body string) error {
	f.comments = append(f.comments, body)
	return nil
}
func (f *fakeTaskStore) SetCumulativeAttempts(ctx context.Context, taskID string, n int) error {
	return nil
}

type fakeArchive struct{ sessions []model.Session }

func (f *fakeArchive) ArchiveSession(sess model.Session) error {
	f.sessions = append(f.sessions, sess)
	return nil
}

type fakeGitCleanup struct {
	removedWorktree bool
	deletedBranch   bool
	reverted        bool
}

func (f *fakeGitCleanup) RemoveWorktree(ctx context.Context, repo, taskID string, deleteBranch bool) error {
	f.removedWorktree = true
	f.deletedBranch = deleteBranch
	return nil
}
func (f *fakeGitCleanup) RevertAndReturnToMain(ctx context.Context, repo, branch string) error {
	f.reverted = true
	return nil
}

type fakeExhaustion struct{ marked []string }

func (f *fakeExhaustion) Mark(project, provider string) { f.marked = append(f.marked, provider) }

func newDeps() (Deps, *fakeTaskStore, *fakeArchive, *fakeGitCleanup) {
	ts := &fakeTaskStore{}
	ar := &fakeArchive{}
	gc := &fakeGitCleanup{}
	bus, _ := events.NewBus("")
	return Deps{TaskStore: ts, Archive: ar, Git: gc, Exhausted: &fakeExhaustion{}, Bus: bus}, ts, ar, gc
}

// S1: plain requeue.
func TestPlainRequeue(t *testing.T) {
	deps, ts, ar, gc := newDeps()
	task := model.Task{ID: "t1", Priority: 2, CumulativeAttempts: 1}
	out, err := Handle(context.Background(), deps, Input{
		Task: task, FailureType: CodingFailure, Reason: "boom",
		Project: model.Project{Settings: model.ProjectSettings{GitWorkingMode: model.GitModeWorktree}},
	})
	require.NoError(t, err)
	require.Equal(t, ActionRequeue, out.Action)
	require.Equal(t, 2, out.NewCumulative)
	require.Len(t, ar.sessions, 1)
	require.True(t, gc.removedWorktree)
	require.False(t, gc.deletedBranch)
	require.NotEmpty(t, ts.updates)
}

// S2: demotion at threshold.
func TestDemotionAtThreshold(t *testing.T) {
	deps, _, _, gc := newDeps()
	task := model.Task{ID: "t2", Priority: 2, CumulativeAttempts: 4}
	out, err := Handle(context.Background(), deps, Input{
		Task: task, FailureType: CodingFailure, Reason: "boom",
		Project: model.Project{Settings: model.ProjectSettings{GitWorkingMode: model.GitModeWorktree}},
	})
	require.NoError(t, err)
	require.Equal(t, ActionDemote, out.Action)
	require.Equal(t, 3, out.NewPriority)
	require.True(t, gc.deletedBranch)
}

// S3: block at max priority.
func TestBlockAtMaxPriority(t *testing.T) {
	deps, ts, _, _ := newDeps()
	task := model.Task{ID: "t3", Priority: model.MaxPriority, CumulativeAttempts: 4}
	out, err := Handle(context.Background(), deps, Input{
		Task: task, FailureType: CodingFailure, Reason: "boom",
		Project: model.Project{Settings: model.ProjectSettings{GitWorkingMode: model.GitModeWorktree}},
	})
	require.NoError(t, err)
	require.Equal(t, ActionBlock, out.Action)
	require.Equal(t, "blocked", string(ts.updates[len(ts.updates)-1]["status"].(model.TaskStatus)))
}

// S4: infrastructure retry.
func TestInfrastructureRetry(t *testing.T) {
	deps, _, _, _ := newDeps()
	task := model.Task{ID: "t4", Priority: 1, CumulativeAttempts: 3}
	slot := model.Slot{InfraRetries: 0}
	out, err := Handle(context.Background(), deps, Input{
		Task: task, Slot: slot, FailureType: Timeout, Reason: "timed out",
		Project: model.Project{Settings: model.ProjectSettings{GitWorkingMode: model.GitModeWorktree}},
	})
	require.NoError(t, err)
	require.Equal(t, ActionInfraRetry, out.Action)
	require.Equal(t, 1, out.NewInfraRetries)
	require.Equal(t, task.CumulativeAttempts, out.NewCumulative)
}

// S7: diagnosed no-result.
func TestDiagnosedNoResult(t *testing.T) {
	deps, _, _, _ := newDeps()
	task := model.Task{ID: "t7", Priority: 1, CumulativeAttempts: 0}
	slot := model.Slot{Agent: model.AgentState{OutputLog: []byte("some log\n[Agent error: 404 not a chat model]\nmore")}}
	out, err := Handle(context.Background(), deps, Input{
		Task: task, Slot: slot, FailureType: NoResult, Reason: "agent produced no result",
		Project: model.Project{Settings: model.ProjectSettings{GitWorkingMode: model.GitModeWorktree}},
	})
	require.NoError(t, err)
	require.True(t, out.Diagnosed)
	require.Equal(t, ActionBlock, out.Action)
	require.Contains(t, out.EnrichedReason, "[Agent error: 404 not a chat model]")
}

func TestEnrichReasonFallsBackToLastLines(t *testing.T) {
	log := "a\nb\n\nc\nd\ne\nf\ng\nh\ni\n"
	enriched := EnrichReason("failed", log)
	require.Contains(t, enriched, "i")
	require.Contains(t, enriched, "failed")
}

func TestBranchesModeAlwaysReverts(t *testing.T) {
	deps, _, _, gc := newDeps()
	task := model.Task{ID: "t1", Priority: 1, CumulativeAttempts: 1}
	_, err := Handle(context.Background(), deps, Input{
		Task: task, FailureType: CodingFailure, Reason: "boom",
		Project: model.Project{Settings: model.ProjectSettings{GitWorkingMode: model.GitModeBranches}},
	})
	require.NoError(t, err)
	require.True(t, gc.reverted)
	require.False(t, gc.removedWorktree)
}
