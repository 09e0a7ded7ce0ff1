package merge

import (
	"context"
	"testing"

	"github.com/opensprint/core/internal/collab"
	"github.com/opensprint/core/internal/events"
	"github.com/opensprint/core/internal/gitops"
	"github.com/opensprint/core/internal/mergequeue"
	"github.com/opensprint/core/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeTaskStore struct {
	collab.TaskStore
	updates       []map[string]any
	closed        bool
	conflictFiles []string
}

func (f *fakeTaskStore) Update(ctx context.Context, taskID string, fields map[string]any) error {
	f.updates = append(f.updates, fields)
	return nil
}
func (f *fakeTaskStore) Close(ctx context.Context, taskID, summary string) error {
	f.closed = true
	return nil
}
func (f *fakeTaskStore) SetCumulativeAttempts(ctx context.Context, taskID string, n int) error {
	return nil
}
func (f *fakeTaskStore) SetConflictFiles(ctx context.Context, taskID string, files []string) error {
	f.conflictFiles = files
	return nil
}

type fakeArchive struct{ sessions []model.Session }

func (f *fakeArchive) ArchiveSession(sess model.Session) error {
	f.sessions = append(f.sessions, sess)
	return nil
}

// S5: merge conflict on a non-infra file reopens the task.
func TestMergeConflictReopensTask(t *testing.T) {
	ts := &fakeTaskStore{}
	ar := &fakeArchive{}
	bus, _ := events.NewBus("")
	q := mergequeue.New(func(ctx context.Context, job model.MergeJob) error {
		return &gitops.MergeConflict{Files: []string{"src/x.ts"}}
	}, 4)
	defer q.Close()

	deps := NewDeps(ts, ar, bus, q, nil, nil)
	err := PerformMergeAndDone(context.Background(), deps, Input{
		Project: model.Project{ID: "p1", RepoPath: t.TempDir()},
		Task:    model.Task{ID: "t5", Title: "fix x"},
		Branch:  "opensprint/t5",
	})
	require.NoError(t, err)
	require.False(t, ts.closed)
	require.Equal(t, []string{"src/x.ts"}, ts.conflictFiles)
	require.Equal(t, model.TaskOpen, ts.updates[len(ts.updates)-1]["status"])
	require.Len(t, ar.sessions, 1)
	require.Equal(t, model.SessionFailed, ar.sessions[0].Status)
}

func TestMergeFailureBlocksAtThreshold(t *testing.T) {
	ts := &fakeTaskStore{}
	ar := &fakeArchive{}
	bus, _ := events.NewBus("")
	q := mergequeue.New(func(ctx context.Context, job model.MergeJob) error {
		return &gitops.MergeConflict{Files: []string{"src/x.ts"}}
	}, 4)
	defer q.Close()

	deps := NewDeps(ts, ar, bus, q, nil, nil)
	err := PerformMergeAndDone(context.Background(), deps, Input{
		Project: model.Project{ID: "p1", RepoPath: t.TempDir()},
		Task:    model.Task{ID: "t5", Title: "fix x", CumulativeAttempts: 2*model.BackoffThreshold - 1},
		Branch:  "opensprint/t5",
	})
	require.NoError(t, err)
	require.Equal(t, model.TaskBlocked, ts.updates[len(ts.updates)-1]["status"])
	require.Equal(t, "Merge Failure", ts.updates[len(ts.updates)-1]["blockReason"])
}

func TestSuccessfulMergeRegistersDeferredCleanupOnlyFlushedAfterPush(t *testing.T) {
	ts := &fakeTaskStore{}
	ar := &fakeArchive{}
	bus, _ := events.NewBus("")
	q := mergequeue.New(func(ctx context.Context, job model.MergeJob) error {
		return nil
	}, 4)
	defer q.Close()

	deps := NewDeps(ts, ar, bus, q, nil, nil)
	repo := t.TempDir()
	err := PerformMergeAndDone(context.Background(), deps, Input{
		Project: model.Project{ID: "p1", RepoPath: repo},
		Task:    model.Task{ID: "t6", Title: "add feature"},
		Branch:  "opensprint/t6",
	})
	require.NoError(t, err)
	require.True(t, ts.closed)
	require.Len(t, ar.sessions, 1)
	require.Equal(t, model.SessionApproved, ar.sessions[0].Status)

	// Cleanup is registered but not yet flushed (no push has run here
	// since PostCompletionAsync fires in its own goroutine and this repo
	// has no origin to push to, so it fails harmlessly and leaves the
	// item pending).
	require.Equal(t, 1, deps.pendingCleanup.Len())
}
