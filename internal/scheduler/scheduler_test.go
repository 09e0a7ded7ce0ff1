package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/opensprint/core/internal/exhaustion"
	"github.com/opensprint/core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSchedulingOrderPriorityFIFOLexicographic(t *testing.T) {
	s := New(model.Project{ID: "p1"}, Deps{})
	s.Enqueue("b", 2)
	s.Enqueue("a", 2)
	s.Enqueue("z", 1)
	s.Enqueue("c", 1)

	var order []string
	for s.ready.Len() > 0 {
		slot, err := s.Admit(context.Background(), model.Task{ID: s.ready[0].taskID}, "claude", 100, false, nil)
		require.NoError(t, err)
		order = append(order, slot.TaskID)
		s.ToComplete(slot.TaskID)
	}
	require.Equal(t, []string{"z", "c", "b", "a"}, order)
}

func TestAdmitAtCapacity(t *testing.T) {
	s := New(model.Project{ID: "p1"}, Deps{})
	s.Enqueue("t1", 1)
	s.Enqueue("t2", 1)

	_, err := s.Admit(context.Background(), model.Task{ID: "t1"}, "claude", 1, false, nil)
	require.NoError(t, err)

	_, err = s.Admit(context.Background(), model.Task{ID: "t2"}, "claude", 1, false, nil)
	require.ErrorIs(t, err, ErrAtCapacity)
}

func TestAdmitNoReady(t *testing.T) {
	s := New(model.Project{ID: "p1"}, Deps{})
	_, err := s.Admit(context.Background(), model.Task{ID: "t1"}, "claude", 10, false, nil)
	require.ErrorIs(t, err, ErrNoReady)
}

func TestAdmitProviderExhausted(t *testing.T) {
	reg := exhaustion.New()
	reg.Mark("p1", "claude")
	s := New(model.Project{ID: "p1"}, Deps{Exhausted: reg})
	s.Enqueue("t1", 1)

	_, err := s.Admit(context.Background(), model.Task{ID: "t1"}, "claude", 10, false, nil)
	require.ErrorIs(t, err, ErrProviderExhausted)
}

func TestToFailRequeuesAtSamePriority(t *testing.T) {
	s := New(model.Project{ID: "p1"}, Deps{})
	s.Enqueue("t1", 3)
	slot, err := s.Admit(context.Background(), model.Task{ID: "t1"}, "claude", 10, false, nil)
	require.NoError(t, err)
	require.Equal(t, 0, s.Status().QueueDepth)

	s.ToFail(context.Background(), slot.TaskID, 3, true)
	require.Equal(t, 1, s.Status().QueueDepth)
	require.Equal(t, 0, s.ActiveCount())
}

func TestToFailBlockedDoesNotRequeue(t *testing.T) {
	s := New(model.Project{ID: "p1"}, Deps{})
	s.Enqueue("t1", 3)
	slot, err := s.Admit(context.Background(), model.Task{ID: "t1"}, "claude", 10, false, nil)
	require.NoError(t, err)

	s.ToFail(context.Background(), slot.TaskID, 3, false)
	require.Equal(t, 0, s.Status().QueueDepth)
	require.Equal(t, 1, s.Status().TotalFailed)
}

func TestRecoverOrphansIdempotent(t *testing.T) {
	s := New(model.Project{ID: "p1"}, Deps{})
	lister := &fakeLister{taskIDs: []string{"orphan-1"}}

	first := s.RecoverOrphans(context.Background(), t.TempDir(), t.TempDir(), lister)
	require.Equal(t, []string{"orphan-1"}, first)

	second := s.RecoverOrphans(context.Background(), t.TempDir(), t.TempDir(), lister)
	require.Equal(t, []string{"orphan-1"}, second)
}

type fakeLister struct{ taskIDs []string }

func (f *fakeLister) ListInProgressWithAgentAssignee(ctx context.Context, projectID string) ([]model.Task, error) {
	tasks := make([]model.Task, len(f.taskIDs))
	for i, id := range f.taskIDs {
		tasks[i] = model.Task{ID: id}
	}
	return tasks, nil
}

func TestInactivityTimerFiresWhenNotReset(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := NewInactivityTimer(10*time.Millisecond, func() { fired <- struct{}{} })
	defer timer.Stop()

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer did not fire")
	}
}

func TestInactivityTimerResetPreventsTimeout(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := NewInactivityTimer(40*time.Millisecond, func() { fired <- struct{}{} })
	defer timer.Stop()

	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		timer.Reset()
	}

	select {
	case <-fired:
		t.Fatal("timer fired despite resets")
	default:
	}
}
