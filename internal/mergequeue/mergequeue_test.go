package mergequeue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensprint/core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAndWaitReturnsProcessorError(t *testing.T) {
	q := New(func(ctx context.Context, job model.MergeJob) error {
		return &JobFailed{Stage: StageMergeToMain, Reason: "boom"}
	}, 4)
	defer q.Close()

	err := q.EnqueueAndWait(context.Background(), model.MergeJob{Kind: model.JobWorktreeMerge, TaskID: "t1"})
	require.Error(t, err)
	var jf *JobFailed
	require.ErrorAs(t, err, &jf)
	require.Equal(t, StageMergeToMain, jf.Stage)
}

func TestSingleWriterOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var inFlight int
	var maxInFlight int

	q := New(func(ctx context.Context, job model.MergeJob) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		order = append(order, job.TaskID)
		inFlight--
		mu.Unlock()
		return nil
	}, 8)
	defer q.Close()

	var wg sync.WaitGroup
	ids := []string{"t1", "t2", "t3", "t4"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			require.NoError(t, q.EnqueueAndWait(context.Background(), model.MergeJob{TaskID: id}))
		}(id)
		time.Sleep(time.Millisecond) // preserve submission order
	}
	wg.Wait()

	require.Equal(t, ids, order)
	require.Equal(t, 1, maxInFlight, "at most one Merge Job executes at a time")
}

func TestDrainBlocksUntilIdle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := New(func(ctx context.Context, job model.MergeJob) error {
		close(started)
		<-release
		return nil
	}, 4)
	defer q.Close()

	go q.EnqueueAndWait(context.Background(), model.MergeJob{TaskID: "t1"})
	<-started

	drained := make(chan struct{})
	go func() {
		q.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned before job finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-drained
}
