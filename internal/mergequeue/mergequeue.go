// Package mergequeue implements the Merge Queue (C3): a FIFO channel
// processed by a single worker goroutine. The runtime sends it only
// worktree merges; pushes to origin (which also rebase and squash main)
// run outside the queue, in the Merge Coordinator's PostCompletionAsync,
// and are serialized against merges only by gitops.WithRepoLock.
//
// Grounded in the ShayCichocki-Alphie MergeQueue (buffered request channel,
// per-request result channel, single worker() goroutine draining the
// channel in arrival order) generalized from that repo's semantic-merge
// pipeline to this spec's worktree_merge jobs, and
// combined with the teacher's git.MergeManager mutex-serialized git
// operations for the actual rebase/merge/push work a Job performs.
package mergequeue

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensprint/core/internal/model"
)

// Stage identifies which step of a Job failed, for JobFailed.
type Stage string

const (
	StageRebaseBeforeMerge Stage = "rebase_before_merge"
	StageMergeToMain       Stage = "merge_to_main"
	StagePushRebase        Stage = "push_rebase"
)

// JobFailed is the generic failure taxonomy member for a Merge Job that
// failed for a reason other than a conflict (e.g. a git command error).
type JobFailed struct {
	Stage  Stage
	Reason string
	Files  []string
}

func (e *JobFailed) Error() string {
	return fmt.Sprintf("merge job failed at %s: %s", e.Stage, e.Reason)
}

// Processor executes one Job and returns nil on success or a typed error
// (*gitops.RebaseConflict, *gitops.MergeConflict, or *JobFailed). The
// Merge Coordinator supplies the concrete processor; the queue itself only
// guarantees ordering and single-writer execution.
type Processor func(ctx context.Context, job model.MergeJob) error

type request struct {
	ctx    context.Context
	job    model.MergeJob
	result chan error
}

// Queue is a single-worker FIFO for one repository's Merge Jobs.
type Queue struct {
	process Processor
	jobs    chan request

	mu      sync.Mutex
	idle    chan struct{}
	pending int

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Queue with the given processor and buffer capacity.
func New(processor Processor, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	q := &Queue{
		process: processor,
		jobs:    make(chan request, capacity),
		idle:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	close(q.idle) // starts idle
	go q.worker()
	return q
}

func (q *Queue) worker() {
	for req := range q.jobs {
		err := q.process(req.ctx, req.job)
		req.result <- err

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			close(q.idle)
		}
		q.mu.Unlock()
	}
	close(q.done)
}

// EnqueueAndWait places job at the tail of the FIFO and blocks until it
// commits or fails, returning the processor's error (if any). The queue —
// not the caller's call stack — is the canonical ordering authority.
func (q *Queue) EnqueueAndWait(ctx context.Context, job model.MergeJob) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
	q.mu.Unlock()

	req := request{ctx: ctx, job: job, result: make(chan error, 1)}
	q.jobs <- req

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until the queue has no jobs in flight or waiting.
func (q *Queue) Drain() {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	<-idle
}

// Depth returns the number of jobs enqueued but not yet processed,
// including the one currently in flight. Used by the runtime's Prometheus
// gauge; not required by the merge pipeline itself.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close stops accepting new jobs once the current backlog drains, and
// waits for the worker goroutine to exit.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.jobs) })
	<-q.done
}
