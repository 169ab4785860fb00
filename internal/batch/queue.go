package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Job is one domain to hunt.
type Job struct {
	Domain string
	// Line is the 1-based input line the domain came from, zero when unknown.
	Line int
}

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan Job
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan Job, capacity)}
}

// Enqueue pushes a job or returns when ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", job.Domain, ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job. It returns ErrQueueClosed once the queue is
// closed and empty.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, fmt.Errorf("dequeue: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	}
}

// Close stops intake; queued jobs can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
