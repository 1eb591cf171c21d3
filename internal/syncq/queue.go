// Package syncq runs store mutations one at a time, in the order they were
// queued.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

var ErrClosed = errors.New("job queue is closed")

type Func func(ctx context.Context) error

type job struct {
	id       string
	name     string
	fn       Func
	done     chan error
	queuedAt time.Time
}

// Queue is an unbounded FIFO with a single consumer. Producers never block.
type Queue struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	jobs   []*job
	closed bool
	wake   chan struct{}
}

func New(logger *slog.Logger, timeout time.Duration) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		log:     logger,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules fn and forgets about it. The returned id shows up in
// the log lines of the job.
func (q *Queue) Enqueue(name string, fn Func) string {
	j := q.push(name, fn, nil)
	if j == nil {
		return ""
	}
	return j.id
}

// Submit schedules fn and returns a channel that receives its result once.
func (q *Queue) Submit(name string, fn Func) <-chan error {
	done := make(chan error, 1)
	if q.push(name, fn, done) == nil {
		done <- ErrClosed
	}
	return done
}

// Do submits fn and waits for it or for ctx.
func (q *Queue) Do(ctx context.Context, name string, fn Func) error {
	select {
	case err := <-q.Submit(name, fn):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) push(name string, fn Func, done chan error) *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn("job dropped, queue closed", "job", name)
		return nil
	}
	j := &job{id: uuid.NewString(), name: name, fn: fn, done: done, queuedAt: time.Now()}
	q.jobs = append(q.jobs, j)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return j
}

func (q *Queue) pop() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	return j
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Run drains the queue until ctx is done. Jobs still waiting at that point
// fail with ErrClosed. Run must be called at most once.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			q.shutdown()
			return nil
		}
		if j := q.pop(); j != nil {
			q.exec(ctx, j)
			continue
		}
		select {
		case <-ctx.Done():
			q.shutdown()
			return nil
		case <-q.wake:
		}
	}
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	pending := q.jobs
	q.jobs = nil
	q.closed = true
	q.mu.Unlock()
	for _, j := range pending {
		if j.done != nil {
			j.done <- ErrClosed
		}
	}
	if len(pending) > 0 {
		q.log.Warn("job queue stopped with pending jobs", "pending", len(pending))
	}
}

func (q *Queue) exec(ctx context.Context, j *job) {
	started := time.Now()
	err := q.call(ctx, j)
	log := q.log.With("job", j.name, "job_id", j.id, "wait_ms", started.Sub(j.queuedAt).Milliseconds(), "run_ms", time.Since(started).Milliseconds())
	switch {
	case err == nil:
		log.Debug("job done")
	case rpxp.IsUserError(err):
		log.Debug("job rejected", "err", err)
	default:
		log.Error("job failed", "err", err)
	}
	if j.done != nil {
		j.done <- err
	}
}

func (q *Queue) call(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	return j.fn(ctx)
}
