package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/primary"
)

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("queue is stopped")

// QueueService is the ordered, single-worker job runner. Concurrency is
// fixed at one: every job mutates the same shared working copy, so jobs
// must be strictly serialized. Scaling out would require per-repository
// locking that does not exist today.
//
// Delivery is at-least-once with bounded retry: a failed job is
// re-appended to the tail (losing its original position) until its retry
// counter reaches maxRetries, then dropped and reported as exhausted.
type QueueService struct {
	orchestrator primary.Orchestrator
	maxRetries   int
	betweenJobs  time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	jobs    []*job.Job
	running bool
	stopped bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueueService creates a queue that hands each job to orchestrator.
// betweenJobs is a fixed pause between jobs so bursts do not hammer
// rate-limited collaborator APIs.
func NewQueueService(orchestrator primary.Orchestrator, maxRetries int, betweenJobs time.Duration, logger *log.Logger) *QueueService {
	if logger == nil {
		logger = log.Default()
	}
	return &QueueService{
		orchestrator: orchestrator,
		maxRetries:   maxRetries,
		betweenJobs:  betweenJobs,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Enqueue appends a job to the FIFO tail and wakes the worker.
func (q *QueueService) Enqueue(j *job.Job) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start spawns the worker goroutine. The worker is owned and supervised
// here, never fire-and-forget: one job's panic is recovered per-job and
// cannot kill the loop.
func (q *QueueService) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	go q.work(ctx)
}

// Stop cancels the worker and waits for the in-flight job to return.
func (q *QueueService) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	<-q.done
}

// Len returns the number of queued jobs.
func (q *QueueService) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Idle reports whether the queue is drained and no job is running.
func (q *QueueService) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) == 0 && !q.running
}

func (q *QueueService) work(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			j := q.pop()
			if j == nil {
				break
			}

			result := q.runOne(ctx, j)
			q.settle(j, result)
			q.setRunning(false)

			select {
			case <-ctx.Done():
				return
			case <-time.After(q.betweenJobs):
			}
		}
	}
}

func (q *QueueService) pop() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.running = true
	return j
}

func (q *QueueService) setRunning(v bool) {
	q.mu.Lock()
	q.running = v
	q.mu.Unlock()
}

// runOne executes a single job with panic isolation.
func (q *QueueService) runOne(ctx context.Context, j *job.Job) (result *job.Result) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Printf("job %s panicked: %v", j.ID, r)
			result = &job.Result{
				Status:       job.StatusFailed,
				ErrorMessage: fmt.Sprintf("internal error: %v", r),
			}
		}
	}()
	return q.orchestrator.Execute(ctx, j)
}

// settle decides what to do with a finished job: drop on success or
// permanent failure, retry otherwise until the bound is hit.
func (q *QueueService) settle(j *job.Job, result *job.Result) {
	if result == nil {
		result = &job.Result{Status: job.StatusFailed, ErrorMessage: "orchestrator returned no result"}
	}
	if result.Completed() {
		return
	}

	if result.Permanent {
		q.logger.Printf("job %s failed permanently: %s", j.ID, result.ErrorMessage)
		return
	}

	if j.RetryCount < q.maxRetries {
		j.RetryCount++
		q.mu.Lock()
		stopped := q.stopped
		if !stopped {
			q.jobs = append(q.jobs, j)
		}
		q.mu.Unlock()
		if !stopped {
			q.logger.Printf("job %s failed, retry %d/%d queued: %s", j.ID, j.RetryCount, q.maxRetries, result.ErrorMessage)
		}
		return
	}

	q.logger.Printf("job %s exhausted %d retries, dropping: %s", j.ID, q.maxRetries, result.ErrorMessage)
}
