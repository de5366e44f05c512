package app

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/example/patchbot/internal/core/job"
)

// mockOrchestrator scripts per-job outcomes and records execution order.
type mockOrchestrator struct {
	mu       sync.Mutex
	order    []string
	attempts map[string]int
	results  map[string]*job.Result
	panics   map[string]bool
}

func newMockOrchestrator() *mockOrchestrator {
	return &mockOrchestrator{
		attempts: make(map[string]int),
		results:  make(map[string]*job.Result),
		panics:   make(map[string]bool),
	}
}

func (m *mockOrchestrator) Execute(ctx context.Context, j *job.Job) *job.Result {
	m.mu.Lock()
	m.order = append(m.order, j.ID)
	m.attempts[j.ID]++
	panics := m.panics[j.ID]
	result := m.results[j.ID]
	m.mu.Unlock()

	if panics {
		panic("scripted panic")
	}
	if result != nil {
		return result
	}
	return &job.Result{Status: job.StatusCompleted}
}

func (m *mockOrchestrator) attemptCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

func (m *mockOrchestrator) executionOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// waitIdle polls until the queue drains or the deadline hits.
func waitIdle(t *testing.T, q *QueueService) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if q.Idle() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("queue did not go idle in time")
}

func TestQueueProcessesInFIFOOrder(t *testing.T) {
	orch := newMockOrchestrator()
	q := NewQueueService(orch, 2, time.Millisecond, quietLogger())
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := q.Enqueue(&job.Job{ID: id}); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", id, err)
		}
	}

	waitIdle(t, q)

	got := orch.executionOrder()
	want := []string{"job-1", "job-2", "job-3"}
	if len(got) != len(want) {
		t.Fatalf("executed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("executed %v, want %v", got, want)
		}
	}
}

func TestQueueRetriesFailedJobExactlyMaxRetriesPlusOne(t *testing.T) {
	orch := newMockOrchestrator()
	orch.results["doomed"] = &job.Result{Status: job.StatusFailed, ErrorMessage: "always fails"}

	q := NewQueueService(orch, 2, time.Millisecond, quietLogger())
	q.Start(context.Background())
	defer q.Stop()

	if err := q.Enqueue(&job.Job{ID: "doomed"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitIdle(t, q)

	if got := orch.attemptCount("doomed"); got != 3 {
		t.Errorf("attempts = %d, want 3 (maxRetries+1)", got)
	}

	// Give the worker a chance to (incorrectly) retry once more.
	time.Sleep(20 * time.Millisecond)
	if got := orch.attemptCount("doomed"); got != 3 {
		t.Errorf("job retried after exhaustion: attempts = %d", got)
	}
}

func TestQueueRetriedJobLosesItsPosition(t *testing.T) {
	orch := newMockOrchestrator()
	orch.results["flaky"] = &job.Result{Status: job.StatusFailed, ErrorMessage: "transient"}

	q := NewQueueService(orch, 1, time.Millisecond, quietLogger())
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(&job.Job{ID: "flaky"})
	q.Enqueue(&job.Job{ID: "steady"})

	waitIdle(t, q)

	got := orch.executionOrder()
	// flaky runs, fails, re-queues behind steady, runs again.
	want := []string{"flaky", "steady", "flaky"}
	if len(got) != len(want) {
		t.Fatalf("executed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("executed %v, want %v", got, want)
		}
	}
}

func TestQueuePermanentFailureIsNotRetried(t *testing.T) {
	orch := newMockOrchestrator()
	orch.results["misconfigured"] = &job.Result{
		Status:       job.StatusFailed,
		ErrorMessage: "missing credentials",
		Permanent:    true,
	}

	q := NewQueueService(orch, 2, time.Millisecond, quietLogger())
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(&job.Job{ID: "misconfigured"})
	waitIdle(t, q)

	if got := orch.attemptCount("misconfigured"); got != 1 {
		t.Errorf("permanent failure attempted %d times, want 1", got)
	}
}

func TestQueueSurvivesPanickingJob(t *testing.T) {
	orch := newMockOrchestrator()
	orch.panics["bomb"] = true

	q := NewQueueService(orch, 0, time.Millisecond, quietLogger())
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(&job.Job{ID: "bomb"})
	q.Enqueue(&job.Job{ID: "after"})

	waitIdle(t, q)

	if got := orch.attemptCount("after"); got != 1 {
		t.Errorf("job after a panic ran %d times, want 1", got)
	}
}

func TestQueueRejectsEnqueueAfterStop(t *testing.T) {
	orch := newMockOrchestrator()
	q := NewQueueService(orch, 0, time.Millisecond, quietLogger())
	q.Start(context.Background())
	q.Stop()

	if err := q.Enqueue(&job.Job{ID: "late"}); err != ErrQueueStopped {
		t.Errorf("Enqueue after Stop = %v, want ErrQueueStopped", err)
	}
}
