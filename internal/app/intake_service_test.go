package app

import (
	"context"
	"errors"
	"testing"

	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/primary"
)

// fakeQueue records enqueued jobs without running anything.
type fakeQueue struct {
	jobs       []*job.Job
	enqueueErr error
}

func (f *fakeQueue) Enqueue(j *job.Job) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs = append(f.jobs, j)
	return nil
}

func (f *fakeQueue) Start(ctx context.Context) {}
func (f *fakeQueue) Stop()                     {}
func (f *fakeQueue) Len() int                  { return len(f.jobs) }
func (f *fakeQueue) Idle() bool                { return true }

func newIntakeFixture() (*IntakeServiceImpl, *ThreadStore, *fakeQueue) {
	threads := NewThreadStore()
	queue := &fakeQueue{}
	return NewIntakeService(threads, queue, quietLogger()), threads, queue
}

func TestAdmitEnqueuesFreshEvent(t *testing.T) {
	intake, threads, queue := newIntakeFixture()

	j, err := intake.Admit(primary.InboundEvent{
		MessageID: "msg-1",
		ChannelID: "C1",
		ThreadKey: "C1:100.1",
		Text:      "Fix the login bug",
	})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	if j.ID == "" {
		t.Error("job has no ID")
	}
	if j.IsFollowUp {
		t.Error("top-level event admitted as follow-up")
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("queued %d jobs, want 1", len(queue.jobs))
	}
	if !threads.IsActive("C1:100.1") {
		t.Error("thread not claimed at admission")
	}
	if !threads.Seen("msg-1") {
		t.Error("message not recorded in dedup set")
	}
}

func TestAdmitDropsDuplicateMessage(t *testing.T) {
	intake, _, queue := newIntakeFixture()

	ev := primary.InboundEvent{MessageID: "msg-1", ThreadKey: "C1:100.1", Text: "Fix it"}
	if _, err := intake.Admit(ev); err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}

	// Same thread would also be active, so use a different thread to make
	// sure the dedup set alone catches the duplicate.
	ev.ThreadKey = "C1:200.2"
	_, err := intake.Admit(ev)
	var dropped *ErrDropped
	if !errors.As(err, &dropped) {
		t.Fatalf("duplicate Admit = %v, want ErrDropped", err)
	}
	if len(queue.jobs) != 1 {
		t.Errorf("queued %d jobs, want 1", len(queue.jobs))
	}
}

func TestAdmitDropsSecondJobForActiveThread(t *testing.T) {
	intake, _, queue := newIntakeFixture()

	if _, err := intake.Admit(primary.InboundEvent{MessageID: "msg-1", ThreadKey: "C1:100.1", Text: "Fix it"}); err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}

	_, err := intake.Admit(primary.InboundEvent{MessageID: "msg-2", ThreadKey: "C1:100.1", Text: "Fix it again"})
	var dropped *ErrDropped
	if !errors.As(err, &dropped) {
		t.Fatalf("second Admit = %v, want ErrDropped", err)
	}
	if len(queue.jobs) != 1 {
		t.Errorf("queued %d jobs, want 1", len(queue.jobs))
	}
}

func TestAdmitReplyToCompletedThreadBecomesFollowUp(t *testing.T) {
	intake, threads, queue := newIntakeFixture()

	prior := &job.ThreadContext{BranchName: "fix/x", FilesChanged: []string{"a.ts"}}
	threads.MarkCompleted("C1:100.1", prior)

	j, err := intake.Admit(primary.InboundEvent{
		MessageID: "msg-2",
		ThreadKey: "C1:100.1",
		IsReply:   true,
		Text:      "Also handle the empty case",
	})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	if !j.IsFollowUp {
		t.Error("reply to completed thread not marked follow-up")
	}
	if j.PriorContext == nil || j.PriorContext.BranchName != "fix/x" {
		t.Errorf("prior context = %+v", j.PriorContext)
	}
	if len(queue.jobs) != 1 {
		t.Errorf("queued %d jobs, want 1", len(queue.jobs))
	}
}

func TestAdmitDropsReplyToUnknownThread(t *testing.T) {
	intake, _, queue := newIntakeFixture()

	_, err := intake.Admit(primary.InboundEvent{
		MessageID: "msg-1",
		ThreadKey: "C1:999.9",
		IsReply:   true,
		Text:      "And another thing",
	})
	var dropped *ErrDropped
	if !errors.As(err, &dropped) {
		t.Fatalf("Admit = %v, want ErrDropped", err)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("queued %d jobs, want 0", len(queue.jobs))
	}
}

func TestAdmitReleasesClaimWhenEnqueueFails(t *testing.T) {
	intake, threads, queue := newIntakeFixture()
	queue.enqueueErr = ErrQueueStopped

	_, err := intake.Admit(primary.InboundEvent{MessageID: "msg-1", ThreadKey: "C1:100.1", Text: "Fix it"})
	if err == nil {
		t.Fatal("Admit succeeded with a stopped queue")
	}
	if threads.IsActive("C1:100.1") {
		t.Error("failed admission left the thread claimed")
	}
}
