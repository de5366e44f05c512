// Package primary defines the inbound service interfaces: what the CLI and
// the event intake call. Implementations live in internal/app.
package primary

import (
	"context"

	"github.com/example/patchbot/internal/core/job"
)

// QueueService is the ordered, single-worker, at-least-once job runner.
type QueueService interface {
	// Enqueue appends a job to the FIFO tail. Returns an error once the
	// queue has been stopped.
	Enqueue(j *job.Job) error

	// Start spawns the worker goroutine. The worker exits when ctx is
	// cancelled.
	Start(ctx context.Context)

	// Stop cancels the worker and waits for the in-flight job to finish.
	Stop()

	// Len returns the number of queued (not yet started) jobs.
	Len() int

	// Idle reports whether the queue is empty and no job is running.
	Idle() bool
}

// Orchestrator executes the full pipeline for one job and returns its
// terminal result. It never panics across this boundary.
type Orchestrator interface {
	Execute(ctx context.Context, j *job.Job) *job.Result
}

// ThreadService is the process-wide registry of message dedup state,
// active/completed threads and saved continuation contexts.
type ThreadService interface {
	// Seen reports whether a message ID was admitted before.
	Seen(messageID string) bool

	// MarkSeen records a message ID. Entries are never evicted.
	MarkSeen(messageID string)

	// IsActive reports whether the thread has a job in flight.
	IsActive(threadKey string) bool

	// IsCompleted reports whether the thread reached a terminal success
	// at least once.
	IsCompleted(threadKey string) bool

	// MarkActive claims the thread for an in-flight job.
	MarkActive(threadKey string)

	// ClearActive releases the claim without marking completion, so the
	// thread can be retried after a failure.
	ClearActive(threadKey string)

	// MarkCompleted releases the claim, marks the thread completed and,
	// if ctx is non-nil, merges it into any stored context (files are a
	// set union, never overwritten).
	MarkCompleted(threadKey string, ctx *job.ThreadContext)

	// Context returns the stored continuation context, if any.
	Context(threadKey string) (*job.ThreadContext, bool)
}

// InboundEvent is one message from the conversation surface, already
// verified and normalized by the (out-of-scope) chat client.
type InboundEvent struct {
	MessageID string
	ChannelID string
	ThreadKey string
	IsReply   bool
	Text      string
	PRRefs    []job.PRRef
	Images    []job.ImageAttachment
}

// IntakeService applies the admission rules to inbound events and turns
// admitted events into queued jobs.
type IntakeService interface {
	// Admit builds, claims and enqueues a job for the event. A guard
	// denial is returned as ErrDropped; the caller logs and moves on.
	Admit(ev InboundEvent) (*job.Job, error)
}

// HistoryService exposes the persisted job audit trail.
type HistoryService interface {
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// HistoryEntry is one terminal job outcome.
type HistoryEntry struct {
	ID           string
	ThreadKey    string
	Description  string
	Status       string
	BranchName   string
	PRURL        string
	PreviewURL   string
	ErrorMessage string
	FilesChanged int
	Retries      int
	CreatedAt    string
}
