package app

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/primary"
)

// ErrDropped wraps an admission guard denial: the event is ignored, not an
// operational failure.
type ErrDropped struct {
	Reason string
}

func (e *ErrDropped) Error() string {
	return "event dropped: " + e.Reason
}

// IntakeServiceImpl applies the admission rules to inbound events and turns
// admitted events into queued jobs.
type IntakeServiceImpl struct {
	threads primary.ThreadService
	queue   primary.QueueService
	logger  *log.Logger
}

// NewIntakeService creates an intake bound to the given registry and queue.
func NewIntakeService(threads primary.ThreadService, queue primary.QueueService, logger *log.Logger) *IntakeServiceImpl {
	if logger == nil {
		logger = log.Default()
	}
	return &IntakeServiceImpl{threads: threads, queue: queue, logger: logger}
}

// Admit evaluates the admission guard against the registry, claims the
// thread, and enqueues a job for the event. Denials come back as
// *ErrDropped.
func (s *IntakeServiceImpl) Admit(ev primary.InboundEvent) (*job.Job, error) {
	if ev.MessageID == "" || ev.ThreadKey == "" {
		return nil, fmt.Errorf("event missing message ID or thread key")
	}

	guard := job.CanAdmit(job.AdmitContext{
		MessageID:       ev.MessageID,
		ThreadKey:       ev.ThreadKey,
		IsReply:         ev.IsReply,
		MessageSeen:     s.threads.Seen(ev.MessageID),
		ThreadActive:    s.threads.IsActive(ev.ThreadKey),
		ThreadCompleted: s.threads.IsCompleted(ev.ThreadKey),
	})
	if !guard.Allowed {
		return nil, &ErrDropped{Reason: guard.Reason}
	}

	s.threads.MarkSeen(ev.MessageID)

	j := &job.Job{
		ID:          uuid.NewString(),
		Description: ev.Text,
		ChannelID:   ev.ChannelID,
		ThreadKey:   ev.ThreadKey,
		MessageID:   ev.MessageID,
		IsFollowUp:  ev.IsReply,
		PRRefs:      ev.PRRefs,
		Images:      ev.Images,
	}
	if ev.IsReply {
		if tc, ok := s.threads.Context(ev.ThreadKey); ok {
			j.PriorContext = tc
		}
	}

	// Claim the thread before enqueueing so a second event arriving while
	// this job waits in the queue is rejected by the guard.
	s.threads.MarkActive(ev.ThreadKey)

	if err := s.queue.Enqueue(j); err != nil {
		s.threads.ClearActive(ev.ThreadKey)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Printf("admitted job %s for thread %s (follow-up=%v)", j.ID, j.ThreadKey, j.IsFollowUp)
	return j, nil
}
