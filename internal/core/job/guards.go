package job

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// AdmitContext provides context for the inbound-event admission guard.
type AdmitContext struct {
	MessageID string
	ThreadKey string
	IsReply   bool

	// State read from the thread registry by the caller.
	MessageSeen     bool
	ThreadActive    bool
	ThreadCompleted bool
}

// CanAdmit evaluates whether an inbound event may become a job.
// Rules:
// - A message ID seen before is dropped (duplicate delivery)
// - Any event for a thread with an in-flight job is dropped: two jobs must
//   never mutate the same branch concurrently
// - A reply is admitted only as a follow-up to a thread that has completed
//   at least once; replies to unknown threads are dropped
func CanAdmit(ctx AdmitContext) GuardResult {
	// Rule 1: duplicate delivery
	if ctx.MessageSeen {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("message %s was already processed", ctx.MessageID),
		}
	}

	// Rule 2: thread already has an in-flight job
	if ctx.ThreadActive {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("thread %s already has a job in flight", ctx.ThreadKey),
		}
	}

	// Rule 3: replies are follow-ups, and follow-ups need completed work
	if ctx.IsReply && !ctx.ThreadCompleted {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("thread %s has no completed work to follow up on", ctx.ThreadKey),
		}
	}

	return GuardResult{Allowed: true}
}
