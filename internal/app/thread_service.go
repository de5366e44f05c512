// Package app contains the application services: the job queue, the
// pipeline orchestrator, the thread registry and the event intake.
package app

import (
	"sync"

	"github.com/example/patchbot/internal/core/job"
)

// ThreadStore is the process-wide registry of admitted message IDs,
// active/completed threads and saved continuation contexts. All state is
// in-memory and lost on restart. The dedup set is never evicted; bounded
// memory is an explicit non-goal.
//
// A thread key is a member of at most one of {active, completed} at any
// time.
type ThreadStore struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	active    map[string]struct{}
	completed map[string]struct{}
	contexts  map[string]*job.ThreadContext
}

// NewThreadStore creates an empty registry.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		seen:      make(map[string]struct{}),
		active:    make(map[string]struct{}),
		completed: make(map[string]struct{}),
		contexts:  make(map[string]*job.ThreadContext),
	}
}

// Seen reports whether a message ID was admitted before.
func (s *ThreadStore) Seen(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[messageID]
	return ok
}

// MarkSeen records a message ID in the dedup set.
func (s *ThreadStore) MarkSeen(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[messageID] = struct{}{}
}

// IsActive reports whether the thread has a job in flight.
func (s *ThreadStore) IsActive(threadKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[threadKey]
	return ok
}

// IsCompleted reports whether the thread completed at least once.
func (s *ThreadStore) IsCompleted(threadKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[threadKey]
	return ok
}

// MarkActive claims the thread for an in-flight job. A previously
// completed thread leaves the completed set while its follow-up runs; its
// stored context is kept.
func (s *ThreadStore) MarkActive(threadKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.completed, threadKey)
	s.active[threadKey] = struct{}{}
}

// ClearActive releases the claim without marking completion, so the same
// thread can be retried after a failure. A thread that completed before
// (it has a stored context) returns to the completed set: a failed
// follow-up must not lock the thread out of further replies.
func (s *ThreadStore) ClearActive(threadKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, threadKey)
	if _, ok := s.contexts[threadKey]; ok {
		s.completed[threadKey] = struct{}{}
	}
}

// MarkCompleted releases the claim and marks the thread completed. A
// non-nil ctx is merged into any stored context: FilesChanged grows as a
// set union and never shrinks.
func (s *ThreadStore) MarkCompleted(threadKey string, ctx *job.ThreadContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, threadKey)
	s.completed[threadKey] = struct{}{}
	if ctx != nil {
		s.contexts[threadKey] = s.contexts[threadKey].Merge(ctx)
	}
}

// Context returns the stored continuation context for the thread, if any.
func (s *ThreadStore) Context(threadKey string) (*job.ThreadContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.contexts[threadKey]
	return ctx, ok
}
