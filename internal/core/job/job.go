// Package job contains the domain types for a unit of work (one user
// request to modify code) and the pure admission guards applied to inbound
// events.
package job

import "sort"

// Status is the terminal outcome of a job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PRRef identifies an external pull request mentioned in a request.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// ImageAttachment is an image referenced by the inbound event.
type ImageAttachment struct {
	URL      string
	Filename string
	MimeType string
}

// Job is one user request. Created when an inbound event is admitted,
// mutated only by the queue (retry counter), destroyed once a terminal
// result exists.
type Job struct {
	ID          string
	Description string
	ChannelID   string
	ThreadKey   string
	MessageID   string
	RetryCount  int
	IsFollowUp  bool

	// PriorContext is set only for follow-ups: the saved continuation
	// state of the thread being resumed.
	PriorContext *ThreadContext

	PRRefs []PRRef
	Images []ImageAttachment
}

// ThreadContext is the continuation state of a conversation thread: enough
// for a later reply to resume work on the branch and pull request the
// thread already produced.
type ThreadContext struct {
	BranchName      string
	PRNumber        int
	PRURL           string
	OriginalRequest string
	FilesChanged    []string
}

// Merge folds newer continuation state into a copy of c. FilesChanged is a
// set union and never shrinks; branch/PR fields are taken from other when
// set. A nil receiver returns a copy of other.
func (c *ThreadContext) Merge(other *ThreadContext) *ThreadContext {
	if c == nil {
		if other == nil {
			return nil
		}
		cp := *other
		cp.FilesChanged = append([]string(nil), other.FilesChanged...)
		return &cp
	}

	merged := *c
	merged.FilesChanged = unionFiles(c.FilesChanged, nil)
	if other == nil {
		return &merged
	}

	if other.BranchName != "" {
		merged.BranchName = other.BranchName
	}
	if other.PRNumber != 0 {
		merged.PRNumber = other.PRNumber
	}
	if other.PRURL != "" {
		merged.PRURL = other.PRURL
	}
	if merged.OriginalRequest == "" {
		merged.OriginalRequest = other.OriginalRequest
	}
	merged.FilesChanged = unionFiles(c.FilesChanged, other.FilesChanged)
	return &merged
}

func unionFiles(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, f := range a {
		set[f] = struct{}{}
	}
	for _, f := range b {
		set[f] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Result is the terminal outcome of one job.
type Result struct {
	Status       Status
	BranchName   string
	PRURL        string
	PreviewURL   string
	FilesChanged []string
	ErrorMessage string

	// Permanent marks a failure that retrying cannot fix (missing
	// credentials, bad configuration). The queue drops these without
	// consuming retries.
	Permanent bool
}

// Completed reports whether the result is a success.
func (r *Result) Completed() bool {
	return r != nil && r.Status == StatusCompleted
}
