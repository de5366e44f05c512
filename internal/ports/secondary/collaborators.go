// Package secondary defines the outbound collaborator interfaces the
// pipeline drives: the working-copy repository, the coding agent, the pull
// request host, the notifier, and the supporting fetchers and stores.
// Adapters implement these; services depend only on the interfaces.
package secondary

import (
	"context"
	"time"
)

// RepoStatus is the parsed working-tree state of the repository.
type RepoStatus struct {
	Modified  []string
	Created   []string
	Untracked []string
}

// Files returns the union of all changed paths.
func (s *RepoStatus) Files() []string {
	out := make([]string, 0, len(s.Modified)+len(s.Created)+len(s.Untracked))
	out = append(out, s.Modified...)
	out = append(out, s.Created...)
	out = append(out, s.Untracked...)
	return out
}

// Empty reports whether the working tree has no changes at all.
func (s *RepoStatus) Empty() bool {
	return len(s.Modified) == 0 && len(s.Created) == 0 && len(s.Untracked) == 0
}

// Repository is the shared working copy every job mutates. All operations
// assume the queue's single-worker guarantee: no two jobs touch the
// repository concurrently.
type Repository interface {
	// Initialize resets the working copy onto the base branch, discarding
	// leftovers from previous runs.
	Initialize(ctx context.Context) error

	// CheckoutBranch checks out an existing branch by name, falling back
	// to creating a local tracking branch from the remote ref.
	CheckoutBranch(ctx context.Context, name string) error

	// CreateBranch creates name from base. Creation is idempotent: a
	// pre-existing local branch of the same name is deleted first so a
	// retried pipeline does not trip over leftover state.
	CreateBranch(ctx context.Context, name, base string) error

	// Status reports the actual working-tree state.
	Status(ctx context.Context) (*RepoStatus, error)

	// Commit stages the given files and commits them, returning the hash.
	Commit(ctx context.Context, message string, files []string) (string, error)

	// Push pushes the branch to the default remote, setting upstream.
	Push(ctx context.Context, branch string) error

	// Root returns the absolute path of the working copy.
	Root() string
}

// ProgressEvent is one phase or tool notification emitted while the agent
// runs.
type ProgressEvent struct {
	Phase  string // "starting", "thinking", "tool", "complete"
	Tool   string // tool name when Phase == "tool"
	Detail string
	Final  bool // final events bypass throttling
}

// AgentStats summarizes one agent invocation.
type AgentStats struct {
	Duration time.Duration
	CostUSD  float64
	Turns    int
}

// AgentResult is what the coding agent reports back. FilesModified is the
// agent's self-report; the pipeline verifies it against Repository.Status
// before trusting it.
type AgentResult struct {
	Success       bool
	Analysis      string
	FilesModified []string
	CommandsRun   []string
	Stats         AgentStats
	ErrorMessage  string
}

// AgentRunOptions configure one agent invocation.
type AgentRunOptions struct {
	RepoPath   string
	MaxTurns   int
	OnProgress func(ProgressEvent)

	// ImagePaths are local paths of fetched attachments, appended to the
	// prompt so the agent can read them.
	ImagePaths []string
}

// AgentRunner invokes the autonomous coding agent. The runner owns any
// timeout; the queue and pipeline impose none. The runner also enforces
// the safety policy per tool call.
type AgentRunner interface {
	Run(ctx context.Context, prompt string, opts AgentRunOptions) (*AgentResult, error)
}

// PullRequest identifies a created pull request.
type PullRequest struct {
	Number int
	URL    string
}

// PullRequestHost creates and annotates pull requests on the forge.
type PullRequestHost interface {
	CreatePullRequest(ctx context.Context, branch, title, body string) (*PullRequest, error)
	AddLabels(ctx context.Context, number int, labels []string) error

	// FindOpen returns the open pull request for the branch, or nil when
	// there is none. A retried pipeline reuses the PR its previous attempt
	// opened instead of failing to create a duplicate.
	FindOpen(ctx context.Context, branch string) (*PullRequest, error)

	// Summarize renders a short description of an external pull request
	// for inclusion in the agent prompt.
	Summarize(ctx context.Context, owner, repo string, number int) (string, error)
}

// Notifier posts status updates back to the conversation surface. All
// methods are best-effort: failures are logged by callers, never fatal.
type Notifier interface {
	PostMessage(ctx context.Context, channel, thread, text string) error
	UpdateStatus(ctx context.Context, channel, thread, text string) error
	AddReaction(ctx context.Context, channel, messageID, emoji string) error
}

// ImageRef is an attachment to fetch before the agent runs.
type ImageRef struct {
	URL      string
	Filename string
	MimeType string
}

// ImageFetcher downloads attachments into destDir and returns local paths.
type ImageFetcher interface {
	Fetch(ctx context.Context, refs []ImageRef, destDir string) ([]string, error)
}

// DeploymentWatcher checks whether a preview deployment for a branch is
// ready. The pipeline polls it with a bounded attempt count.
type DeploymentWatcher interface {
	// CheckPreview returns the preview URL once ready. ready=false with a
	// nil error means "not yet".
	CheckPreview(ctx context.Context, branch string) (url string, ready bool, err error)
}

// JobHistoryRecord is one terminal job outcome, persisted for inspection.
type JobHistoryRecord struct {
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
	CreatedAt    time.Time
}

// JobHistoryRepository persists terminal job outcomes. Queue state itself
// is never persisted; this is an audit trail only.
type JobHistoryRepository interface {
	Record(ctx context.Context, rec *JobHistoryRecord) error
	ListRecent(ctx context.Context, limit int) ([]*JobHistoryRecord, error)
}
