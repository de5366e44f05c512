package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/patchbot/internal/core/branch"
	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/primary"
	"github.com/example/patchbot/internal/ports/secondary"
)

// OrchestratorConfig carries the fixed pipeline parameters.
type OrchestratorConfig struct {
	BaseBranch        string
	AgentMaxTurns     int
	ProgressInterval  time.Duration
	DeployInterval    time.Duration
	DeployMaxAttempts int
	PRLabels          []string

	// ImageDir is where fetched attachments land, one subdirectory per
	// job.
	ImageDir string
}

// OrchestratorService drives the fixed stage sequence for one job:
// ContextFetch, RepoInit, ImageFetch, AgentRun, ChangeDetection,
// BranchCreate|BranchReuse, Commit, Push, PRCreate|PRReuse, DeployWait,
// Report. Any stage failure is terminal for this attempt; the queue
// retries the whole pipeline from the top.
type OrchestratorService struct {
	repo     secondary.Repository
	agent    secondary.AgentRunner
	prHost   secondary.PullRequestHost
	notifier secondary.Notifier
	threads  primary.ThreadService

	// Optional collaborators: nil disables the corresponding stage.
	images  secondary.ImageFetcher
	deploys secondary.DeploymentWatcher
	history secondary.JobHistoryRepository

	cfg    OrchestratorConfig
	logger *log.Logger

	// wait is context-aware sleep, replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewOrchestratorService wires the pipeline. images, deploys and history
// may be nil.
func NewOrchestratorService(
	repo secondary.Repository,
	agent secondary.AgentRunner,
	prHost secondary.PullRequestHost,
	notifier secondary.Notifier,
	threads primary.ThreadService,
	images secondary.ImageFetcher,
	deploys secondary.DeploymentWatcher,
	history secondary.JobHistoryRepository,
	cfg OrchestratorConfig,
	logger *log.Logger,
) *OrchestratorService {
	if logger == nil {
		logger = log.Default()
	}
	return &OrchestratorService{
		repo:     repo,
		agent:    agent,
		prHost:   prHost,
		notifier: notifier,
		threads:  threads,
		images:   images,
		deploys:  deploys,
		history:  history,
		cfg:      cfg,
		logger:   logger,
		wait:     sleepCtx,
	}
}

// Execute runs the full pipeline for one job and returns its terminal
// result. Unexpected panics are caught here so the queue worker survives.
func (s *OrchestratorService) Execute(ctx context.Context, j *job.Job) (result *job.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("pipeline panic for job %s: %v", j.ID, r)
			s.threads.ClearActive(j.ThreadKey)
			result = &job.Result{
				Status:       job.StatusFailed,
				ErrorMessage: fmt.Sprintf("internal error: %v", r),
			}
			s.notify(ctx, j, fmt.Sprintf("Something went wrong while working on your request: %v", r))
			s.record(ctx, j, result)
		}
	}()

	s.threads.MarkActive(j.ThreadKey)

	// ContextFetch: follow-ups resume from saved continuation state. A
	// follow-up without any stored context degrades to the fresh flow.
	tc := j.PriorContext
	if tc == nil && j.IsFollowUp {
		if stored, ok := s.threads.Context(j.ThreadKey); ok {
			tc = stored
		}
	}
	followUp := j.IsFollowUp && tc != nil

	s.react(ctx, j, "eyes")
	if followUp {
		s.notify(ctx, j, fmt.Sprintf("Continuing work on %s: %s", tc.BranchName, j.Description))
	} else {
		s.notify(ctx, j, "Working on: "+j.Description)
	}

	// RepoInit
	if followUp {
		if err := s.repo.CheckoutBranch(ctx, tc.BranchName); err != nil {
			return s.fail(ctx, j, fmt.Sprintf("checking out branch %s", tc.BranchName), err, "")
		}
	} else {
		if err := s.repo.Initialize(ctx); err != nil {
			return s.fail(ctx, j, "preparing the repository", err, "")
		}
	}

	// ImageFetch
	var imagePaths []string
	if len(j.Images) > 0 && s.images != nil {
		refs := make([]secondary.ImageRef, 0, len(j.Images))
		for _, img := range j.Images {
			refs = append(refs, secondary.ImageRef{URL: img.URL, Filename: img.Filename, MimeType: img.MimeType})
		}
		paths, err := s.images.Fetch(ctx, refs, filepath.Join(s.cfg.ImageDir, j.ID))
		if err != nil {
			return s.fail(ctx, j, "fetching attached images", err, "")
		}
		imagePaths = paths
	}

	// AgentRun
	var promptCtx *job.ThreadContext
	if followUp {
		promptCtx = tc
	}
	prompt := buildPrompt(j, promptCtx, s.summarizePRs(ctx, j))

	throttle := newProgressThrottle(s.cfg.ProgressInterval, func(text string) {
		s.status(ctx, j, text)
	})
	agentRes, err := s.agent.Run(ctx, prompt, secondary.AgentRunOptions{
		RepoPath:   s.repo.Root(),
		MaxTurns:   s.cfg.AgentMaxTurns,
		OnProgress: throttle.Emit,
		ImagePaths: imagePaths,
	})
	if err != nil {
		return s.fail(ctx, j, "running the coding agent", err, "")
	}
	if !agentRes.Success {
		return s.fail(ctx, j, "running the coding agent", fmt.Errorf("%s", agentRes.ErrorMessage), "")
	}

	// ChangeDetection: inspect the actual tree instead of trusting the
	// agent's self-report; the two diverge when an edit the agent
	// believed in was rejected downstream.
	st, err := s.repo.Status(ctx)
	if err != nil {
		return s.fail(ctx, j, "inspecting the working tree", err, "")
	}
	if st.Empty() {
		// A clean tree is a success outcome, not a failure: nothing to
		// branch, commit or open.
		if followUp {
			s.threads.MarkCompleted(j.ThreadKey, tc)
		} else {
			s.threads.MarkCompleted(j.ThreadKey, nil)
		}
		result = &job.Result{Status: job.StatusCompleted}
		msg := "No changes were needed."
		if agentRes.Analysis != "" {
			msg += "\n\n" + agentRes.Analysis
		}
		s.notify(ctx, j, msg)
		s.record(ctx, j, result)
		return result
	}
	files := st.Files()

	// BranchCreate or BranchReuse
	var branchName string
	if followUp {
		branchName = tc.BranchName
	} else {
		branchName = branch.Name(j.Description)
		if err := s.repo.CreateBranch(ctx, branchName, s.cfg.BaseBranch); err != nil {
			return s.fail(ctx, j, fmt.Sprintf("creating branch %s", branchName), err, "")
		}
	}

	// Commit
	if _, err := s.repo.Commit(ctx, commitMessage(j), files); err != nil {
		return s.fail(ctx, j, "committing changes", err,
			fmt.Sprintf("Branch %s was created and is left in place.", branchName))
	}

	// Push
	if err := s.repo.Push(ctx, branchName); err != nil {
		return s.fail(ctx, j, fmt.Sprintf("pushing branch %s", branchName), err,
			fmt.Sprintf("The commit exists locally on %s; push it manually to resume.", branchName))
	}

	// PRCreate or PRReuse. Reuse covers two cases: a follow-up continuing
	// on the thread's PR, and a retry whose previous attempt already
	// opened a PR for this branch before failing.
	var prURL string
	var prNumber int
	if followUp && tc.PRURL != "" {
		prURL = tc.PRURL
		prNumber = tc.PRNumber
	} else {
		existing, err := s.prHost.FindOpen(ctx, branchName)
		if err != nil {
			// Lookup failures degrade to a create attempt.
			s.logger.Printf("job %s: failed to look up existing PR for %s: %v", j.ID, branchName, err)
		}
		if existing != nil {
			prURL = existing.URL
			prNumber = existing.Number
		} else {
			pr, err := s.prHost.CreatePullRequest(ctx, branchName, commitMessage(j), prBody(j, agentRes.Analysis, files))
			if err != nil {
				return s.fail(ctx, j, "opening the pull request", err,
					fmt.Sprintf("Branch %s was pushed and is left in place.", branchName))
			}
			prURL = pr.URL
			prNumber = pr.Number
			if len(s.cfg.PRLabels) > 0 {
				if err := s.prHost.AddLabels(ctx, pr.Number, s.cfg.PRLabels); err != nil {
					s.logger.Printf("job %s: failed to add labels to PR #%d: %v", j.ID, pr.Number, err)
				}
			}
		}
	}

	// DeployWait: bounded poll, the only busy-wait in the system. Running
	// out of attempts is not a failure; a watcher error is.
	previewURL, err := s.waitForPreview(ctx, j, branchName)
	if err != nil {
		return s.fail(ctx, j, "checking the preview deployment", err,
			fmt.Sprintf("Branch %s and %s exist; only the preview check failed.", branchName, prURL))
	}

	// Report
	original := j.Description
	if followUp {
		original = tc.OriginalRequest
	}
	s.threads.MarkCompleted(j.ThreadKey, &job.ThreadContext{
		BranchName:      branchName,
		PRNumber:        prNumber,
		PRURL:           prURL,
		OriginalRequest: original,
		FilesChanged:    files,
	})

	result = &job.Result{
		Status:       job.StatusCompleted,
		BranchName:   branchName,
		PRURL:        prURL,
		PreviewURL:   previewURL,
		FilesChanged: files,
	}
	s.notify(ctx, j, completionMessage(result, followUp))
	s.react(ctx, j, "white_check_mark")
	s.record(ctx, j, result)
	return result
}

// fail releases the thread's active claim, posts a stage-specific message
// and returns the terminal failure. partial names external state already
// mutated (a pushed branch, an open PR) so a human can resume manually.
func (s *OrchestratorService) fail(ctx context.Context, j *job.Job, stage string, err error, partial string) *job.Result {
	s.threads.ClearActive(j.ThreadKey)

	msg := fmt.Sprintf("Failed while %s: %v", stage, err)
	if partial != "" {
		msg += "\n" + partial
	}
	s.logger.Printf("job %s: %s", j.ID, msg)
	s.notify(ctx, j, msg)
	s.react(ctx, j, "x")

	result := &job.Result{
		Status:       job.StatusFailed,
		ErrorMessage: fmt.Sprintf("%s: %v", stage, err),
		Permanent:    job.IsConfiguration(err),
	}
	s.record(ctx, j, result)
	return result
}

// summarizePRs resolves referenced pull requests into prompt snippets.
// Failures here degrade the prompt, not the job.
func (s *OrchestratorService) summarizePRs(ctx context.Context, j *job.Job) []string {
	var out []string
	for _, ref := range j.PRRefs {
		summary, err := s.prHost.Summarize(ctx, ref.Owner, ref.Repo, ref.Number)
		if err != nil {
			s.logger.Printf("job %s: failed to summarize %s/%s#%d: %v", j.ID, ref.Owner, ref.Repo, ref.Number, err)
			continue
		}
		out = append(out, summary)
	}
	return out
}

func (s *OrchestratorService) waitForPreview(ctx context.Context, j *job.Job, branchName string) (string, error) {
	if s.deploys == nil {
		return "", nil
	}
	for attempt := 0; attempt < s.cfg.DeployMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, s.cfg.DeployInterval); err != nil {
				return "", err
			}
		}
		url, ready, err := s.deploys.CheckPreview(ctx, branchName)
		if err != nil {
			return "", err
		}
		if ready {
			return url, nil
		}
	}
	s.logger.Printf("job %s: preview for %s not ready after %d checks", j.ID, branchName, s.cfg.DeployMaxAttempts)
	return "", nil
}

func completionMessage(r *job.Result, followUp bool) string {
	var b strings.Builder
	if followUp {
		b.WriteString("Done. The follow-up changes are on the existing pull request.\n")
	} else {
		b.WriteString("Done.\n")
	}
	fmt.Fprintf(&b, "Branch: %s\n", r.BranchName)
	if r.PRURL != "" {
		fmt.Fprintf(&b, "Pull request: %s\n", r.PRURL)
	}
	if r.PreviewURL != "" {
		fmt.Fprintf(&b, "Preview: %s\n", r.PreviewURL)
	}
	fmt.Fprintf(&b, "Files changed: %d", len(r.FilesChanged))
	return b.String()
}

// notify posts a message best-effort; the notifier must never fail a job.
func (s *OrchestratorService) notify(ctx context.Context, j *job.Job, text string) {
	if err := s.notifier.PostMessage(ctx, j.ChannelID, j.ThreadKey, text); err != nil {
		s.logger.Printf("job %s: notifier post failed: %v", j.ID, err)
	}
}

func (s *OrchestratorService) status(ctx context.Context, j *job.Job, text string) {
	if err := s.notifier.UpdateStatus(ctx, j.ChannelID, j.ThreadKey, text); err != nil {
		s.logger.Printf("job %s: notifier update failed: %v", j.ID, err)
	}
}

func (s *OrchestratorService) react(ctx context.Context, j *job.Job, emoji string) {
	if j.MessageID == "" {
		return
	}
	if err := s.notifier.AddReaction(ctx, j.ChannelID, j.MessageID, emoji); err != nil {
		s.logger.Printf("job %s: notifier reaction failed: %v", j.ID, err)
	}
}

func (s *OrchestratorService) record(ctx context.Context, j *job.Job, r *job.Result) {
	if s.history == nil {
		return
	}
	rec := &secondary.JobHistoryRecord{
		ID:           j.ID,
		ThreadKey:    j.ThreadKey,
		Description:  j.Description,
		Status:       string(r.Status),
		BranchName:   r.BranchName,
		PRURL:        r.PRURL,
		PreviewURL:   r.PreviewURL,
		ErrorMessage: r.ErrorMessage,
		FilesChanged: len(r.FilesChanged),
		Retries:      j.RetryCount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.history.Record(ctx, rec); err != nil {
		s.logger.Printf("job %s: failed to record history: %v", j.ID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
