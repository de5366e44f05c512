package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/secondary"
)

// ============================================================================
// Mock collaborators
// ============================================================================

type mockRepository struct {
	root   string
	status *secondary.RepoStatus

	initErr     error
	checkoutErr error
	createErr   error
	statusErr   error
	commitErr   error
	pushErr     error

	initialized bool
	checkedOut  []string
	created     []string
	commits     []string
	pushes      []string
}

func newMockRepository(status *secondary.RepoStatus) *mockRepository {
	return &mockRepository{root: "/work/repo", status: status}
}

func (m *mockRepository) Initialize(ctx context.Context) error {
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *mockRepository) CheckoutBranch(ctx context.Context, name string) error {
	if m.checkoutErr != nil {
		return m.checkoutErr
	}
	m.checkedOut = append(m.checkedOut, name)
	return nil
}

func (m *mockRepository) CreateBranch(ctx context.Context, name, base string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, name)
	return nil
}

func (m *mockRepository) Status(ctx context.Context) (*secondary.RepoStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

func (m *mockRepository) Commit(ctx context.Context, message string, files []string) (string, error) {
	if m.commitErr != nil {
		return "", m.commitErr
	}
	m.commits = append(m.commits, message)
	return "abc1234", nil
}

func (m *mockRepository) Push(ctx context.Context, branch string) error {
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushes = append(m.pushes, branch)
	return nil
}

func (m *mockRepository) Root() string { return m.root }

type mockAgent struct {
	result *secondary.AgentResult
	err    error

	gotPrompt string
	gotOpts   secondary.AgentRunOptions
}

func (m *mockAgent) Run(ctx context.Context, prompt string, opts secondary.AgentRunOptions) (*secondary.AgentResult, error) {
	m.gotPrompt = prompt
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockPRHost struct {
	pr        *secondary.PullRequest
	createErr error

	// open is returned by FindOpen: a PR left by a previous attempt.
	open    *secondary.PullRequest
	findErr error

	created      []string // branches
	lookups      []string // branches
	labeled      map[int][]string
	summaries    map[string]string
	summarizeErr error
}

func newMockPRHost() *mockPRHost {
	return &mockPRHost{
		pr:        &secondary.PullRequest{Number: 7, URL: "https://github.com/acme/app/pull/7"},
		labeled:   make(map[int][]string),
		summaries: make(map[string]string),
	}
}

func (m *mockPRHost) CreatePullRequest(ctx context.Context, branch, title, body string) (*secondary.PullRequest, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, branch)
	return m.pr, nil
}

func (m *mockPRHost) FindOpen(ctx context.Context, branch string) (*secondary.PullRequest, error) {
	m.lookups = append(m.lookups, branch)
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.open, nil
}

func (m *mockPRHost) AddLabels(ctx context.Context, number int, labels []string) error {
	m.labeled[number] = append(m.labeled[number], labels...)
	return nil
}

func (m *mockPRHost) Summarize(ctx context.Context, owner, repo string, number int) (string, error) {
	if m.summarizeErr != nil {
		return "", m.summarizeErr
	}
	return m.summaries[owner+"/"+repo], nil
}

type mockNotifier struct {
	posts     []string
	statuses  []string
	reactions []string
	postErr   error
}

func (m *mockNotifier) PostMessage(ctx context.Context, channel, thread, text string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.posts = append(m.posts, text)
	return nil
}

func (m *mockNotifier) UpdateStatus(ctx context.Context, channel, thread, text string) error {
	m.statuses = append(m.statuses, text)
	return nil
}

func (m *mockNotifier) AddReaction(ctx context.Context, channel, messageID, emoji string) error {
	m.reactions = append(m.reactions, emoji)
	return nil
}

type mockWatcher struct {
	calls   int
	readyAt int // 1-based call number at which the preview is ready
	url     string
	err     error
}

func (m *mockWatcher) CheckPreview(ctx context.Context, branch string) (string, bool, error) {
	m.calls++
	if m.err != nil {
		return "", false, m.err
	}
	if m.readyAt > 0 && m.calls >= m.readyAt {
		return m.url, true, nil
	}
	return "", false, nil
}

// ============================================================================
// Fixture
// ============================================================================

type orchestratorFixture struct {
	repo     *mockRepository
	agent    *mockAgent
	prHost   *mockPRHost
	notifier *mockNotifier
	threads  *ThreadStore
	svc      *OrchestratorService
}

func newOrchestratorFixture(status *secondary.RepoStatus, agentResult *secondary.AgentResult) *orchestratorFixture {
	f := &orchestratorFixture{
		repo:     newMockRepository(status),
		agent:    &mockAgent{result: agentResult},
		prHost:   newMockPRHost(),
		notifier: &mockNotifier{},
		threads:  NewThreadStore(),
	}
	f.svc = NewOrchestratorService(
		f.repo, f.agent, f.prHost, f.notifier, f.threads,
		nil, nil, nil,
		OrchestratorConfig{
			BaseBranch:        "main",
			AgentMaxTurns:     30,
			ProgressInterval:  3 * time.Second,
			DeployInterval:    time.Millisecond,
			DeployMaxAttempts: 3,
			PRLabels:          []string{"automated"},
		},
		quietLogger(),
	)
	f.svc.wait = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func successfulAgent() *secondary.AgentResult {
	return &secondary.AgentResult{
		Success:  true,
		Analysis: "Changed the login handler.",
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestExecuteHappyPath(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"src/login.ts"}}, successfulAgent())
	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1", MessageID: "msg-1"}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if result.BranchName != "fix/login-bug" {
		t.Errorf("branch = %q, want fix/login-bug", result.BranchName)
	}
	if result.PRURL != "https://github.com/acme/app/pull/7" {
		t.Errorf("PR URL = %q", result.PRURL)
	}

	if !f.repo.initialized {
		t.Error("repository was not initialized")
	}
	if len(f.repo.created) != 1 || f.repo.created[0] != "fix/login-bug" {
		t.Errorf("created branches = %v", f.repo.created)
	}
	if len(f.repo.pushes) != 1 {
		t.Errorf("pushes = %v", f.repo.pushes)
	}
	if got := f.prHost.labeled[7]; len(got) != 1 || got[0] != "automated" {
		t.Errorf("labels = %v", got)
	}

	if !f.threads.IsCompleted(j.ThreadKey) || f.threads.IsActive(j.ThreadKey) {
		t.Error("thread not marked completed")
	}
	tc, ok := f.threads.Context(j.ThreadKey)
	if !ok || tc.BranchName != "fix/login-bug" || len(tc.FilesChanged) != 1 {
		t.Errorf("stored context = %+v", tc)
	}
	if tc.OriginalRequest != "Fix the login bug" {
		t.Errorf("original request = %q", tc.OriginalRequest)
	}

	if len(f.notifier.posts) == 0 || !strings.Contains(f.notifier.posts[len(f.notifier.posts)-1], "pull/7") {
		t.Errorf("final notification missing PR link: %v", f.notifier.posts)
	}
}

func TestExecuteNoChangesIsSuccess(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{}, successfulAgent())
	j := &job.Job{ID: "job-1", Description: "Update dependencies", ThreadKey: "C1:100.1"}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if len(result.FilesChanged) != 0 || result.BranchName != "" || result.PRURL != "" {
		t.Errorf("no-op result should be empty: %+v", result)
	}
	if len(f.repo.created) != 0 || len(f.repo.commits) != 0 || len(f.prHost.created) != 0 {
		t.Error("no-op pipeline still touched branch/commit/PR")
	}
	if !f.threads.IsCompleted(j.ThreadKey) {
		t.Error("no-op thread not marked completed")
	}
}

func TestExecuteFollowUpReusesBranchAndPR(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"b.ts"}}, successfulAgent())

	prior := &job.ThreadContext{
		BranchName:      "fix/x",
		PRNumber:        7,
		PRURL:           "https://github.com/acme/app/pull/7",
		OriginalRequest: "Fix x",
		FilesChanged:    []string{"a.ts"},
	}
	f.threads.MarkCompleted("C1:100.1", prior)

	j := &job.Job{
		ID:           "job-2",
		Description:  "Also handle the empty case",
		ThreadKey:    "C1:100.1",
		IsFollowUp:   true,
		PriorContext: prior,
	}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if result.BranchName != "fix/x" {
		t.Errorf("branch = %q, want fix/x", result.BranchName)
	}

	if len(f.repo.checkedOut) != 1 || f.repo.checkedOut[0] != "fix/x" {
		t.Errorf("checked out = %v, want [fix/x]", f.repo.checkedOut)
	}
	if len(f.repo.created) != 0 {
		t.Errorf("follow-up created a new branch: %v", f.repo.created)
	}
	if len(f.prHost.created) != 0 {
		t.Errorf("follow-up opened a new PR: %v", f.prHost.created)
	}

	// Prompt carries the continuation context and guidance.
	for _, want := range []string{"Fix x", "a.ts", "fix/x", "Also handle the empty case"} {
		if !strings.Contains(f.agent.gotPrompt, want) {
			t.Errorf("follow-up prompt missing %q:\n%s", want, f.agent.gotPrompt)
		}
	}

	// Stored context is the union of old and new files.
	tc, _ := f.threads.Context("C1:100.1")
	if len(tc.FilesChanged) != 2 {
		t.Errorf("files = %v, want union of a.ts and b.ts", tc.FilesChanged)
	}
	if tc.OriginalRequest != "Fix x" {
		t.Errorf("original request = %q, want the first request", tc.OriginalRequest)
	}
}

func TestExecuteAgentFailureReleasesThread(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{}, &secondary.AgentResult{
		Success:      false,
		ErrorMessage: "max turns exceeded",
	})
	j := &job.Job{ID: "job-1", Description: "Fix it", ThreadKey: "C1:100.1"}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusFailed {
		t.Fatalf("result = %+v, want failed", result)
	}
	if result.Permanent {
		t.Error("agent failure marked permanent; it should be retryable")
	}
	if f.threads.IsActive(j.ThreadKey) {
		t.Error("failed job left the thread claimed")
	}
	if f.threads.IsCompleted(j.ThreadKey) {
		t.Error("failed job marked the thread completed")
	}

	found := false
	for _, p := range f.notifier.posts {
		if strings.Contains(p, "max turns exceeded") {
			found = true
		}
	}
	if !found {
		t.Errorf("no user-visible failure report: %v", f.notifier.posts)
	}
}

func TestExecuteConfigurationErrorIsPermanent(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{}, successfulAgent())
	f.repo.initErr = &job.ConfigurationError{Err: errors.New("repository path does not exist")}
	j := &job.Job{ID: "job-1", Description: "Fix it", ThreadKey: "C1:100.1"}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusFailed || !result.Permanent {
		t.Errorf("result = %+v, want permanent failure", result)
	}
}

func TestExecutePushFailureNamesLeftoverBranch(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Created: []string{"new.go"}}, successfulAgent())
	f.repo.pushErr = errors.New("remote hung up")
	j := &job.Job{ID: "job-1", Description: "Add a new widget", ThreadKey: "C1:100.1"}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusFailed {
		t.Fatalf("result = %+v, want failed", result)
	}

	// The failure report names the branch so a human can resume manually.
	found := false
	for _, p := range f.notifier.posts {
		if strings.Contains(p, "feat/new-widget") && strings.Contains(p, "remote hung up") {
			found = true
		}
	}
	if !found {
		t.Errorf("failure report does not name the leftover branch: %v", f.notifier.posts)
	}
	if f.threads.IsActive(j.ThreadKey) {
		t.Error("failed job left the thread claimed")
	}
}

func TestExecuteWaitsForPreviewDeployment(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"a.ts"}}, successfulAgent())
	watcher := &mockWatcher{readyAt: 2, url: "https://preview.acme.dev/fix-login-bug"}
	f.svc.deploys = watcher

	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1"}
	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if result.PreviewURL != watcher.url {
		t.Errorf("preview = %q, want %q", result.PreviewURL, watcher.url)
	}
	if watcher.calls != 2 {
		t.Errorf("watcher polled %d times, want 2", watcher.calls)
	}
}

func TestExecutePreviewTimeoutIsNotFatal(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"a.ts"}}, successfulAgent())
	watcher := &mockWatcher{} // never ready
	f.svc.deploys = watcher

	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1"}
	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed despite missing preview", result)
	}
	if result.PreviewURL != "" {
		t.Errorf("preview = %q, want empty", result.PreviewURL)
	}
	if watcher.calls != 3 {
		t.Errorf("watcher polled %d times, want the configured 3", watcher.calls)
	}
}

func TestExecuteNotifierFailuresAreNotFatal(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"a.ts"}}, successfulAgent())
	f.notifier.postErr = errors.New("chat API down")

	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1"}
	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Errorf("notifier failure broke the pipeline: %+v", result)
	}
}

func TestExecuteRetryAfterPushReusesOpenPR(t *testing.T) {
	// A first attempt can push the branch and open a PR, then fail on a
	// later stage. The retry recreates the branch and pushes again; it must
	// pick up the PR the previous attempt opened instead of opening a
	// duplicate.
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"src/login.ts"}}, successfulAgent())
	f.prHost.open = &secondary.PullRequest{Number: 12, URL: "https://github.com/acme/app/pull/12"}

	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1", RetryCount: 1}
	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if result.PRURL != "https://github.com/acme/app/pull/12" {
		t.Errorf("PR URL = %q, want the already-open PR", result.PRURL)
	}
	if len(f.prHost.created) != 0 {
		t.Errorf("retry opened a duplicate PR: %v", f.prHost.created)
	}
	if len(f.prHost.lookups) != 1 || f.prHost.lookups[0] != "fix/login-bug" {
		t.Errorf("lookups = %v, want [fix/login-bug]", f.prHost.lookups)
	}
	if len(f.repo.pushes) != 1 {
		t.Errorf("pushes = %v", f.repo.pushes)
	}
	tc, ok := f.threads.Context(j.ThreadKey)
	if !ok || tc.PRNumber != 12 {
		t.Errorf("stored context = %+v, want PR 12", tc)
	}
}

func TestExecutePRLookupFailureFallsBackToCreate(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"src/login.ts"}}, successfulAgent())
	f.prHost.findErr = errors.New("gh unreachable")

	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1"}
	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if len(f.prHost.created) != 1 {
		t.Errorf("created = %v, want one PR despite the failed lookup", f.prHost.created)
	}
	if result.PRURL != "https://github.com/acme/app/pull/7" {
		t.Errorf("PR URL = %q", result.PRURL)
	}
}

func TestExecuteFollowUpWithoutContextRunsFreshFlow(t *testing.T) {
	f := newOrchestratorFixture(&secondary.RepoStatus{Modified: []string{"a.ts"}}, successfulAgent())
	j := &job.Job{ID: "job-1", Description: "Fix the login bug", ThreadKey: "C1:100.1", IsFollowUp: true}

	result := f.svc.Execute(context.Background(), j)

	if result.Status != job.StatusCompleted {
		t.Fatalf("result = %+v, want completed", result)
	}
	if !f.repo.initialized || len(f.repo.checkedOut) != 0 {
		t.Error("follow-up without context should run the fresh flow")
	}
	if len(f.repo.created) != 1 {
		t.Errorf("expected a fresh branch, got %v", f.repo.created)
	}
}
