// Package github implements the pull-request host and deployment watcher
// collaborators by shelling out to the gh CLI.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/secondary"
)

// PRHost creates and annotates pull requests via gh. It runs inside the
// working copy so gh resolves the repository from the checkout.
type PRHost struct {
	repoDir    string
	baseBranch string
}

// NewPRHost creates a host bound to the working copy at repoDir.
func NewPRHost(repoDir, baseBranch string) *PRHost {
	return &PRHost{repoDir: repoDir, baseBranch: baseBranch}
}

// CheckAuth verifies gh authentication. Used during preflight; an
// unauthenticated gh is a configuration error for every job.
func CheckAuth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	if out, err := cmd.CombinedOutput(); err != nil {
		return &job.ConfigurationError{
			Err: fmt.Errorf("not authenticated with GitHub: %s\nRun: gh auth login", strings.TrimSpace(string(out))),
		}
	}
	return nil
}

// CreatePullRequest opens a PR for branch against the base branch.
func (h *PRHost) CreatePullRequest(ctx context.Context, branch, title, body string) (*secondary.PullRequest, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create",
		"--head", branch,
		"--base", h.baseBranch,
		"--title", title,
		"--body", body,
	)
	cmd.Dir = h.repoDir

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("failed to create pull request: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	// gh pr create prints the PR URL.
	url := strings.TrimSpace(string(out))
	number, err := numberFromURL(url)
	if err != nil {
		return nil, err
	}
	return &secondary.PullRequest{Number: number, URL: url}, nil
}

// FindOpen returns the open PR whose head is branch, or nil when there is
// none. gh exits non-zero when no PR exists for the branch; that is the
// expected "not found" answer, not a failure.
func (h *PRHost) FindOpen(ctx context.Context, branch string) (*secondary.PullRequest, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "view", branch,
		"--json", "number,url,state",
	)
	cmd.Dir = h.repoDir

	out, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up PR for %s: %w", branch, err)
	}

	var pr struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(out, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse pr view output: %w", err)
	}
	if !strings.EqualFold(pr.State, "OPEN") {
		return nil, nil
	}
	return &secondary.PullRequest{Number: pr.Number, URL: pr.URL}, nil
}

// AddLabels attaches labels to a PR. Callers treat failures as non-fatal.
func (h *PRHost) AddLabels(ctx context.Context, number int, labels []string) error {
	cmd := exec.CommandContext(ctx, "gh", "pr", "edit",
		strconv.Itoa(number),
		"--add-label", strings.Join(labels, ","),
	)
	cmd.Dir = h.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to add labels: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Summarize renders a referenced pull request as a prompt snippet.
func (h *PRHost) Summarize(ctx context.Context, owner, repo string, number int) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "view",
		strconv.Itoa(number),
		"--repo", owner+"/"+repo,
		"--json", "title,state,url,body",
	)
	cmd.Dir = h.repoDir

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("failed to view %s/%s#%d: %s", owner, repo, number, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("failed to view %s/%s#%d: %w", owner, repo, number, err)
	}

	var pr struct {
		Title string `json:"title"`
		State string `json:"state"`
		URL   string `json:"url"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal(out, &pr); err != nil {
		return "", fmt.Errorf("failed to parse pr view output: %w", err)
	}
	return renderSummary(owner, repo, number, pr.Title, pr.State, pr.URL, pr.Body), nil
}

func renderSummary(owner, repo string, number int, title, state, url, body string) string {
	summary := fmt.Sprintf("%s/%s#%d: %s (%s)\n%s", owner, repo, number, title, strings.ToLower(state), url)
	body = strings.TrimSpace(body)
	if body != "" {
		if len(body) > 1000 {
			body = body[:1000] + "…"
		}
		summary += "\n\n" + body
	}
	return summary
}

// numberFromURL extracts the PR number from a URL like
// https://github.com/owner/repo/pull/42.
func numberFromURL(url string) (int, error) {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) == 0 {
		return 0, fmt.Errorf("unexpected pull request URL: %q", url)
	}
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("failed to extract PR number from %q: %w", url, err)
	}
	return n, nil
}
