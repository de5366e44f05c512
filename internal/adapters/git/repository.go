// Package git implements the Repository collaborator by shelling out to
// the git CLI against a single shared working copy.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/secondary"
)

// Repository drives one local working copy. The queue's single-worker
// guarantee means no two jobs ever touch it concurrently.
type Repository struct {
	root   string
	base   string
	remote string
}

// New creates a repository adapter for the working copy at root. The path
// must already be a clone; use ValidateRoot during preflight.
func New(root, baseBranch string) *Repository {
	return &Repository{root: root, base: baseBranch, remote: "origin"}
}

// Root returns the working copy path.
func (r *Repository) Root() string {
	return r.root
}

// ValidateRoot checks that the configured path is a git working copy.
// Failures are configuration errors: no retry will make the path appear.
func (r *Repository) ValidateRoot() error {
	info, err := os.Stat(r.root)
	if err != nil || !info.IsDir() {
		return &job.ConfigurationError{Err: fmt.Errorf("repository path %s does not exist", r.root)}
	}
	if _, err := os.Stat(r.root + "/.git"); err != nil {
		return &job.ConfigurationError{Err: fmt.Errorf("%s is not a git working copy", r.root)}
	}
	return nil
}

// Initialize resets the working copy onto the base branch, discarding any
// leftovers from a previous partial run: stray commits, a dirty tree,
// untracked files.
func (r *Repository) Initialize(ctx context.Context) error {
	if err := r.run(ctx, "fetch", r.remote); err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	if err := r.run(ctx, "checkout", "-f", r.base); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", r.base, err)
	}
	if err := r.run(ctx, "reset", "--hard", r.remote+"/"+r.base); err != nil {
		return fmt.Errorf("failed to reset to %s/%s: %w", r.remote, r.base, err)
	}
	if err := r.run(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("failed to clean working tree: %w", err)
	}
	return nil
}

// CheckoutBranch checks out an existing branch, falling back to creating a
// local tracking branch from the remote ref when there is no local one.
func (r *Repository) CheckoutBranch(ctx context.Context, name string) error {
	if err := r.run(ctx, "fetch", r.remote); err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	if err := r.run(ctx, "checkout", name); err == nil {
		return nil
	}
	if err := r.run(ctx, "checkout", "-b", name, r.remote+"/"+name); err != nil {
		return fmt.Errorf("failed to checkout %s (no local or remote branch): %w", name, err)
	}
	return nil
}

// CreateBranch creates name from base. A pre-existing local branch of the
// same name is deleted first: branch names are deterministic per request,
// so a leftover from a failed attempt would otherwise block the retry.
func (r *Repository) CreateBranch(ctx context.Context, name, base string) error {
	if r.branchExists(ctx, name) {
		if err := r.run(ctx, "branch", "-D", name); err != nil {
			return fmt.Errorf("failed to delete stale branch %s: %w", name, err)
		}
	}
	if err := r.run(ctx, "checkout", "-b", name, base); err != nil {
		return fmt.Errorf("failed to create branch %s from %s: %w", name, base, err)
	}
	return nil
}

// Status reports the actual working-tree state via porcelain output.
func (r *Repository) Status(ctx context.Context) (*secondary.RepoStatus, error) {
	out, err := r.output(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return parseStatus(out), nil
}

// Commit stages the given files and commits them.
func (r *Repository) Commit(ctx context.Context, message string, files []string) (string, error) {
	args := append([]string{"add", "--"}, files...)
	if err := r.run(ctx, args...); err != nil {
		return "", fmt.Errorf("failed to stage files: %w", err)
	}
	if err := r.run(ctx, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	hash, err := r.output(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to read commit hash: %w", err)
	}
	return strings.TrimSpace(hash), nil
}

// Push pushes the branch and sets its upstream. Branch names are
// deterministic per request, so the remote ref is owned by this pipeline:
// a retry after a post-push failure recreates the branch from base and
// must be able to replace what the previous attempt pushed. The lease
// bounds the force to the ref position seen at the last fetch, so a ref
// moved by anyone else still rejects the push.
func (r *Repository) Push(ctx context.Context, branch string) error {
	if err := r.run(ctx, pushArgs(r.remote, branch)...); err != nil {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}
	return nil
}

func pushArgs(remote, branch string) []string {
	return []string{"push", "-u", "--force-with-lease=refs/heads/" + branch, remote, branch}
}

func (r *Repository) branchExists(ctx context.Context, name string) bool {
	// rev-parse errors when the branch is missing - expected, not a failure.
	return r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+name) == nil
}

func (r *Repository) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *Repository) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

// parseStatus splits porcelain v1 output into modified, created and
// untracked paths.
func parseStatus(out string) *secondary.RepoStatus {
	status := &secondary.RepoStatus{}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		// Renames are reported as "R  old -> new"; the new path is what
		// changed.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		switch {
		case code == "??":
			status.Untracked = append(status.Untracked, path)
		case strings.Contains(code, "A"):
			status.Created = append(status.Created, path)
		default:
			status.Modified = append(status.Modified, path)
		}
	}
	return status
}
