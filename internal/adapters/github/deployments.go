package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// DeploymentWatcher reports whether a preview deployment for a branch is
// ready, by inspecting the status checks on the branch's pull request.
// A check whose name mentions a preview/deploy and that has succeeded with
// a link is treated as the preview.
type DeploymentWatcher struct {
	repoDir string
}

// NewDeploymentWatcher creates a watcher bound to the working copy.
func NewDeploymentWatcher(repoDir string) *DeploymentWatcher {
	return &DeploymentWatcher{repoDir: repoDir}
}

type statusCheck struct {
	Name       string `json:"name"`
	Context    string `json:"context"`
	State      string `json:"state"`
	Conclusion string `json:"conclusion"`
	DetailsURL string `json:"detailsUrl"`
	TargetURL  string `json:"targetUrl"`
}

// CheckPreview polls the PR's status checks for the branch. ready=false
// with a nil error means the deployment has not finished yet.
func (w *DeploymentWatcher) CheckPreview(ctx context.Context, branch string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "view", branch,
		"--json", "statusCheckRollup",
	)
	cmd.Dir = w.repoDir

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", false, fmt.Errorf("failed to read status checks: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", false, fmt.Errorf("failed to read status checks: %w", err)
	}

	var payload struct {
		StatusCheckRollup []statusCheck `json:"statusCheckRollup"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return "", false, fmt.Errorf("failed to parse status checks: %w", err)
	}

	return previewFromChecks(payload.StatusCheckRollup)
}

// previewFromChecks scans status checks for a finished preview deployment.
func previewFromChecks(checks []statusCheck) (string, bool, error) {
	for _, c := range checks {
		name := strings.ToLower(c.Name)
		if name == "" {
			name = strings.ToLower(c.Context)
		}
		if !strings.Contains(name, "preview") && !strings.Contains(name, "deploy") {
			continue
		}

		switch strings.ToUpper(firstNonEmpty(c.Conclusion, c.State)) {
		case "SUCCESS":
			url := firstNonEmpty(c.TargetURL, c.DetailsURL)
			return url, true, nil
		case "FAILURE", "ERROR":
			return "", false, fmt.Errorf("preview deployment %s failed", firstNonEmpty(c.Name, c.Context))
		}
		// Pending or queued: keep polling.
		return "", false, nil
	}
	// No preview check at all: keep polling until the bound runs out.
	return "", false, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
