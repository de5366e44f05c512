// Package config loads and persists the patchbot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the flat patchbot configuration.
type Config struct {
	// RepoPath is the working copy every job mutates.
	RepoPath string `json:"repo_path"`

	// BaseBranch is the branch new work branches from and PRs target.
	BaseBranch string `json:"base_branch"`

	// MaxRetries bounds re-enqueues of a failed job. The first run plus
	// MaxRetries retries gives the total attempt count.
	MaxRetries int `json:"max_retries"`

	// InterJobDelaySeconds is the pause between consecutive jobs.
	InterJobDelaySeconds int `json:"inter_job_delay_seconds"`

	// AgentCommand is the coding agent binary to invoke.
	AgentCommand string `json:"agent_command"`

	// AgentMaxTurns bounds a single agent invocation.
	AgentMaxTurns int `json:"agent_max_turns"`

	// DeployPollSeconds and DeployMaxAttempts bound the preview-deployment
	// wait. DeployMaxAttempts = 0 disables the wait entirely.
	DeployPollSeconds int `json:"deploy_poll_seconds"`
	DeployMaxAttempts int `json:"deploy_max_attempts"`

	// PolicyRulesPath points at an optional YAML file of extra safety
	// rules, appended after the built-ins.
	PolicyRulesPath string `json:"policy_rules_path,omitempty"`

	// HistoryDBPath is the SQLite audit trail. Empty disables history.
	HistoryDBPath string `json:"history_db_path,omitempty"`

	// PRLabels are attached to every created pull request.
	PRLabels []string `json:"pr_labels,omitempty"`

	// ImageDir is where request attachments are downloaded, one
	// subdirectory per job.
	ImageDir string `json:"image_dir,omitempty"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		BaseBranch:           "main",
		MaxRetries:           2,
		InterJobDelaySeconds: 2,
		AgentCommand:         "claude",
		AgentMaxTurns:        30,
		DeployPollSeconds:    10,
		DeployMaxAttempts:    30,
		PRLabels:             []string{"automated"},
		ImageDir:             filepath.Join(os.TempDir(), "patchbot-images"),
	}
}

// Load reads .patchbot/config.json from the specified directory and fills
// unset fields from defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ".patchbot", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes config.json under dir/.patchbot.
func Save(dir string, cfg *Config) error {
	botDir := filepath.Join(dir, ".patchbot")
	if err := os.MkdirAll(botDir, 0755); err != nil {
		return fmt.Errorf("failed to create .patchbot dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(botDir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate reports configuration problems that would fail every job.
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return fmt.Errorf("repo_path is not set")
	}
	if c.BaseBranch == "" {
		return fmt.Errorf("base_branch is not set")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.AgentCommand == "" {
		return fmt.Errorf("agent_command is not set")
	}
	if c.AgentMaxTurns <= 0 {
		return fmt.Errorf("agent_max_turns must be positive")
	}
	return nil
}
