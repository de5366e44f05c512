package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/adapters/git"
	"github.com/example/patchbot/internal/adapters/github"
	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/version"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the patchbot environment",
		Long: `Comprehensive environment health check for patchbot.

Validates:
- Required binaries (git, gh, agent command)
- GitHub authentication
- Configuration file and working copy
- History database path

Examples:
  patchbot doctor              # Run full health check
  patchbot doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			results := []CheckResult{}
			hasErrors := false

			cfg, cfgResult := checkConfig(cwd)
			results = append(results, cfgResult)
			results = append(results, checkBinary("git"))
			results = append(results, checkBinary("gh"))
			results = append(results, checkAgentBinary(cfg))
			results = append(results, checkGitHubAuth(cmd))
			results = append(results, checkWorkingCopy(cfg))
			results = append(results, checkHistoryPath(cfg))

			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Check              Status")
				fmt.Fprintln(out, "─────────────────────────")
				for _, r := range results {
					fmt.Fprintf(out, "%-18s %s\n", r.Name, r.Status)
				}
				fmt.Fprintln(out)

				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Fprintln(out, "Details:")
							hasDetails = true
						}
						fmt.Fprintf(out, "\n%s:\n%s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Fprintln(out, "\n⚠ Issues found.")
				} else {
					fmt.Fprintf(out, "All checks passed. (%s)\n", version.String())
				}
			}

			if hasErrors {
				cmd.SilenceUsage = true
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

// checkConfig loads the configuration; missing config fails every other
// check that depends on it, so it comes first.
func checkConfig(cwd string) (*config.Config, CheckResult) {
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, CheckResult{
			Name:    "Config",
			Status:  "✗",
			Details: "  No .patchbot/config.json here\n  Run: patchbot init --repo <path>",
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, CheckResult{
			Name:    "Config",
			Status:  "✗",
			Details: fmt.Sprintf("  %v", err),
		}
	}
	return cfg, CheckResult{Name: "Config", Status: "✓"}
}

func checkBinary(name string) CheckResult {
	path, err := exec.LookPath(name)
	if err != nil {
		return CheckResult{
			Name:    "Binary: " + name,
			Status:  "✗",
			Details: fmt.Sprintf("  '%s' not found in PATH", name),
		}
	}
	return CheckResult{Name: "Binary: " + name, Status: "✓", Details: "  " + path}
}

func checkAgentBinary(cfg *config.Config) CheckResult {
	name := "claude"
	if cfg != nil && cfg.AgentCommand != "" {
		name = cfg.AgentCommand
	}
	return checkBinary(name)
}

func checkGitHubAuth(cmd *cobra.Command) CheckResult {
	if err := github.CheckAuth(cmd.Context()); err != nil {
		return CheckResult{
			Name:    "GitHub Auth",
			Status:  "✗",
			Details: fmt.Sprintf("  %v", err),
		}
	}
	return CheckResult{Name: "GitHub Auth", Status: "✓"}
}

func checkWorkingCopy(cfg *config.Config) CheckResult {
	if cfg == nil || cfg.RepoPath == "" {
		return CheckResult{Name: "Working Copy", Status: "⚠", Details: "  repo_path not configured"}
	}
	repo := git.New(cfg.RepoPath, cfg.BaseBranch)
	if err := repo.ValidateRoot(); err != nil {
		return CheckResult{
			Name:    "Working Copy",
			Status:  "✗",
			Details: fmt.Sprintf("  %v", err),
		}
	}
	return CheckResult{Name: "Working Copy", Status: "✓"}
}

func checkHistoryPath(cfg *config.Config) CheckResult {
	if cfg == nil || cfg.HistoryDBPath == "" {
		return CheckResult{Name: "History DB", Status: "⚠", Details: "  history disabled (history_db_path not set)"}
	}
	dir := filepath.Dir(cfg.HistoryDBPath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return CheckResult{
			Name:    "History DB",
			Status:  "⚠",
			Details: fmt.Sprintf("  directory %s does not exist yet (created on first run)", dir),
		}
	}
	return CheckResult{Name: "History DB", Status: "✓"}
}
