package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/core/policy"
	"github.com/example/patchbot/internal/wire"
)

// PolicyCmd returns the policy command: check a command or path against the
// safety rules without running anything.
func PolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Evaluate the safety policy",
		Long: `Check what the safety policy would decide for a command or path.

Useful for debugging custom rule files and for understanding why the
agent was blocked. Exit code 1 means denied.

Examples:
  patchbot policy check-command "rm -rf /"
  patchbot policy check-path .env.production`,
	}

	cmd.AddCommand(policyCheckCommandCmd())
	cmd.AddCommand(policyCheckPathCmd())

	return cmd
}

func policyCheckCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-command <command>",
		Short: "Check a shell command against the policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := loadPolicy()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return printVerdict(cmd, engine.CheckCommand(strings.Join(args, " ")))
		},
	}
}

func policyCheckPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-path <path>",
		Short: "Check a file path against the policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, err := loadPolicy()
			if err != nil {
				return err
			}

			root := cfg.RepoPath
			if root == "" {
				root, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get working directory: %w", err)
				}
			}
			cmd.SilenceUsage = true
			return printVerdict(cmd, engine.CheckPath(args[0], root))
		},
	}
}

// loadPolicy builds the engine from config when present, built-ins only
// otherwise. Policy checks must work before 'patchbot init' has run.
func loadPolicy() (*policy.Engine, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		cfg = config.Default()
	}

	engine, err := wire.BuildPolicy(cfg)
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}

func printVerdict(cmd *cobra.Command, v policy.Verdict) error {
	out := cmd.OutOrStdout()
	switch {
	case !v.Allowed:
		fmt.Fprintf(out, "%s %s\n", color.RedString("denied:"), v.Reason)
		return fmt.Errorf("denied by policy")
	case v.Warning != "":
		fmt.Fprintf(out, "%s %s\n", color.YellowString("allowed with warning:"), v.Warning)
		return nil
	default:
		fmt.Fprintln(out, color.GreenString("allowed"))
		return nil
	}
}
