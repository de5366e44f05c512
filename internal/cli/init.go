package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/config"
)

// InitCmd returns the init command: write a starter configuration.
func InitCmd() *cobra.Command {
	var repoPath string
	var baseBranch string
	var historyPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter .patchbot/config.json",
		Long: `Create the configuration file in the current directory.

Example:
  patchbot init --repo ~/src/checkout --base main`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			if _, err := config.Load(cwd); err == nil {
				return fmt.Errorf("config already exists; edit .patchbot/config.json directly")
			}

			cfg := config.Default()
			cfg.RepoPath = repoPath
			if baseBranch != "" {
				cfg.BaseBranch = baseBranch
			}
			cfg.HistoryDBPath = historyPath

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cwd, cfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote .patchbot/config.json\n", color.GreenString("✓"))
			return nil
		},
	}

	cmd.Flags().StringVar(&repoPath, "repo", "", "path to the working copy jobs will mutate (required)")
	cmd.Flags().StringVar(&baseBranch, "base", "", "base branch (default main)")
	cmd.Flags().StringVar(&historyPath, "history-db", "", "SQLite path for the job audit trail (empty disables)")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}
