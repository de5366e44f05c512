package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/cli"
	"github.com/example/patchbot/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "patchbot",
		Short:   "patchbot - turns requests into branches and pull requests",
		Version: version.String(),
		Long: `patchbot runs free-text change requests through an autonomous coding
agent and ships the result: branch, commit, push, pull request, preview.
Jobs run strictly one at a time against a single shared working copy.`,
	}

	// Add subcommands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.PolicyCmd())
	rootCmd.AddCommand(cli.HistoryCmd())
	rootCmd.AddCommand(cli.HookCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
