package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/wire"
)

// HistoryCmd returns the history command: list recent job outcomes.
func HistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent job outcomes",
		Long: `Show the persisted audit trail of terminal job outcomes, newest first.

Requires history_db_path in the configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			cfg, err := config.Load(cwd)
			if err != nil {
				return err
			}

			logger := log.New(io.Discard, "", 0)
			application, err := wire.BuildApp(cfg, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			defer application.Close()

			entries, err := application.History.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSTATUS\tBRANCH\tPR\tFILES\tRETRIES\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					e.CreatedAt, e.Status, orDash(e.BranchName), orDash(e.PRURL), e.FilesChanged, e.Retries, truncate(e.Description, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")

	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
