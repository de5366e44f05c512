package cli

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/ports/primary"
	"github.com/example/patchbot/internal/wire"
)

// RunCmd returns the run command: a one-shot job from the command line.
func RunCmd() *cobra.Command {
	var thread string
	var followUp bool

	cmd := &cobra.Command{
		Use:   "run <description>",
		Short: "Run a single request and wait for it to finish",
		Long: `Enqueue one request and block until the queue drains.

The description goes through the same pipeline as a served event:
branch, commit, push, pull request. Use --thread with --follow-up to
continue work on an earlier request's branch.

Examples:
  patchbot run "Fix the login bug"
  patchbot run --thread C1:100 --follow-up "Also update the tests"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			cfg, err := config.Load(cwd)
			if err != nil {
				return err
			}
			return runOnce(cfg, cmd, strings.Join(args, " "), thread, followUp)
		},
	}

	cmd.Flags().StringVar(&thread, "thread", "", "thread key to run under (default: a fresh one)")
	cmd.Flags().BoolVar(&followUp, "follow-up", false, "continue work on the thread's existing branch")

	return cmd
}

func runOnce(cfg *config.Config, cmd *cobra.Command, description, thread string, followUp bool) error {
	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

	application, err := wire.BuildApp(cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if thread == "" {
		thread = "cli:" + uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.Queue.Start(ctx)
	defer application.Queue.Stop()

	_, err = application.Intake.Admit(primary.InboundEvent{
		MessageID: uuid.NewString(),
		ChannelID: "cli",
		ThreadKey: thread,
		IsReply:   followUp,
		Text:      description,
	})
	if err != nil {
		return err
	}

	return waitForIdle(ctx, application.Queue)
}
