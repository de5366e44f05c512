// Package cli contains the patchbot command tree.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/app"
	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/core/job"
	"github.com/example/patchbot/internal/ports/primary"
	"github.com/example/patchbot/internal/wire"
)

// inboundMessage is one NDJSON event on stdin, as emitted by the chat
// client in front of this process.
type inboundMessage struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	ThreadKey string `json:"thread_key"`
	IsReply   bool   `json:"is_reply"`
	Text      string `json:"text"`
	PRRefs    []struct {
		Owner  string `json:"owner"`
		Repo   string `json:"repo"`
		Number int    `json:"number"`
	} `json:"pr_refs"`
	Images []struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		MimeType string `json:"mime_type"`
	} `json:"images"`
}

// ServeCmd returns the serve command: the long-running event loop.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue, reading events from stdin",
		Long: `Start the worker and process inbound events.

Events arrive as NDJSON on stdin, one message per line. Admitted events
become queued jobs; denied events are logged and dropped. The process
runs until stdin closes and the queue drains, or until SIGINT/SIGTERM.

Example:
  chat-client --tail | patchbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			cfg, err := config.Load(cwd)
			if err != nil {
				return err
			}
			return runServe(cfg, cmd)
		},
	}
}

func runServe(cfg *config.Config, cmd *cobra.Command) error {
	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

	application, err := wire.BuildApp(cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.Queue.Start(ctx)
	defer application.Queue.Stop()

	logger.Printf("patchbot serving; reading events from stdin")

	return serveEvents(ctx, cmd.InOrStdin(), application.Intake, application.Queue, logger)
}

// serveEvents is the event loop: one NDJSON line per inbound message. Stdin
// is pumped from a separate goroutine so a pending read never delays
// shutdown; a signal cancels ctx and the loop returns on the next select.
func serveEvents(ctx context.Context, in io.Reader, intake primary.IntakeService, queue primary.QueueService, logger *log.Logger) error {
	lines, readErr := readLines(ctx, in)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("failed to read events: %w", err)
		case line, ok := <-lines:
			if !ok {
				// Stdin closed: let queued work finish before shutting down.
				logger.Printf("stdin closed, draining queue")
				return waitForIdle(ctx, queue)
			}
			if len(line) == 0 {
				continue
			}

			var msg inboundMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				logger.Printf("skipping malformed event: %v", err)
				continue
			}

			if _, err := intake.Admit(toEvent(msg)); err != nil {
				var dropped *app.ErrDropped
				if errors.As(err, &dropped) {
					logger.Printf("dropped event %s: %s", msg.MessageID, dropped.Reason)
					continue
				}
				logger.Printf("failed to admit event %s: %v", msg.MessageID, err)
			}
		}
	}
}

// readLines scans r line by line on its own goroutine. The lines channel
// closes on EOF; a scan error arrives on the error channel. The scanner
// itself cannot be interrupted mid-read, but the pump stops handing out
// lines once ctx is cancelled.
func readLines(ctx context.Context, r io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- err
		}
	}()
	return lines, errc
}

func toEvent(msg inboundMessage) primary.InboundEvent {
	ev := primary.InboundEvent{
		MessageID: msg.MessageID,
		ChannelID: msg.ChannelID,
		ThreadKey: msg.ThreadKey,
		IsReply:   msg.IsReply,
		Text:      msg.Text,
	}
	for _, ref := range msg.PRRefs {
		ev.PRRefs = append(ev.PRRefs, job.PRRef{Owner: ref.Owner, Repo: ref.Repo, Number: ref.Number})
	}
	for _, img := range msg.Images {
		ev.Images = append(ev.Images, job.ImageAttachment{URL: img.URL, Filename: img.Filename, MimeType: img.MimeType})
	}
	return ev
}

// waitForIdle polls until the queue drains or ctx is cancelled.
func waitForIdle(ctx context.Context, queue primary.QueueService) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if queue.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
