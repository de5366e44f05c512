// Package console implements the Notifier against a terminal. It stands in
// for a chat surface: messages, status updates, and reactions are rendered
// as colored lines on the configured writer.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Notifier writes conversation updates to a terminal.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewNotifier creates a notifier writing to out.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

// PostMessage prints a message addressed to the thread.
func (n *Notifier) PostMessage(_ context.Context, channel, thread, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.out, "%s %s\n", color.CyanString("[%s/%s]", channel, thread), text)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

// UpdateStatus prints a transient status line for the thread.
func (n *Notifier) UpdateStatus(_ context.Context, channel, thread, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.out, "%s %s\n", color.New(color.Faint).Sprintf("[%s/%s]", channel, thread), color.New(color.Faint).Sprint(text))
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// AddReaction prints a reaction marker for the message.
func (n *Notifier) AddReaction(_ context.Context, channel, messageID, emoji string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.out, "%s reacted :%s: to %s\n", color.YellowString("[%s]", channel), emoji, messageID)
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}
