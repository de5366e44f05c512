// Package agent runs the autonomous coding agent as a subprocess and turns
// its streamed output into progress events and a structured result.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/example/patchbot/internal/ports/secondary"
)

const (
	// Agent output lines can carry whole file contents.
	maxLineBytes = 4 * 1024 * 1024

	// Grace period between SIGTERM and SIGKILL on cancellation.
	stopGrace = 10 * time.Second
)

// Runner invokes the claude CLI in non-interactive mode. Every tool call the
// agent makes is gated through the safety policy: the runner installs a
// PreToolUse hook that shells back into this binary, which answers with an
// allow or deny decision.
type Runner struct {
	command     string // agent binary, e.g. "claude"
	hookCommand string // command the PreToolUse hook runs; empty disables the gate
	logger      *log.Logger
}

// NewRunner creates a runner for the given agent binary.
func NewRunner(command, hookCommand string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Runner{command: command, hookCommand: hookCommand, logger: logger}
}

// Run executes the agent against the working copy and blocks until it
// finishes. Cancellation of ctx terminates the agent gracefully.
func (r *Runner) Run(ctx context.Context, prompt string, opts secondary.AgentRunOptions) (*secondary.AgentResult, error) {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--max-turns", strconv.Itoa(opts.MaxTurns),
		"--permission-mode", "acceptEdits",
	}

	if r.hookCommand != "" {
		settingsPath, cleanup, err := writeHookSettings(r.hookCommand)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		args = append(args, "--settings", settingsPath)
	}

	args = append(args, fullPrompt(prompt, opts))

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Dir = opts.RepoPath
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGrace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent %q: %w", r.command, err)
	}

	emit := opts.OnProgress
	if emit == nil {
		emit = func(secondary.ProgressEvent) {}
	}
	emit(secondary.ProgressEvent{Phase: "starting", Detail: "launching agent"})

	col := newCollector()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		line, perr := parseLine(raw)
		if perr != nil {
			// Non-JSON noise on stdout is ignored rather than fatal.
			r.logger.Printf("agent: skipping unparseable output line: %v", perr)
			continue
		}
		for _, ev := range col.observe(line) {
			emit(ev)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()

	if scanErr != nil {
		return nil, fmt.Errorf("failed to read agent output: %w", scanErr)
	}
	if col.final == nil {
		detail := strings.TrimSpace(stderr.String())
		if waitErr != nil {
			if detail != "" {
				return nil, fmt.Errorf("agent exited without a result: %w: %s", waitErr, detail)
			}
			return nil, fmt.Errorf("agent exited without a result: %w", waitErr)
		}
		return nil, fmt.Errorf("agent produced no result line")
	}

	emit(secondary.ProgressEvent{Phase: "complete", Detail: "agent finished", Final: true})
	return col.result(), nil
}

// fullPrompt appends the attached image paths to the prompt.
func fullPrompt(prompt string, opts secondary.AgentRunOptions) string {
	var b strings.Builder
	b.WriteString(prompt)

	if len(opts.ImagePaths) > 0 {
		b.WriteString("\n\nAttached images (read them for context):\n")
		for _, p := range opts.ImagePaths {
			b.WriteString("- ")
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// hookSettings is the settings document the agent CLI consumes. The
// PreToolUse hook receives the pending tool call on stdin and blocks it when
// the hook exits with a deny decision.
type hookSettings struct {
	Hooks map[string][]hookMatcher `json:"hooks"`
}

type hookMatcher struct {
	Matcher string      `json:"matcher"`
	Hooks   []hookEntry `json:"hooks"`
}

type hookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

func writeHookSettings(hookCommand string) (string, func(), error) {
	settings := hookSettings{
		Hooks: map[string][]hookMatcher{
			"PreToolUse": {
				{
					Matcher: "Bash|Write|Edit|MultiEdit",
					Hooks:   []hookEntry{{Type: "command", Command: hookCommand}},
				},
			},
		},
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode hook settings: %w", err)
	}

	f, err := os.CreateTemp("", "patchbot-settings-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create settings file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close settings file: %w", err)
	}

	path := f.Name()
	return path, func() { os.Remove(path) }, nil
}

// collector accumulates stream lines into an AgentResult.
type collector struct {
	started  time.Time
	files    map[string]struct{}
	commands []string
	final    *streamLine
}

func newCollector() *collector {
	return &collector{
		started: time.Now(),
		files:   make(map[string]struct{}),
	}
}

// observe folds one stream line into the collector and returns the progress
// events it implies.
func (c *collector) observe(line *streamLine) []secondary.ProgressEvent {
	switch line.Type {
	case "assistant":
		if line.Message == nil {
			return nil
		}
		var events []secondary.ProgressEvent
		for _, block := range line.Message.Content {
			switch block.Type {
			case "text":
				if text := strings.TrimSpace(block.Text); text != "" {
					events = append(events, secondary.ProgressEvent{
						Phase:  "thinking",
						Detail: firstLine(text),
					})
				}
			case "tool_use":
				c.track(block)
				events = append(events, secondary.ProgressEvent{
					Phase:  "tool",
					Tool:   block.Name,
					Detail: block.toolDetail(),
				})
			}
		}
		return events

	case "result":
		c.final = line
		return nil
	}
	return nil
}

// track records files and commands touched by a tool_use block.
func (c *collector) track(block contentBlock) {
	switch block.Name {
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		if p := block.toolPath(); p != "" {
			c.files[p] = struct{}{}
		}
	case "Bash":
		if cmd := block.toolCommand(); cmd != "" {
			c.commands = append(c.commands, cmd)
		}
	}
}

func (c *collector) result() *secondary.AgentResult {
	files := make([]string, 0, len(c.files))
	for f := range c.files {
		files = append(files, f)
	}
	sort.Strings(files)

	res := &secondary.AgentResult{
		Success:       !c.final.IsError,
		Analysis:      c.final.Result,
		FilesModified: files,
		CommandsRun:   c.commands,
		Stats: secondary.AgentStats{
			Duration: time.Duration(c.final.DurationMS) * time.Millisecond,
			CostUSD:  c.final.TotalCostUSD,
			Turns:    c.final.NumTurns,
		},
	}
	if c.final.IsError {
		res.ErrorMessage = c.final.Result
		if res.ErrorMessage == "" {
			res.ErrorMessage = "agent reported an error (" + c.final.Subtype + ")"
		}
	}
	return res
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
