package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/patchbot/internal/config"
	"github.com/example/patchbot/internal/core/policy"
	"github.com/example/patchbot/internal/wire"
)

// HookCmd returns the hook command - parent for agent hook handlers.
func HookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook <event>",
		Short: "Handle agent hook events",
		Long: `Process agent hook events.

This command is called by the coding agent's hooks and reads event data
from stdin. Each event has a specific handler subcommand.

Available events:
  PreToolUse  - Called before the agent runs a tool; applies the safety policy

Example:
  echo '{"tool_name":"Bash","tool_input":{"command":"ls"}}' | patchbot hook PreToolUse`,
	}

	cmd.AddCommand(hookPreToolUseCmd())

	return cmd
}

// PreToolUseEvent represents the JSON payload from the PreToolUse hook.
type PreToolUseEvent struct {
	ToolName  string `json:"tool_name"`
	Cwd       string `json:"cwd"`
	ToolInput struct {
		Command  string `json:"command"`
		FilePath string `json:"file_path"`
	} `json:"tool_input"`
}

// PreToolUseResponse represents the JSON response blocking a tool call.
type PreToolUseResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func hookPreToolUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "PreToolUse",
		Short: "Handle PreToolUse event (safety policy gate)",
		Long:  "Called before the agent runs a tool. Blocks destructive commands and protected paths.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHookPreToolUse()
		},
	}
}

func runHookPreToolUse() error {
	// 1. Read stdin JSON
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		// Can't read stdin - allow the tool call (fail open)
		return nil //nolint:nilerr // intentional fail-open design
	}

	// 2. Parse hook event
	var event PreToolUseEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Invalid JSON - allow the tool call (fail open)
		return nil //nolint:nilerr // intentional fail-open design
	}

	// 3. Load config from the session's cwd; built-ins only when absent.
	cwd := event.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		cfg = config.Default()
	}

	engine, err := wire.BuildPolicy(cfg)
	if err != nil {
		// Broken user rule file - fall back to built-ins rather than
		// leaving the agent ungated.
		engine = policy.NewEngine()
	}

	// 4. Evaluate per tool shape.
	var verdict policy.Verdict
	switch event.ToolName {
	case "Bash":
		verdict = engine.CheckCommand(event.ToolInput.Command)
	case "Write", "Edit", "MultiEdit", "NotebookEdit":
		root := cfg.RepoPath
		if root == "" {
			root = cwd
		}
		verdict = engine.CheckPath(event.ToolInput.FilePath, root)
	default:
		// Unknown tool - allow.
		return nil
	}

	if verdict.Allowed {
		if verdict.Warning != "" {
			// Warnings surface in the transcript but do not block.
			fmt.Fprintln(os.Stderr, "policy warning: "+verdict.Warning)
		}
		return nil
	}

	// 5. Block with the matched reason (exit 0 with output = block).
	response := PreToolUseResponse{
		Decision: "block",
		Reason:   "Blocked by safety policy: " + verdict.Reason,
	}
	output, _ := json.Marshal(response)
	fmt.Fprintln(os.Stdout, string(output))

	return nil
}
