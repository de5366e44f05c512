package agent

import (
	"encoding/json"
	"fmt"
)

// streamLine is one line of the agent CLI's stream-json output. Only the
// fields the runner consumes are mapped.
type streamLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	Message *assistantMessage `json:"message"`

	// Result line fields.
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	DurationMS   int64   `json:"duration_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	NumTurns     int     `json:"num_turns"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// toolInput covers the input shapes of the tools the runner tracks.
type toolInput struct {
	Command     string `json:"command"`
	FilePath    string `json:"file_path"`
	Description string `json:"description"`
}

func parseLine(data []byte) (*streamLine, error) {
	var line streamLine
	if err := json.Unmarshal(data, &line); err != nil {
		return nil, fmt.Errorf("failed to parse agent output line: %w", err)
	}
	return &line, nil
}

// toolDetail extracts a short human-readable detail for a tool_use block.
func (b contentBlock) toolDetail() string {
	var in toolInput
	if err := json.Unmarshal(b.Input, &in); err != nil {
		return ""
	}
	switch {
	case in.Command != "":
		return in.Command
	case in.FilePath != "":
		return in.FilePath
	default:
		return in.Description
	}
}

// toolPaths returns the file path a Write/Edit tool touched, if any.
func (b contentBlock) toolPath() string {
	var in toolInput
	if err := json.Unmarshal(b.Input, &in); err != nil {
		return ""
	}
	return in.FilePath
}

// toolCommand returns the shell command a Bash tool ran, if any.
func (b contentBlock) toolCommand() string {
	var in toolInput
	if err := json.Unmarshal(b.Input, &in); err != nil {
		return ""
	}
	return in.Command
}
