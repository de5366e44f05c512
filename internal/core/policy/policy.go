// Package policy contains the pure command and path safety checks applied
// to every tool invocation the coding agent proposes. Evaluation order is
// fixed and significant: allowlist, then denylist, then warnlist, then a
// default allow. Patterns can overlap across tables, so reordering changes
// behavior.
package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Verdict is the outcome of a safety check.
type Verdict struct {
	Allowed bool
	Reason  string // set when denied
	Warning string // non-fatal, set when allowed with a caveat
}

// Deny returns a denying verdict with the given reason.
func Deny(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}

// Allow returns a plain allowing verdict.
func Allow() Verdict {
	return Verdict{Allowed: true}
}

// Warn returns an allowing verdict that carries a warning.
func Warn(warning string) Verdict {
	return Verdict{Allowed: true, Warning: warning}
}

// rule pairs a compiled pattern with the human-readable reason attached to
// its verdict.
type rule struct {
	pattern *regexp.Regexp
	reason  string
}

// Engine evaluates commands and paths against ordered rule tables. The
// zero tables come from builtins.go; LoadRules can append user-defined
// entries, which always evaluate after the built-in entries of the same
// table.
type Engine struct {
	allowPrefixes  []string
	denyCommands   []rule
	warnCommands   []rule
	protectedPaths []rule
	sensitivePaths []rule
}

// NewEngine returns an engine loaded with the built-in rule tables.
func NewEngine() *Engine {
	return &Engine{
		allowPrefixes:  builtinAllowPrefixes,
		denyCommands:   builtinDenyCommands,
		warnCommands:   builtinWarnCommands,
		protectedPaths: builtinProtectedPaths,
		sensitivePaths: builtinSensitivePaths,
	}
}

// CheckCommand classifies a proposed shell command.
//
// Order: (1) known-safe prefixes short-circuit allow, (2) destructive
// patterns short-circuit deny with the matched reason, (3) warn patterns
// allow with a warning, (4) anything unrecognized is allowed. The
// default-allow is a deliberate policy choice, not an oversight: the agent
// routinely needs commands no table anticipates, and the denylist carries
// the actually destructive shapes.
func (e *Engine) CheckCommand(command string) Verdict {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return Allow()
	}

	for _, prefix := range e.allowPrefixes {
		if cmd == prefix || strings.HasPrefix(cmd, prefix+" ") {
			return Allow()
		}
	}

	for _, r := range e.denyCommands {
		if r.pattern.MatchString(cmd) {
			return Deny(r.reason)
		}
	}

	for _, r := range e.warnCommands {
		if r.pattern.MatchString(cmd) {
			return Warn(r.reason)
		}
	}

	return Allow()
}

// CheckPath classifies a proposed file operation. Relative paths are
// resolved against repoRoot. Paths escaping the repository root are denied
// outright, then the protected table (secrets, VCS internals, lockfiles),
// then the sensitive table (manifests, CI workflows, framework config)
// which allows with a warning.
func (e *Engine) CheckPath(path, repoRoot string) Verdict {
	if strings.TrimSpace(path) == "" {
		return Deny("empty path")
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(repoRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(filepath.Clean(repoRoot), resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Deny(fmt.Sprintf("path %s resolves outside the repository root", path))
	}
	rel = filepath.ToSlash(rel)

	for _, r := range e.protectedPaths {
		if r.pattern.MatchString(rel) {
			return Deny(r.reason)
		}
	}

	for _, r := range e.sensitivePaths {
		if r.pattern.MatchString(rel) {
			return Warn(r.reason)
		}
	}

	return Allow()
}
