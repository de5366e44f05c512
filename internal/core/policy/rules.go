package policy

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// UserRule is one user-supplied pattern with the reason reported on match.
type UserRule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// RuleFile is the on-disk shape of a user policy extension. User rules are
// appended after the built-in entries of the same table, so built-in
// ordering (and the allow > deny > warn evaluation order) is preserved.
type RuleFile struct {
	AllowPrefixes  []string   `yaml:"allow_prefixes"`
	DenyCommands   []UserRule `yaml:"deny_commands"`
	WarnCommands   []UserRule `yaml:"warn_commands"`
	ProtectedPaths []UserRule `yaml:"protected_paths"`
	SensitivePaths []UserRule `yaml:"sensitive_paths"`
}

// LoadRules reads a YAML rule file and appends its entries to the engine's
// tables. Invalid patterns fail the whole load; a policy file that half
// applies is worse than none.
func (e *Engine) LoadRules(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy rules: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse policy rules: %w", err)
	}

	return e.Append(&file)
}

// Append compiles and appends the rules from file to the engine's tables.
func (e *Engine) Append(file *RuleFile) error {
	deny, err := compileRules(file.DenyCommands, "deny_commands")
	if err != nil {
		return err
	}
	warn, err := compileRules(file.WarnCommands, "warn_commands")
	if err != nil {
		return err
	}
	protected, err := compileRules(file.ProtectedPaths, "protected_paths")
	if err != nil {
		return err
	}
	sensitive, err := compileRules(file.SensitivePaths, "sensitive_paths")
	if err != nil {
		return err
	}

	e.allowPrefixes = append(e.allowPrefixes, file.AllowPrefixes...)
	e.denyCommands = append(e.denyCommands, deny...)
	e.warnCommands = append(e.warnCommands, warn...)
	e.protectedPaths = append(e.protectedPaths, protected...)
	e.sensitivePaths = append(e.sensitivePaths, sensitive...)
	return nil
}

func compileRules(userRules []UserRule, table string) ([]rule, error) {
	var compiled []rule
	for _, ur := range userRules {
		if ur.Pattern == "" {
			return nil, fmt.Errorf("empty pattern in %s", table)
		}
		if ur.Reason == "" {
			return nil, fmt.Errorf("rule %q in %s has no reason", ur.Pattern, table)
		}
		p, err := regexp.Compile(ur.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q in %s: %w", ur.Pattern, table, err)
		}
		compiled = append(compiled, rule{pattern: p, reason: ur.Reason})
	}
	return compiled, nil
}
