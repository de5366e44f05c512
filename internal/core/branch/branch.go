// Package branch contains the pure logic for deriving branch names from
// free-text change requests. Naming is deterministic: the same request
// always produces the same branch name, so a retried job lands on the
// branch its previous attempt created.
package branch

import (
	"regexp"
	"strings"
)

// Type is the semantic category of a change request.
type Type string

const (
	TypeFix      Type = "fix"
	TypeFeat     Type = "feat"
	TypeRefactor Type = "refactor"
	TypeChore    Type = "chore"
)

// maxSlugLen bounds the slug portion of a branch name.
const maxSlugLen = 48

// Keyword tables evaluated in precedence order: fix > feat > refactor > chore.
var (
	fixKeywords      = []string{"bug", "fix", "error", "broken"}
	featKeywords     = []string{"feature", "add", "implement", "new"}
	refactorKeywords = []string{"refactor", "improve", "optimize", "clean"}
)

// leadingFiller lists action verbs and articles stripped from the front of a
// request before slugging ("Fix the login bug" slugs as "login-bug").
var leadingFiller = map[string]bool{
	"please":    true,
	"fix":       true,
	"add":       true,
	"implement": true,
	"create":    true,
	"update":    true,
	"refactor":  true,
	"improve":   true,
	"make":      true,
	"the":       true,
	"a":         true,
	"an":        true,
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	separators   = regexp.MustCompile(`[\s-]+`)
)

// Classify maps a request description to a branch type using keyword
// precedence. Matching is case-insensitive substring containment.
func Classify(description string) Type {
	lower := strings.ToLower(description)
	for _, kw := range fixKeywords {
		if strings.Contains(lower, kw) {
			return TypeFix
		}
	}
	for _, kw := range featKeywords {
		if strings.Contains(lower, kw) {
			return TypeFeat
		}
	}
	for _, kw := range refactorKeywords {
		if strings.Contains(lower, kw) {
			return TypeRefactor
		}
	}
	return TypeChore
}

// Slug converts a request description into a branch-safe slug: leading
// verbs/articles stripped, lowercased, non [a-z0-9 -] removed, whitespace
// and hyphen runs collapsed, trimmed, and truncated on a word boundary.
func Slug(description string) string {
	s := strings.ToLower(strings.TrimSpace(description))
	s = stripLeadingFiller(s)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxSlugLen {
		cut := s[:maxSlugLen]
		if s[maxSlugLen] != '-' {
			// Truncation landed mid-word; drop the partial word.
			if i := strings.LastIndex(cut, "-"); i > 0 {
				cut = cut[:i]
			}
		}
		s = strings.Trim(cut, "-")
	}

	if s == "" {
		return "update"
	}
	return s
}

// Name returns the full branch name "<type>/<slug>" for a description.
func Name(description string) string {
	return string(Classify(description)) + "/" + Slug(description)
}

func stripLeadingFiller(s string) string {
	words := strings.Fields(s)
	i := 0
	for i < len(words)-1 && leadingFiller[words[i]] {
		i++
	}
	return strings.Join(words[i:], " ")
}
