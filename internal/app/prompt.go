package app

import (
	"fmt"
	"strings"

	"github.com/example/patchbot/internal/core/job"
)

// buildPrompt renders the instruction handed to the coding agent. For
// follow-ups the prompt carries the original request, the work done so far
// and explicit guidance that changes land on the existing branch and pull
// request; the agent otherwise tends to start over.
func buildPrompt(j *job.Job, tc *job.ThreadContext, prContext []string) string {
	var b strings.Builder

	if tc != nil {
		b.WriteString("This is a follow-up to earlier work in this conversation.\n\n")
		b.WriteString("Original request:\n")
		b.WriteString(tc.OriginalRequest)
		b.WriteString("\n\nWork so far:\n")
		fmt.Fprintf(&b, "- Branch: %s\n", tc.BranchName)
		if tc.PRURL != "" {
			fmt.Fprintf(&b, "- Pull request: %s\n", tc.PRURL)
		}
		if len(tc.FilesChanged) > 0 {
			fmt.Fprintf(&b, "- Files changed so far: %s\n", strings.Join(tc.FilesChanged, ", "))
		}
		b.WriteString("\nNew instruction:\n")
		b.WriteString(j.Description)
		fmt.Fprintf(&b, "\n\nYou are already on branch %s. Make the changes on this branch; "+
			"they will be added to the existing pull request. Do not create a new branch.", tc.BranchName)
	} else {
		b.WriteString(j.Description)
	}

	for _, pr := range prContext {
		b.WriteString("\n\nReferenced pull request:\n")
		b.WriteString(pr)
	}

	return b.String()
}

// commitMessage builds a conventional one-line subject from the request.
func commitMessage(j *job.Job) string {
	subject := strings.TrimSpace(j.Description)
	if i := strings.IndexAny(subject, "\r\n"); i >= 0 {
		subject = subject[:i]
	}
	if runes := []rune(subject); len(runes) > 72 {
		subject = strings.TrimSpace(string(runes[:72]))
	}
	return subject
}

// prBody renders the pull request description.
func prBody(j *job.Job, analysis string, files []string) string {
	var b strings.Builder
	b.WriteString("## Request\n\n")
	b.WriteString(j.Description)
	if analysis != "" {
		b.WriteString("\n\n## Summary\n\n")
		b.WriteString(analysis)
	}
	if len(files) > 0 {
		b.WriteString("\n\n## Files changed\n\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	b.WriteString("\n---\n_Opened automatically by patchbot._\n")
	return b.String()
}
