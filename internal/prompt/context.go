package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/search"
)

const (
	// DiffExcerptThreshold is the minimum similarity a PR needs before its
	// diff is quoted in the prompt. Diffs are the bulkiest evidence, so only
	// the closest matches earn the space.
	DiffExcerptThreshold = 0.4

	// DiffExcerptChars bounds how much of a PR diff is quoted.
	DiffExcerptChars = 2000
)

// BuildContext assembles the evidence block for one analysis prompt: the
// project profile verbatim, then pull requests, commits and tickets in that
// fixed order. Empty sections render a placeholder line so the model knows
// the source was consulted and came up empty.
func BuildContext(project string, prs []search.Match[domain.PullRequest], commits []search.Match[domain.Commit], tickets []search.Match[domain.Ticket]) string {
	var b strings.Builder

	if project != "" {
		b.WriteString(project)
		b.WriteString("\n\n")
	}

	b.WriteString("=== Related Pull Requests ===\n")
	if len(prs) == 0 {
		b.WriteString("No matching pull requests found.\n")
	}
	for _, m := range prs {
		writePR(&b, m)
	}

	b.WriteString("\n=== Related Commits ===\n")
	if len(commits) == 0 {
		b.WriteString("No matching commits found.\n")
	}
	for _, m := range commits {
		writeCommit(&b, m)
	}

	b.WriteString("\n=== Related Tickets ===\n")
	if len(tickets) == 0 {
		b.WriteString("No matching tickets found.\n")
	}
	for _, m := range tickets {
		writeTicket(&b, m)
	}

	return b.String()
}

func writePR(b *strings.Builder, m search.Match[domain.PullRequest]) {
	pr := m.Item
	fmt.Fprintf(b, "PR #%d: %s (%.0f%% similar)\n", pr.Number, pr.Title, m.Similarity*100)
	fmt.Fprintf(b, "  Author: %s | URL: %s\n", pr.Author, pr.URL)
	if pr.MergedAt != nil {
		fmt.Fprintf(b, "  Merged: %s\n", pr.MergedAt.Format(time.DateOnly))
	}
	if len(pr.Files) > 0 {
		fmt.Fprintf(b, "  Files: %s\n", strings.Join(pr.FilePaths(), ", "))
	}
	if pr.Body != "" {
		fmt.Fprintf(b, "  Description: %s\n", pr.Body)
	}
	if m.Similarity >= DiffExcerptThreshold && pr.Diff != "" {
		excerpt := pr.Diff
		truncated := false
		if len(excerpt) > DiffExcerptChars {
			excerpt = excerpt[:DiffExcerptChars]
			truncated = true
		}
		b.WriteString("  Diff excerpt:\n")
		b.WriteString(excerpt)
		if truncated {
			b.WriteString("\n... (diff truncated)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeCommit(b *strings.Builder, m search.Match[domain.Commit]) {
	c := m.Item
	fmt.Fprintf(b, "Commit %s: %s (%.0f%% similar)\n", c.ShortSHA(), c.Message, m.Similarity*100)
	fmt.Fprintf(b, "  Author: %s | URL: %s\n", c.Author, c.URL)
	if len(c.Files) > 0 {
		fmt.Fprintf(b, "  Files: %s\n", strings.Join(c.Files, ", "))
	}
	b.WriteString("\n")
}

func writeTicket(b *strings.Builder, m search.Match[domain.Ticket]) {
	t := m.Item
	fmt.Fprintf(b, "Ticket %s: %s (%.0f%% similar)\n", t.Key, t.Title, m.Similarity*100)
	fmt.Fprintf(b, "  Status: %s | Priority: %s | URL: %s\n", t.Status, t.Priority, t.URL)
	b.WriteString("\n")
}

// ProjectProfile renders the stored project context in the form prepended to
// prompts. Returns "" when nothing has been maintained yet.
func ProjectProfile(pc *domain.ProjectContext) string {
	if pc == nil || pc.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("=== Project Context ===\n")
	if pc.TechStack != "" {
		fmt.Fprintf(&b, "Tech stack: %s\n", pc.TechStack)
	}
	if pc.DirectoryOverview != "" {
		fmt.Fprintf(&b, "Directory overview:\n%s\n", pc.DirectoryOverview)
	}
	if pc.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", pc.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}
