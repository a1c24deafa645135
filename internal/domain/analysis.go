package domain

import "time"

// AnalysisResult is the outcome of diagnosing a bug report against the
// ingested history. Related items are ranked by relevance, best first.
type AnalysisResult struct {
	ID             string          `json:"id"              db:"id"`
	BugDescription string          `json:"bug_description" db:"bug_description"`
	Status         string          `json:"status"          db:"status"` // fixed, not_fixed, partially_fixed, unknown
	Confidence     float64         `json:"confidence"      db:"confidence"`
	Summary        string          `json:"summary"         db:"summary"`
	RootCause      string          `json:"root_cause,omitempty"  db:"root_cause"`
	Explanation    string          `json:"explanation,omitempty" db:"explanation"`
	FixSuggestion  *FixSuggestion  `json:"fix_suggestion,omitempty" db:"fix_suggestion"`
	RelatedPRs     []RelatedPR     `json:"related_prs"     db:"related_prs"`
	RelatedCommits []RelatedCommit `json:"related_commits" db:"related_commits"`
	RelatedTickets []RelatedTicket `json:"related_tickets" db:"related_tickets"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
}

// FixSuggestion is the model's proposed remediation.
type FixSuggestion struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
	CodeExample string   `json:"code_example,omitempty"`
}

// RelatedPR is a pull request surfaced as relevant to a diagnosis.
type RelatedPR struct {
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Author         string     `json:"author"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	Files          []string   `json:"files,omitempty"`
	RelevanceScore float64    `json:"relevance_score"`
}

// RelatedCommit is a commit surfaced as relevant to a diagnosis.
type RelatedCommit struct {
	SHA            string   `json:"sha"`
	Message        string   `json:"message"`
	URL            string   `json:"url"`
	Author         string   `json:"author"`
	Files          []string `json:"files,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
}

// RelatedTicket is a tracker issue surfaced as relevant to a diagnosis.
type RelatedTicket struct {
	Key            string  `json:"key"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Status         string  `json:"status"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ChatTurn is one prior exchange in a multi-turn diagnosis conversation.
// Follow-up turns carry the history forward instead of re-running retrieval.
type ChatTurn struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// Analysis status constants. Status reports whether the described bug
// appears to have been addressed by the ingested history.
const (
	AnalysisStatusFixed          = "fixed"
	AnalysisStatusNotFixed       = "not_fixed"
	AnalysisStatusPartiallyFixed = "partially_fixed"
	AnalysisStatusUnknown        = "unknown"
)

// ValidAnalysisStatus reports whether s is one of the recognized statuses.
func ValidAnalysisStatus(s string) bool {
	switch s {
	case AnalysisStatusFixed, AnalysisStatusNotFixed, AnalysisStatusPartiallyFixed, AnalysisStatusUnknown:
		return true
	}
	return false
}
