package domain

import "time"

// PullRequest is the durable form of a remote pull request, enriched with an
// embedding over its searchable text. A PR is unique per (Number, RepoURL).
type PullRequest struct {
	ID        string        `json:"id"         db:"id"`
	Number    int           `json:"number"     db:"number"`
	RepoURL   string        `json:"repo_url"   db:"repo_url"`
	Title     string        `json:"title"      db:"title"`
	Body      string        `json:"body"       db:"body"`
	Author    string        `json:"author"     db:"author"`
	URL       string        `json:"url"        db:"url"`
	State     string        `json:"state"      db:"state"` // open, closed, merged
	MergedAt  *time.Time    `json:"merged_at,omitempty" db:"merged_at"`
	Labels    []string      `json:"labels"     db:"labels"`
	Files     []ChangedFile `json:"files"      db:"files"`
	Diff      string        `json:"-"          db:"diff"`
	Embedding []float32     `json:"-"          db:"embedding"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"` // remote updated_at
	SyncedAt  time.Time     `json:"synced_at"  db:"synced_at"`
}

// ChangedFile describes one file touched by a pull request.
type ChangedFile struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Status    string `json:"status"` // added, modified, removed, renamed
}

// PR state constants.
const (
	PRStateOpen   = "open"
	PRStateClosed = "closed"
	PRStateMerged = "merged"
)

// FilePaths returns just the paths of the changed files.
func (p *PullRequest) FilePaths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = f.Path
	}
	return paths
}
