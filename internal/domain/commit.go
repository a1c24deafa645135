package domain

import "time"

// Commit is an ingested repository commit. Commits are unique per SHA.
type Commit struct {
	ID          string    `json:"id"           db:"id"`
	SHA         string    `json:"sha"          db:"sha"`
	RepoURL     string    `json:"repo_url"     db:"repo_url"`
	Message     string    `json:"message"      db:"message"`
	Author      string    `json:"author"       db:"author"`
	URL         string    `json:"url"          db:"url"`
	Files       []string  `json:"files"        db:"files"`
	Embedding   []float32 `json:"-"            db:"embedding"`
	CommittedAt time.Time `json:"committed_at" db:"committed_at"`
	SyncedAt    time.Time `json:"synced_at"    db:"synced_at"`
}

// ShortSHA returns the abbreviated commit hash used in summaries.
func (c *Commit) ShortSHA() string {
	if len(c.SHA) > 7 {
		return c.SHA[:7]
	}
	return c.SHA
}
