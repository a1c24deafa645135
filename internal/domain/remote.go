package domain

import "time"

// RemotePR is a pull request as listed by the repository host, before any
// local enrichment. Fetched, never owned.
type RemotePR struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Author    string     `json:"author"`
	URL       string     `json:"url"`
	State     string     `json:"state"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
	Labels    []string   `json:"labels,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RemoteChangedFile is one file entry from the host's PR files listing,
// including the raw patch when the host provides one.
type RemoteChangedFile struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Status    string `json:"status"`
	Patch     string `json:"patch,omitempty"`
}

// SearchHit is a single result from the host's keyword search.
type SearchHit struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	State  string `json:"state"`
	Repo   string `json:"repo"`
}
