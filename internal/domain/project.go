package domain

import "time"

// ProjectContext is the separately maintained project description prepended
// to every analysis prompt. A single row per deployment.
type ProjectContext struct {
	ID                string    `json:"id"         db:"id"`
	TechStack         string    `json:"tech_stack" db:"tech_stack"`
	DirectoryOverview string    `json:"directory_overview" db:"directory_overview"`
	Notes             string    `json:"notes,omitempty" db:"notes"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Empty reports whether there is nothing worth prepending to a prompt.
func (p *ProjectContext) Empty() bool {
	return p.TechStack == "" && p.DirectoryOverview == "" && p.Notes == ""
}
