package domain

import "time"

// Ticket is an issue imported from an external tracker. Tickets are unique
// per Key (e.g. "PROJ-123").
type Ticket struct {
	ID          string    `json:"id"          db:"id"`
	Key         string    `json:"key"         db:"key"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status"      db:"status"`
	Priority    string    `json:"priority"    db:"priority"`
	Labels      []string  `json:"labels"      db:"labels"`
	URL         string    `json:"url"         db:"url"`
	Embedding   []float32 `json:"-"           db:"embedding"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"  db:"updated_at"`
}
