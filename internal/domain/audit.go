package domain

import "time"

// AuditLog records every significant action in the system for later review.
type AuditLog struct {
	ID         string    `json:"id"         db:"id"`
	Action     string    `json:"action"     db:"action"`
	Resource   string    `json:"resource"   db:"resource"`
	ResourceID string    `json:"resource_id" db:"resource_id"`
	Details    string    `json:"details"    db:"details"` // JSON blob
	IP         string    `json:"ip"         db:"ip"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Audit action constants.
const (
	AuditActionAnalysisRun  = "analysis_run"
	AuditActionSyncStart    = "sync_start"
	AuditActionWebhook      = "webhook_received"
	AuditActionTicketImport = "ticket_import"
	AuditActionContextEdit  = "context_edit"
	AuditActionMCPCall      = "mcp_call"
)
