package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
)

// analyzeBugTool returns the tool definition for analyze_bug.
func analyzeBugTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_bug",
		Description: "Diagnose a bug report against the project's synced pull request, commit and ticket history. Returns a verdict on whether the bug appears already fixed, with related changes ranked by relevance.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Bug report, error message or stack trace to diagnose",
				},
				"input_type": map[string]interface{}{
					"type":        "string",
					"description": "What kind of text is being submitted",
					"enum":        []string{"bug_report", "error_message", "stack_trace"},
					"default":     "bug_report",
				},
			},
			Required: []string{"text"},
		},
	}
}

// searchHistoryTool returns the tool definition for search_history.
func searchHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_history",
		Description: "Similarity-search the synced history for pull requests, commits and tickets related to a query. Retrieval only, no LLM verdict.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language description of the change or bug to look for",
				},
			},
			Required: []string{"query"},
		},
	}
}

// startSyncTool returns the tool definition for start_sync.
func startSyncTool() mcp.Tool {
	return mcp.Tool{
		Name:        "start_sync",
		Description: "Start a background job that syncs a GitHub repository's pull requests into the history store. Returns immediately with a job id; poll sync_status for progress.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"owner": map[string]interface{}{
					"type":        "string",
					"description": "Repository owner (user or organization)",
				},
				"repo": map[string]interface{}{
					"type":        "string",
					"description": "Repository name",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of pull requests to inspect, 0 for no limit",
					"default":     0,
					"minimum":     0,
				},
			},
			Required: []string{"owner", "repo"},
		},
	}
}

// syncStatusTool returns the tool definition for sync_status.
func syncStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_status",
		Description: "Look up a sync job by id and return its status, progress counters and summary message.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{
					"type":        "string",
					"description": "Job id returned by start_sync",
				},
			},
			Required: []string{"job_id"},
		},
	}
}

// handleAnalyzeBug handles the analyze_bug tool invocation.
func (s *Server) handleAnalyzeBug(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments")
	}

	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, fmt.Errorf("text parameter is required")
	}
	inputType := getStringDefault(args, "input_type", "bug_report")

	result, err := s.analysis.Analyze(ctx, text, inputType)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	s.audit("analyze_bug", map[string]interface{}{
		"input_type": inputType,
		"status":     result.Status,
		"confidence": result.Confidence,
	})
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleSearchHistory handles the search_history tool invocation.
func (s *Server) handleSearchHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments")
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	related, err := s.search.FindRelated(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	s.audit("search_history", map[string]interface{}{
		"prs":     len(related.PRs),
		"commits": len(related.Commits),
		"tickets": len(related.Tickets),
	})
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"prs":     related.PRs,
		"commits": related.Commits,
		"tickets": related.Tickets,
	})), nil
}

// handleStartSync handles the start_sync tool invocation.
func (s *Server) handleStartSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments")
	}

	owner, ok := args["owner"].(string)
	if !ok || owner == "" {
		return nil, fmt.Errorf("owner parameter is required")
	}
	repo, ok := args["repo"].(string)
	if !ok || repo == "" {
		return nil, fmt.Errorf("repo parameter is required")
	}
	limit := getIntDefault(args, "limit", 0)
	if limit < 0 {
		return nil, fmt.Errorf("limit must be zero or positive")
	}

	job, err := s.sync.Start(owner, repo, limit)
	if err != nil {
		if errors.Is(err, port.ErrMissingToken) {
			return nil, fmt.Errorf("GITHUB_TOKEN not configured")
		}
		return nil, fmt.Errorf("start sync: %w", err)
	}

	s.audit("start_sync", map[string]interface{}{
		"owner": owner,
		"repo":  repo,
		"limit": limit,
	})
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})), nil
}

// handleSyncStatus handles the sync_status tool invocation.
func (s *Server) handleSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments")
	}

	jobID, ok := args["job_id"].(string)
	if !ok || jobID == "" {
		return nil, fmt.Errorf("job_id parameter is required")
	}

	job, found := s.registry.Get(jobID)
	if !found {
		return nil, fmt.Errorf("%w: %s", port.ErrJobNotFound, jobID)
	}
	return mcp.NewToolResultText(formatJSON(job)), nil
}

// audit records a successful tool call. Written asynchronously so a slow or
// broken store never delays the tool response.
func (s *Server) audit(tool string, detail map[string]interface{}) {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = []byte("{}")
	}
	entry := &domain.AuditLog{
		Action:     domain.AuditActionMCPCall,
		Resource:   "mcp",
		ResourceID: tool,
		Details:    string(payload),
	}
	go func() {
		if err := s.store.InsertAuditLog(context.Background(), entry); err != nil {
			slog.Error("failed to write MCP audit log", "tool", tool, "error", err)
		}
	}()
}

// formatJSON renders a tool result payload as indented JSON.
func formatJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// getStringDefault extracts a string parameter with a default value.
func getStringDefault(args map[string]interface{}, key, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value. JSON
// numbers decode as float64.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
