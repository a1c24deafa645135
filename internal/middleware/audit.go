package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/domain"
)

// AuditWriter is the slice of the store the middleware needs.
type AuditWriter interface {
	InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error
}

// AuditMiddleware records every mutating API call. Reads are not audited,
// and a failed audit write never affects the request it describes.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		method := c.Method()
		switch method {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		err := c.Next()

		details, _ := json.Marshal(map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
		})

		entry := &domain.AuditLog{
			Action:     actionForPath(method, path),
			Resource:   "api",
			ResourceID: path,
			Details:    string(details),
			IP:         ip,
			UserAgent:  userAgent,
		}

		// Write asynchronously — all values are captured, safe to use in goroutine
		go func() {
			if writeErr := writer.InsertAuditLog(context.Background(), entry); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

// actionForPath maps known mutating routes to their audit action names.
func actionForPath(method, path string) string {
	switch {
	case strings.Contains(path, "/analyze"):
		return domain.AuditActionAnalysisRun
	case strings.Contains(path, "/sync"):
		return domain.AuditActionSyncStart
	case strings.Contains(path, "/webhooks"):
		return domain.AuditActionWebhook
	case strings.Contains(path, "/tickets"):
		return domain.AuditActionTicketImport
	case strings.Contains(path, "/project-context"):
		return domain.AuditActionContextEdit
	}
	return strings.ToLower(method) + "_request"
}
