package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/port"
)

// AuditHandler handles audit log endpoints.
type AuditHandler struct {
	store port.Store
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(store port.Store) *AuditHandler {
	return &AuditHandler{store: store}
}

// Register sets up audit routes.
func (h *AuditHandler) Register(router fiber.Router) {
	router.Get("/audit", h.ListLogs)
}

// ListLogs returns recent audit entries, optionally filtered by action.
func (h *AuditHandler) ListLogs(c fiber.Ctx) error {
	limitStr := c.Query("limit", "100")
	limit, _ := strconv.Atoi(limitStr)
	action := c.Query("action", "")

	logs, err := h.store.ListAuditLogs(c.Context(), limit, action)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}
