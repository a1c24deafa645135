package handler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/service"
)

// TicketHandler handles tracker ticket import and listing.
type TicketHandler struct {
	ingest *service.IngestService
	store  port.Store
}

// NewTicketHandler creates a new ticket handler.
func NewTicketHandler(ingest *service.IngestService, store port.Store) *TicketHandler {
	return &TicketHandler{ingest: ingest, store: store}
}

// Register sets up ticket routes.
func (h *TicketHandler) Register(router fiber.Router) {
	router.Post("/tickets/import", h.Import)
	router.Get("/tickets", h.List)
}

// Import bulk-ingests tickets exported from an external tracker. The whole
// batch is validated before anything is embedded or written.
func (h *TicketHandler) Import(c fiber.Ctx) error {
	var body struct {
		Tickets []domain.Ticket `json:"tickets"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(body.Tickets) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tickets is required", "field": "tickets"})
	}
	for i, t := range body.Tickets {
		if strings.TrimSpace(t.Key) == "" {
			field := fmt.Sprintf("tickets[%d].key", i)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": field + " is required", "field": field})
		}
		if strings.TrimSpace(t.Title) == "" {
			field := fmt.Sprintf("tickets[%d].title", i)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": field + " is required", "field": field})
		}
	}

	n, err := h.ingest.ImportTickets(c.Context(), body.Tickets)
	if err != nil {
		slog.Error("ticket import failed", "imported", n, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "import failed", "imported": n})
	}
	return c.JSON(fiber.Map{"imported": n})
}

// List returns all ingested tickets.
func (h *TicketHandler) List(c fiber.Ctx) error {
	tickets, err := h.store.ListTickets(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"tickets": tickets, "count": len(tickets)})
}
