package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/hindsight/internal/embedding"
	"github.com/probelabs/hindsight/internal/service"
)

func newTicketApp(store *fakeStore) *fiber.App {
	ingest := service.NewIngestService(store, embedding.NewEngine(nil, 32, 8))
	app := fiber.New()
	NewTicketHandler(ingest, store).Register(app.Group("/api/v1"))
	return app
}

func TestTicketImportPersistsBatch(t *testing.T) {
	store := newFakeStore()
	app := newTicketApp(store)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/tickets/import", map[string]interface{}{
		"tickets": []map[string]interface{}{
			{"key": "PROJ-1", "title": "Login broken", "description": "Password reset loops", "status": "done"},
			{"key": "PROJ-2", "title": "Slow dashboard", "status": "open"},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), decodeBody(t, resp)["imported"])

	require.Len(t, store.tickets, 2)
	assert.NotEmpty(t, store.tickets["PROJ-1"].Embedding)
}

func TestTicketImportRejectsEmptyBatch(t *testing.T) {
	app := newTicketApp(newFakeStore())

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/tickets/import", map[string]interface{}{
		"tickets": []map[string]interface{}{},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "tickets", decodeBody(t, resp)["field"])
}

func TestTicketImportValidatesBeforeWriting(t *testing.T) {
	store := newFakeStore()
	app := newTicketApp(store)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/tickets/import", map[string]interface{}{
		"tickets": []map[string]interface{}{
			{"key": "PROJ-1", "title": "Valid"},
			{"key": "", "title": "No key"},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "tickets[1].key", decodeBody(t, resp)["field"])
	assert.Empty(t, store.tickets, "a bad batch must not be partially imported")
}

func TestTicketList(t *testing.T) {
	store := newFakeStore()
	app := newTicketApp(store)

	_, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/tickets/import", map[string]interface{}{
		"tickets": []map[string]interface{}{{"key": "PROJ-9", "title": "Flaky export"}},
	}))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decodeBody(t, resp)["count"])
}
