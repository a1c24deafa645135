package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/probelabs/hindsight/internal/adapter/ai"
	"github.com/probelabs/hindsight/internal/adapter/github"
	"github.com/probelabs/hindsight/internal/adapter/store"
	"github.com/probelabs/hindsight/internal/embedding"
	"github.com/probelabs/hindsight/internal/handler"
	"github.com/probelabs/hindsight/internal/jobs"
	"github.com/probelabs/hindsight/internal/mcp"
	"github.com/probelabs/hindsight/internal/middleware"
	"github.com/probelabs/hindsight/internal/search"
	"github.com/probelabs/hindsight/internal/service"
	"github.com/probelabs/hindsight/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting Hindsight",
		"port", cfg.Port,
		"ollama_embed", cfg.OllamaEmbedURL,
		"ollama_chat", cfg.OllamaChatURL,
		"embedding_dim", cfg.EmbeddingDimension,
		"mcp_enabled", cfg.MCPEnabled,
	)
	if cfg.GitHubToken == "" {
		slog.Warn("GITHUB_TOKEN not set: repository sync and GitHub search are disabled until it is configured")
	}
	if cfg.GitHubWebhookSecret == "" {
		slog.Warn("GITHUB_WEBHOOK_SECRET not set: webhook signatures will NOT be verified")
	}

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.EnsureSchema(context.Background(), cfg.EmbeddingDimension); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// ── Adapters ─────────────────────────────────────────────────────────
	ollamaAI := ai.NewOllamaProvider(
		ai.OllamaEndpointConfig{
			BaseURL: cfg.OllamaEmbedURL,
			Model:   cfg.OllamaEmbedModel,
			Token:   cfg.OllamaEmbedToken,
		},
		ai.OllamaEndpointConfig{
			BaseURL: cfg.OllamaChatURL,
			Model:   cfg.OllamaChatModel,
			Token:   cfg.OllamaChatToken,
		},
	)
	githubClient := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken)
	engine := embedding.NewEngine(ollamaAI, cfg.EmbeddingDimension, cfg.EmbedCacheSize)

	// ── Sync job registry ────────────────────────────────────────────────
	broker := jobs.NewBroker()
	registry := jobs.NewRegistry(broker)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go registry.StartSweeper(sweepCtx)

	// ── Services ─────────────────────────────────────────────────────────
	ingestService := service.NewIngestService(pgStore, engine)
	syncService := service.NewSyncService(githubClient, pgStore, ingestService, registry)
	searchService := search.NewService(pgStore, engine)
	analysisService := service.NewAnalysisService(ollamaAI, pgStore, searchService)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all mutating requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Routes ───────────────────────────────────────────────────────────
	api := app.Group("/api/v1")

	analysisHandler := handler.NewAnalysisHandler(analysisService, pgStore)
	analysisHandler.Register(api)

	syncHandler := handler.NewSyncHandler(syncService, registry, broker)
	syncHandler.Register(api)

	webhookHandler := handler.NewWebhookHandler(cfg.GitHubWebhookSecret, ingestService, githubClient)
	webhookHandler.Register(api)

	ticketHandler := handler.NewTicketHandler(ingestService, pgStore)
	ticketHandler.Register(api)

	searchHandler := handler.NewSearchHandler(searchService, githubClient)
	searchHandler.Register(api)

	projectHandler := handler.NewProjectContextHandler(pgStore)
	projectHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	var mcpServer *mcp.Server
	if cfg.MCPEnabled {
		mcpServer = mcp.NewServer(analysisService, searchService, syncService, registry, pgStore, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	go func() {
		slog.Info("🌐 Fiber listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mcpServer != nil {
		if err := mcpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("MCP server shutdown failed", "error", err)
		}
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
