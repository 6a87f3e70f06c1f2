// BizPilot - Agent Action Orchestration & Session Persistence Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bizpilot/bizpilot/internal/actions"
	"github.com/bizpilot/bizpilot/internal/api"
	"github.com/bizpilot/bizpilot/internal/config"
	"github.com/bizpilot/bizpilot/internal/engine"
	"github.com/bizpilot/bizpilot/internal/identity"
	"github.com/bizpilot/bizpilot/internal/memory"
	"github.com/bizpilot/bizpilot/internal/middleware"
	"github.com/bizpilot/bizpilot/internal/session"
	"github.com/bizpilot/bizpilot/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Connect to the reasoning engine. Chat cannot function without it, so
	// a bad endpoint fails startup fast.
	engineClient, err := engine.NewGrpcClient(cfg.EngineAddr, logger)
	if err != nil {
		slog.Error("Failed to connect to reasoning engine", "error", err, "address", cfg.EngineAddr)
		os.Exit(1)
	}
	defer engineClient.Close()

	// Initialize services.
	contexts := memory.New(repo)
	executor := actions.NewExecutor(repo, contexts, cfg.PendingActionTTL)
	defer executor.Close()
	sessionSvc := session.NewService(repo)

	// Initialize handlers.
	chatHandler := session.NewHandler(sessionSvc, engineClient, contexts, executor, cfg)
	actionHandler := actions.NewHandler(executor)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	chatHandler.RegisterRoutes(r)
	actionHandler.RegisterRoutes(r)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.Error(w, http.StatusNotFound, "not found")
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
