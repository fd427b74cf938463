// CareNav - trusted-source health companion server
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

	"github.com/ashureev/carenav/internal/api"
	"github.com/ashureev/carenav/internal/chat"
	"github.com/ashureev/carenav/internal/config"
	"github.com/ashureev/carenav/internal/gateway"
	"github.com/ashureev/carenav/internal/identity"
	"github.com/ashureev/carenav/internal/knowledge"
	"github.com/ashureev/carenav/internal/llm"
	"github.com/ashureev/carenav/internal/middleware"
	"github.com/ashureev/carenav/internal/store"
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

	slog.Info("Starting server", "port", cfg.Port)

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

	catalog, err := knowledge.LoadDir(cfg.KnowledgeDir)
	if err != nil {
		slog.Error("Failed to load knowledge pack", "dir", cfg.KnowledgeDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Knowledge pack loaded", "documents", catalog.Len())

	var retriever gateway.Retriever
	if cfg.Gateway.URL != "" {
		retriever = gateway.NewClient(cfg.Gateway.URL, 0)
		slog.Info("Using remote retrieval gateway", "url", cfg.Gateway.URL)
	} else {
		svc := gateway.New(gateway.Config{
			AllowedDomains:       cfg.Gateway.AllowedDomains,
			MaxFetchBytes:        cfg.Gateway.MaxFetchBytes,
			MaxConcurrentFetches: cfg.Gateway.MaxConcurrentFetches,
			SearchEndpoint:       cfg.Gateway.SearchEndpoint,
			SearchAPIKey:         cfg.Gateway.SearchAPIKey,
			SearchQPS:            cfg.Gateway.SearchQPS,
			FetchTimeout:         cfg.Gateway.FetchTimeout,
			SearchTimeout:        cfg.Gateway.SearchTimeout,
		}, repo, logger)
		if svc.AllowList().Len() == 0 {
			slog.Warn("ALLOWED_DOMAINS is empty, search and fetch will refuse every request")
		}
		if cfg.Gateway.SearchAPIKey == "" {
			slog.Warn("SEARCH_API_KEY is not set, search is disabled")
		}
		retriever = svc
		slog.Info("Retrieval gateway ready", "allowed_domains", svc.AllowList().Domains())
	}

	model := llm.NewOpenAIClient(llm.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	router := chat.NewRouter(knowledge.NewResolver(catalog), retriever, model, logger)
	sessions := chat.NewManager(cfg.HistoryWindow, cfg.SessionTTL)
	limiter := api.NewRateLimiter(cfg.ChatRateLimit.Requests, cfg.ChatRateLimit.Window)
	defer limiter.Close()

	handler := api.NewHandler(api.Deps{
		Retriever:      retriever,
		Repo:           repo,
		Router:         router,
		Sessions:       sessions,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(identity.Middleware(cfg.SecureCookies))

	handler.RegisterRoutes(r)

	// WriteTimeout stays off: chat turns wait on search, fetch and the model,
	// and /ws/chat connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartRetentionWorker(ctx, repo, cfg.AuditRetention)
	sessions.StartSweeper(ctx, sweepInterval(cfg.SessionTTL))
	slog.Info("Background workers started", "session_ttl", cfg.SessionTTL, "audit_retention", cfg.AuditRetention)

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
	handler.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	return max(ttl/4, 10*time.Second)
}
