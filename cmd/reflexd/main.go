package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sur-labs/reflex/internal/adapter/cached"
	rxhttp "github.com/sur-labs/reflex/internal/adapter/http"
	"github.com/sur-labs/reflex/internal/adapter/memory"
	rxnats "github.com/sur-labs/reflex/internal/adapter/nats"
	"github.com/sur-labs/reflex/internal/adapter/openai"
	"github.com/sur-labs/reflex/internal/adapter/otel"
	"github.com/sur-labs/reflex/internal/adapter/postgres"
	"github.com/sur-labs/reflex/internal/adapter/ristretto"
	"github.com/sur-labs/reflex/internal/adapter/ws"
	"github.com/sur-labs/reflex/internal/config"
	"github.com/sur-labs/reflex/internal/logger"
	"github.com/sur-labs/reflex/internal/port/messagequeue"
	"github.com/sur-labs/reflex/internal/port/repository"
	"github.com/sur-labs/reflex/internal/resilience"
	"github.com/sur-labs/reflex/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"repository", cfg.Repository.Type,
		"model", cfg.Chat.Model,
		"default_mode", cfg.Chat.DefaultMode,
		"turn_limit", cfg.Chat.TurnLimit,
	)

	ctx := context.Background()

	// --- Telemetry ---
	if cfg.Telemetry.OTLPEndpoint != "" {
		otelShutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(flushCtx); err != nil {
				slog.Error("telemetry shutdown failed", "error", err)
			}
		}()
		slog.Info("telemetry exporting", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	// --- Persistence ---
	var repo repository.Conversations
	switch cfg.Repository.Type {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		repo = postgres.NewStore(pool)
	default:
		repo = memory.NewStore()
		slog.Info("using in-memory conversation store")
	}

	if cfg.Cache.Enabled {
		cache, err := ristretto.New(cfg.Cache.MaxCostBytes)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer cache.Close()
		repo = cached.New(repo, cache, cfg.Cache.TTL)
	}

	// --- Messaging ---
	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		q, err := rxnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = q.Close() }()
		queue = q
	}

	// --- Provider ---
	provider := openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	provider.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	hub := ws.NewHub()
	prompts := service.NewPromptService()
	conversationSvc := service.NewConversationService(repo, cfg.Chat, hub)
	streamSvc := service.NewStreamService(provider, repo, prompts, cfg.Chat, queue, hub, metrics)

	// --- HTTP ---
	handlers := rxhttp.NewHandlers(conversationSvc, streamSvc, prompts)

	r := chi.NewRouter()

	r.Use(rxhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rxhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(cfg))
	r.Get("/ws", hub.HandleWS)

	rxhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streaming turns hold the response open well past a normal
		// request; no write timeout.
		IdleTimeout: 120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status     string `json:"status"`
		Repository string `json:"repository"`
		NATS       bool   `json:"nats"`
		Model      string `json:"model"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:     "ok",
			Repository: cfg.Repository.Type,
			NATS:       cfg.NATS.URL != "",
			Model:      cfg.Chat.Model,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
