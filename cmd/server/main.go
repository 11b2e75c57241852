// MedMate MD - attending-physician case tutor server
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

	"github.com/ashureev/medmate/internal/api"
	"github.com/ashureev/medmate/internal/config"
	"github.com/ashureev/medmate/internal/identity"
	"github.com/ashureev/medmate/internal/livechat"
	"github.com/ashureev/medmate/internal/middleware"
	"github.com/ashureev/medmate/internal/store"
	"github.com/ashureev/medmate/internal/transcript"
	"github.com/ashureev/medmate/internal/tutor"
	"github.com/ashureev/medmate/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"session_backend", cfg.SessionBackend,
		"llm_provider", cfg.LLM.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	st, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := st.Ping(ctx); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "backend", cfg.SessionBackend)

	chat, images, err := newModelClients(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize model clients", "error", err)
		os.Exit(1)
	}
	if !cfg.Tutor.VisualsEnabled {
		images = nil
	}

	transcripts, err := transcript.New(transcript.Config{
		Enabled:         cfg.Transcript.Enabled,
		Dir:             cfg.Transcript.Dir,
		GlobalEnabled:   cfg.Transcript.GlobalEnabled,
		GlobalPath:      cfg.Transcript.GlobalPath,
		QueueSize:       cfg.Transcript.QueueSize,
		GlobalMaxSizeMB: cfg.Transcript.GlobalMaxSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	svc := tutor.NewService(st, chat, images, transcripts, tutor.Config{
		SummaryTurnThreshold: cfg.Tutor.SummaryTurnThreshold,
		VisualsEnabled:       cfg.Tutor.VisualsEnabled,
	})

	// Initialize handlers.
	limiter := api.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	corsOrigins, wsOrigins := allowedOrigins(cfg)
	registry := livechat.NewRegistry()

	caseHandler := api.NewCaseHandler(svc, limiter, cfg.MaxRequestBodySize)
	healthHandler := api.NewHealthHandler(st, cfg.SessionBackend, cfg.LLM.Provider)
	liveHandler := livechat.NewHandler(svc, registry, limiter, wsOrigins)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(corsOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Everything else needs an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(st, !cfg.IsDevelopment()))
		caseHandler.RegisterRoutes(r)
		r.Get("/ws/case", liveHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Model calls can take tens of seconds, so writes get the LLM timeout plus slack.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2*cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start TTL worker.
	store.StartTTLWorker(ctx, st, cfg.SessionTTL, func(deleted int64) {
		slog.Info("Expired case sessions removed", "count", deleted)
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	registry.CloseAll("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}
