// na-T-na - Emotion coaching conversation server
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

	"github.com/besides-508-potenday/na-T-na-AI/internal/api"
	"github.com/besides-508-potenday/na-T-na-AI/internal/coach"
	"github.com/besides-508-potenday/na-T-na-AI/internal/config"
	"github.com/besides-508-potenday/na-T-na-AI/internal/live"
	"github.com/besides-508-potenday/na-T-na-AI/internal/llm"
	"github.com/besides-508-potenday/na-T-na-AI/internal/middleware"
	"github.com/besides-508-potenday/na-T-na-AI/internal/prompt"
	"github.com/besides-508-potenday/na-T-na-AI/internal/speech"
	"github.com/besides-508-potenday/na-T-na-AI/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

var version = "dev"

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
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "store", cfg.Store.Driver, "model", cfg.LLM.Model)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	profiles, err := config.LoadProfiles(cfg.LLM.ParamsPath)
	if err != nil {
		slog.Error("Failed to load generation profiles", "error", err)
		os.Exit(1)
	}

	client := llm.NewClient(cfg.LLM, logger)
	hub := live.NewHub(logger)

	deps := coach.Deps{
		Generator: client,
		Store:     sessions,
		Prompts:   prompt.NewBuilder(cfg.Coach.QuizNum),
		Profiles:  profiles,
		Settings:  cfg.Coach,
		Notifier:  hub,
		Logger:    logger,
	}
	if cfg.Speech.Enabled {
		var uploader speech.Uploader
		if cfg.Speech.Bucket != "" {
			s3, err := speech.NewS3Uploader(ctx, cfg.Speech.Bucket, cfg.Speech.Region)
			if err != nil {
				slog.Error("Failed to initialize audio upload", "error", err)
				os.Exit(1)
			}
			uploader = s3
		}
		deps.Voice = speech.NewLetterVoice(speech.NewClovaVoice(cfg.Speech), uploader, cfg.Speech.Prefix, logger)
		slog.Info("Letter voice enabled", "upload", uploader != nil)
	}
	svc := coach.New(deps)

	// Initialize handlers.
	baseHandler := api.NewHandler()
	coachHandler := api.NewCoachHandler(baseHandler, svc)
	sessionHandler := api.NewSessionHandler(baseHandler, sessions)
	healthHandler := api.NewHealthHandler(sessions, client.Stats, sessions.PersistFailures, version)
	wsHandler := live.NewWebSocketHandler(hub, sessions, cfg.AllowedOrigins)
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)

	// Generation routes are rate limited per client.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		coachHandler.RegisterRoutes(r)
	})

	r.Get("/ws/sessions/{sessionID}", wsHandler.ServeHTTP)

	// WriteTimeout stays 0 so websocket streams are not cut off.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

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
