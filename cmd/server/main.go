package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatwatch/chatwatch/internal/api"
	"github.com/chatwatch/chatwatch/internal/auth"
	"github.com/chatwatch/chatwatch/internal/broadcast"
	"github.com/chatwatch/chatwatch/internal/cache"
	"github.com/chatwatch/chatwatch/internal/config"
	"github.com/chatwatch/chatwatch/internal/ingest"
	"github.com/chatwatch/chatwatch/internal/message"
	"github.com/chatwatch/chatwatch/internal/metrics"
	"github.com/chatwatch/chatwatch/internal/rollover"
	"github.com/chatwatch/chatwatch/internal/storage"
	"github.com/chatwatch/chatwatch/internal/ws"
	"github.com/chatwatch/chatwatch/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	loc := cfg.Location()

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("business_tz", loc.String()).
		Msg("starting chatwatch collector")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create storage backend
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Create active agent tracker
	tracker := cache.NewActiveTracker(cfg.OnlineWindow)
	go tracker.StartSweeper(ctx, cfg.SweepInterval, log.Logger)

	// Create ingestion service
	ingestService := ingest.NewService(store, tracker, loc, cfg.StaleReportAge, cfg.CrossoverGrace, log.Logger)

	// Create message broker for operator-to-agent messages
	broker := message.NewBroker(cfg.LongPollWait, log.Logger)

	ingestHandler := ingest.NewHandler(ingestService, broker, log.Logger)

	// Create day rollover watcher and cleaner
	watcher := rollover.NewWatcher(loc, tracker, cfg.RolloverPollInterval, log.Logger)
	cleaner := rollover.NewCleaner(store, log.Logger)
	go watcher.Run(ctx)
	go cleaner.Run(ctx, watcher.Tasks())

	// Create WebSocket hub
	hub := ws.NewHub(log.Logger)
	go hub.Run()

	wsHandler := ws.NewHandler(hub, cfg, log.Logger)

	// Create roster broadcaster
	broadcaster := broadcast.NewBroadcaster(ingestService, hub, cfg.BroadcastInterval, log.Logger)
	go broadcaster.Start(ctx)

	// Create admin handler
	adminHandler := api.NewAdminHandler(store, tracker, ingestService, broker, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)

	// Agent-facing routes (no auth - agents run inside the trusted network)
	r.Post("/report", ingestHandler.HandleReport)
	r.Get("/stats", ingestHandler.HandleTodayStats)
	r.Get("/agents", ingestHandler.HandleRoster)
	r.Get("/history", ingestHandler.HandleHistory)
	r.Get("/messages/poll/{agentID}", ingestHandler.HandlePollMessages)

	// Internal routes (no auth - for scraping and debugging)
	r.Route("/internal", func(r chi.Router) {
		r.Get("/metrics", metrics.Get().Handler())
	})

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	// Admin routes require the admin role
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(auth.RequireAdmin)
		r.Post("/agents/{agentID}/rename", adminHandler.RenameAgent)
		r.Delete("/agents/{agentID}", adminHandler.DeleteAgent)
		r.Post("/clear-today", adminHandler.ClearToday)
		r.Get("/visibility", adminHandler.GetVisibility)
		r.Post("/visibility", adminHandler.SetVisibility)
		r.Post("/messages", adminHandler.SendMessage)
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background services
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"chatwatch-collector"}`)
}
