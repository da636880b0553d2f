package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"genforge-gateway/internal/app"
	"genforge-gateway/internal/config"
	"genforge-gateway/internal/handlers"
	"genforge-gateway/internal/httpserver"
	"genforge-gateway/internal/metrics"
	"genforge-gateway/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Config -----
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger, err := logging.Build(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("llm_base_url", cfg.LLMBaseURL),
		zap.String("narrative_model", cfg.NarrativeModel),
		zap.Bool("music", cfg.EnableMusic),
		zap.Bool("voice", cfg.EnableVoice),
		zap.Bool("vision", cfg.EnableVision),
	)

	// ----- Generators, cache, models -----
	components, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("release failed", zap.Error(err))
		}
	}()

	orch := components.Orchestrator()
	if stats, err := orch.CacheStats(context.Background()); err == nil {
		logger.Info("cache ready", zap.Int("entries", stats.Total()))
	}

	// ----- Handlers -----
	h := handlers.New(orch, handlers.Config{
		Models: handlers.ModelNames{
			Narrative: cfg.NarrativeModel,
			Dungeon:   cfg.NarrativeModel,
			Music:     enabled(cfg.EnableMusic, cfg.MusicModel),
			Voice:     enabled(cfg.EnableVoice, "speech-sidecar"),
			Vision:    enabled(cfg.EnableVision, cfg.VisionModel),
		},
		MusicDir:       enabled(cfg.EnableMusic, cfg.MusicDir()),
		VoiceDir:       orch.VoiceDir(),
		MaxUploadBytes: cfg.MaxBodyBytes,
	})

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h, httpserver.Options{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway", zap.String("addr", srv.Addr))

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

func enabled(on bool, v string) string {
	if !on {
		return ""
	}
	return v
}
