// Package app wires configuration into generators. Both the gateway and the
// pregen CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"genforge-gateway/internal/cache"
	"genforge-gateway/internal/config"
	"genforge-gateway/internal/content"
	"genforge-gateway/internal/llm"
	"genforge-gateway/internal/models"
	"genforge-gateway/internal/pipeline"
	"genforge-gateway/internal/worker"
)

const queueBacklog = 64

// App holds every long-lived component. Music, Voice and Vision are nil when
// disabled.
type App struct {
	Cache     *cache.Manager
	Narrative *content.Narrative
	Chapter   *content.Chapter
	Dungeon   *content.Dungeon
	Music     *content.Music
	Voice     *content.Voice
	Vision    *content.Vision

	closers []func() error
	logger  *zap.Logger
}

// New builds the components described by cfg. Models are not contacted
// until their first use.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	store, err := a.cacheStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = cache.NewManager(cache.NewLoggingStore(store, logger), logger)

	llmClient, err := llm.NewClient(llm.Config{BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey}, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: llm client: %w", err)
	}
	gen := llm.NewGenerator(llmClient, cfg.NarrativeModel, llm.WithVisionModel(cfg.VisionModel))

	closeLLM := func(models.TextGenerator) error {
		if c, ok := llmClient.(interface{ Close() error }); ok {
			return c.Close()
		}
		return nil
	}
	text := models.LazyText{Lazy: models.NewLazy[models.TextGenerator](cfg.NarrativeModel, func(context.Context) (models.TextGenerator, error) {
		return gen, nil
	}, closeLLM, logger)}
	a.closers = append(a.closers, text.Release)

	textCfg := content.TextConfig{Temperature: cfg.Temperature, MaxAttempts: cfg.MaxRetries}

	if cfg.EnableVoice {
		if err := os.MkdirAll(cfg.VoiceDir(), 0o755); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		client := models.NewSpeechClient(models.SidecarConfig{BaseURL: cfg.SpeechURL, Breaker: models.DefaultBreakerConfig()}, logger)
		speech := models.LazySpeech{Lazy: models.NewLazy[models.SpeechSynthesizer]("speech", models.HealthChecked[models.SpeechSynthesizer](client, client.HealthCheck), nil, logger)}
		a.closers = append(a.closers, speech.Release)
		queue := a.queue("voice", logger)

		a.Voice = content.NewVoice(speech, queue, content.VoiceConfig{
			OutputDir:        cfg.VoiceDir(),
			SpeakerRef:       cfg.SpeakerRef,
			CrossfadeSeconds: cfg.VoiceCrossfade,
		}, logger)
	}

	if cfg.EnableMusic {
		if err := os.MkdirAll(cfg.MusicDir(), 0o755); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		client := models.NewMusicClient(models.SidecarConfig{BaseURL: cfg.MusicURL, Breaker: models.DefaultBreakerConfig()}, cfg.MusicModel, logger)
		music := models.LazyAudio{Lazy: models.NewLazy[models.AudioGenerator](cfg.MusicModel, models.HealthChecked[models.AudioGenerator](client, client.HealthCheck), nil, logger)}
		a.closers = append(a.closers, music.Release)
		queue := a.queue("music", logger)

		a.Music = content.NewMusic(music, queue, content.MusicConfig{
			OutputDir:        cfg.MusicDir(),
			CrossfadeSeconds: cfg.MusicCrossfade,
		}, logger)
	}

	if cfg.EnableVision {
		vision := models.LazyVision{Lazy: models.NewLazy[models.ImageAnalyzer](cfg.VisionModel, func(context.Context) (models.ImageAnalyzer, error) {
			return gen, nil
		}, nil, logger)}
		a.closers = append(a.closers, vision.Release)
		a.Vision = content.NewVision(vision, cfg.MaxRetries, logger)
	}

	a.Narrative = content.NewNarrative(text, a.Voice, textCfg, logger)
	a.Chapter = content.NewChapter(text, textCfg, logger)
	a.Dungeon = content.NewDungeon(text, textCfg, logger)

	return a, nil
}

func (a *App) cacheStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	var redisClient *redis.Client
	if cfg.CacheBackend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, redisClient.Close)
	}

	store, err := cache.NewStore(cfg.Cache(), redisClient)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// Fail fast if the backend is misconfigured
	if p, ok := store.(cache.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return nil, fmt.Errorf("app: %s cache: %w", cfg.CacheBackend, err)
		}
	}
	a.logger.Info("cache backend ready", zap.String("backend", cfg.CacheBackend))
	return store, nil
}

func (a *App) queue(name string, logger *zap.Logger) *worker.Serial {
	q := worker.NewSerial(name, queueBacklog, logger)
	a.closers = append(a.closers, func() error { q.Close(); return nil })
	return q
}

// Orchestrator fronts the generators with the cache.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(a.Cache, pipeline.Generators{
		Narrative: a.Narrative,
		Dungeon:   a.Dungeon,
		Music:     a.Music,
		Vision:    a.Vision,
		Voice:     a.Voice,
	}, a.logger)
}

// Pregen renders chapter plans with the same generators.
func (a *App) Pregen() *pipeline.Pregen {
	return pipeline.NewPregen(a.Chapter, a.Music, a.Voice, a.logger)
}

// Close drains the audio queues, then releases models and connections, in
// reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
