// Package config reads gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"genforge-gateway/internal/cache"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL"`
	Port     string `env:"PORT" envDefault:"8000"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10m"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"16777216"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"file"`
	CacheDir     string `env:"CACHE_DIR" envDefault:"cache"`
	CachePrefix  string `env:"CACHE_PREFIX" envDefault:"genforge"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`

	OutputDir string `env:"OUTPUT_DIR" envDefault:"generated"`

	LLMBaseURL     string `env:"LLM_BASE_URL" envDefault:"http://127.0.0.1:11434"`
	LLMAPIKey      string `env:"LLM_API_KEY"`
	NarrativeModel string `env:"NARRATIVE_MODEL" envDefault:"llama3.2"`
	VisionModel    string `env:"VISION_MODEL" envDefault:"llava"`

	MusicURL   string `env:"MUSIC_URL" envDefault:"http://127.0.0.1:8100"`
	MusicModel string `env:"MUSIC_MODEL" envDefault:"facebook/musicgen-small"`
	SpeechURL  string `env:"SPEECH_URL" envDefault:"http://127.0.0.1:8200"`
	SpeakerRef string `env:"SPEAKER_REF" envDefault:"narrator.wav"`

	EnableMusic  bool `env:"ENABLE_MUSIC" envDefault:"true"`
	EnableVision bool `env:"ENABLE_VISION" envDefault:"true"`
	EnableVoice  bool `env:"ENABLE_VOICE" envDefault:"true"`

	Temperature float32 `env:"TEMPERATURE" envDefault:"0.7"`
	MaxRetries  int     `env:"MAX_RETRIES" envDefault:"3"`
	Workers     int     `env:"WORKERS" envDefault:"4"`

	MusicCrossfade float64 `env:"MUSIC_CROSSFADE_SECONDS" envDefault:"2"`
	VoiceCrossfade float64 `env:"VOICE_CROSSFADE_SECONDS" envDefault:"0"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.CacheBackend {
	case cache.BackendFile, cache.BackendMemory, cache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be one of file, memory, redis; got %q", c.CacheBackend))
	}
	if c.CacheBackend == cache.BackendRedis && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis cache backend"))
	}
	if !isHTTPURL(c.LLMBaseURL) {
		errs = append(errs, fmt.Errorf("LLM_BASE_URL must be an http(s) URL, got %q", c.LLMBaseURL))
	}
	if c.EnableMusic && !isHTTPURL(c.MusicURL) {
		errs = append(errs, fmt.Errorf("MUSIC_URL must be an http(s) URL, got %q", c.MusicURL))
	}
	if c.EnableVoice && !isHTTPURL(c.SpeechURL) {
		errs = append(errs, fmt.Errorf("SPEECH_URL must be an http(s) URL, got %q", c.SpeechURL))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("TEMPERATURE must be in [0,2], got %v", c.Temperature))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers))
	}
	if c.MusicCrossfade < 0 || c.VoiceCrossfade < 0 {
		errs = append(errs, errors.New("crossfade seconds must not be negative"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) MusicDir() string { return filepath.Join(c.OutputDir, "music") }
func (c Config) VoiceDir() string { return filepath.Join(c.OutputDir, "voice") }

func (c Config) Cache() cache.Config {
	return cache.Config{Backend: c.CacheBackend, Root: c.CacheDir, Prefix: c.CachePrefix}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
