package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"genforge-gateway/internal/audio"
)

const (
	pathGenerateMusic  = "/v1/generate/music"
	pathGenerateSpeech = "/v1/generate/speech"
	pathHealth         = "/health"

	contentTypeJSON = "application/json"
	contentTypeWAV  = "audio/wav"

	maxAudioResponse = 256 << 20
	maxErrorBody     = 64 << 10

	defaultSidecarTimeout = 5 * time.Minute
	defaultLanguage       = "en"
)

// BreakerConfig controls when a sidecar circuit opens.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// SidecarConfig describes one audio model server speaking the
// JSON-in, audio/wav-out protocol.
type SidecarConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Breaker    BreakerConfig
	HTTPClient *http.Client
}

type sidecarError struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// sidecar is the shared transport of the music and speech clients.
type sidecar struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func newSidecar(name string, cfg SidecarConfig, logger *zap.Logger) *sidecar {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(name)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultSidecarTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	bc := cfg.Breaker
	if bc == (BreakerConfig{}) {
		bc = DefaultBreakerConfig()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sidecar circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// a rejected request says nothing about sidecar health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
	})

	return &sidecar{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}
}

// postWAV sends payload as JSON and decodes the audio/wav answer.
func (s *sidecar) postWAV(ctx context.Context, path string, payload any) (audio.Waveform, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.doPostWAV(ctx, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return audio.Waveform{}, fmt.Errorf("%w: %s: %w", ErrUnavailable, s.name, err)
		}
		return audio.Waveform{}, err
	}
	return out.(audio.Waveform), nil
}

func (s *sidecar) doPostWAV(ctx context.Context, path string, payload any) (audio.Waveform, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("%s: marshal request: %w", s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("%s: build request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeWAV)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("%w: %s at %s: %w", ErrUnavailable, s.name, s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.Waveform{}, s.parseError(resp)
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != contentTypeWAV && mt != "audio/x-wav" && mt != "audio/wave" {
		return audio.Waveform{}, fmt.Errorf("%s: unexpected content type %q", s.name, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioResponse))
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("%s: read audio: %w", s.name, err)
	}
	if len(data) == 0 {
		return audio.Waveform{}, fmt.Errorf("%s: received empty audio", s.name)
	}

	w, err := audio.DecodeWAVBytes(data)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("%s: %w", s.name, err)
	}

	s.logger.Debug("sidecar audio received",
		zap.Int("bytes", len(data)),
		zap.Float64("seconds", w.Duration()),
		zap.Duration("latency", time.Since(start)),
	)
	return w, nil
}

func (s *sidecar) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	sentinel := ErrUnavailable
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		sentinel = ErrRejected
	}

	var se sidecarError
	if err := json.Unmarshal(body, &se); err == nil && se.Detail != "" {
		return fmt.Errorf("%w: %s %s: %s (code: %s)", sentinel, s.name, resp.Status, se.Detail, se.ErrorCode)
	}
	return fmt.Errorf("%w: %s %s: %s", sentinel, s.name, resp.Status, strings.TrimSpace(string(body)))
}

// HealthCheck asks the sidecar whether it is serving.
func (s *sidecar) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+pathHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: build health request: %w", s.name, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s health at %s: %w", ErrUnavailable, s.name, s.baseURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s health returned %s", ErrUnavailable, s.name, resp.Status)
	}
	return nil
}

type musicRequest struct {
	Model    string  `json:"model,omitempty"`
	Prompt   string  `json:"prompt"`
	Seed     int64   `json:"seed"`
	Duration float64 `json:"duration"`
}

// MusicClient generates music through an HTTP sidecar.
type MusicClient struct {
	*sidecar
	model string
}

func NewMusicClient(cfg SidecarConfig, model string, logger *zap.Logger) *MusicClient {
	return &MusicClient{sidecar: newSidecar("music-sidecar", cfg, logger), model: model}
}

func (c *MusicClient) GenerateAudio(ctx context.Context, prompt string, seed int64, durationSeconds float64) (audio.Waveform, error) {
	if strings.TrimSpace(prompt) == "" {
		return audio.Waveform{}, fmt.Errorf("%w: empty music prompt", ErrRejected)
	}
	if durationSeconds <= 0 {
		return audio.Waveform{}, fmt.Errorf("%w: duration must be positive, got %v", ErrRejected, durationSeconds)
	}
	return c.postWAV(ctx, pathGenerateMusic, musicRequest{
		Model:    c.model,
		Prompt:   prompt,
		Seed:     seed,
		Duration: durationSeconds,
	})
}

type speechRequest struct {
	Text           string `json:"text"`
	SpeakerRefPath string `json:"speaker_ref_path,omitempty"`
	Language       string `json:"language"`
	Seed           int64  `json:"seed"`
}

// SpeechClient synthesizes speech through an HTTP sidecar.
type SpeechClient struct {
	*sidecar
}

func NewSpeechClient(cfg SidecarConfig, logger *zap.Logger) *SpeechClient {
	return &SpeechClient{sidecar: newSidecar("speech-sidecar", cfg, logger)}
}

func (c *SpeechClient) Synthesize(ctx context.Context, text, speakerRef string, seed int64) (audio.Waveform, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Waveform{}, fmt.Errorf("%w: empty speech text", ErrRejected)
	}
	return c.postWAV(ctx, pathGenerateSpeech, speechRequest{
		Text:           text,
		SpeakerRefPath: speakerRef,
		Language:       defaultLanguage,
		Seed:           seed,
	})
}

// HealthChecked returns a Loader that verifies the sidecar answers before
// handing out m, so the first generation fails fast when it is down.
func HealthChecked[T any](m T, check func(context.Context) error) Loader[T] {
	return func(ctx context.Context) (T, error) {
		if err := check(ctx); err != nil {
			var zero T
			return zero, err
		}
		return m, nil
	}
}
