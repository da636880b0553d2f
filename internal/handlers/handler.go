package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"genforge-gateway/internal/cache"
	"genforge-gateway/internal/content"
	"genforge-gateway/internal/models"
	"genforge-gateway/internal/pipeline"
	"genforge-gateway/internal/retry"
	"genforge-gateway/pkg/logging/logging"
)

// Pipeline is what the HTTP surface needs from the orchestrator.
type Pipeline interface {
	Narrative(ctx context.Context, req content.NarrativeRequest) (content.NarrativeRecord, error)
	Dungeon(ctx context.Context, req content.DungeonRequest) content.DungeonContentRecord
	Music(ctx context.Context, req content.MusicRequest) (content.AudioArtifact, error)
	Vision(ctx context.Context, image []byte, useCache bool) (content.VisionRecord, error)
	CacheStats(ctx context.Context) (cache.Stats, error)
	ClearCache(ctx context.Context) error
	Features() pipeline.Features
}

// ModelNames is reported by the status endpoint.
type ModelNames struct {
	Narrative string `json:"narrative"`
	Music     string `json:"music,omitempty"`
	Voice     string `json:"voice,omitempty"`
	Vision    string `json:"vision,omitempty"`
	Dungeon   string `json:"dungeon"`
}

type Config struct {
	Models ModelNames
	// MusicDir and VoiceDir are the only directories files are served from.
	MusicDir string
	VoiceDir string
	// MaxUploadBytes bounds the in-memory part of a vision upload.
	MaxUploadBytes int64
}

// Handler serves the generation API.
type Handler struct {
	pipe      Pipeline
	cfg       Config
	validator *requestValidator
}

func New(pipe Pipeline, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 << 20
	}
	return &Handler{pipe: pipe, cfg: cfg, validator: newRequestValidator()}
}

type errorResponse struct {
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

// decode reads a JSON body over defaults already in dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	logger := logging.L(r.Context())

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return false
	}
	if fields := h.validator.check(dst); len(fields) > 0 {
		logger.Warn("request validation failed", zap.Any("errors", fields))
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request", Errors: fields})
		return false
	}
	return true
}

// fail maps a pipeline error to a status code.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	detail := err.Error()

	switch {
	case errors.Is(err, pipeline.ErrFeatureDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, models.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, content.ErrEmptyImage):
		status = http.StatusBadRequest
	}

	logging.L(r.Context()).Error(op+" failed",
		zap.Int("status", status),
		zap.Bool("retries_exhausted", errors.Is(err, retry.ErrRetriesExhausted)),
		zap.Error(err),
	)
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
