package content

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"genforge-gateway/internal/models"
	"genforge-gateway/internal/retry"
	"genforge-gateway/internal/structured"
	"genforge-gateway/pkg/logging/logging"
)

var ErrEmptyImage = errors.New("vision: empty image")

// Vision describes room screenshots.
type Vision struct {
	analyzer    models.ImageAnalyzer
	maxAttempts int
	logger      *zap.Logger
}

func NewVision(analyzer models.ImageAnalyzer, maxAttempts int, logger *zap.Logger) *Vision {
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultMaxAttempts
	}
	return &Vision{analyzer: analyzer, maxAttempts: maxAttempts, logger: logging.Named(logger, "vision")}
}

// Describe returns a validated description of image, or an error matching
// retry.ErrRetriesExhausted when no answer fits the schema.
func (v *Vision) Describe(ctx context.Context, image []byte) (VisionRecord, error) {
	if len(image) == 0 {
		return VisionRecord{}, ErrEmptyImage
	}

	res, err := retry.Run(ctx, retry.Config{
		MaxAttempts: v.maxAttempts,
		Label:       "vision",
		Logger:      v.logger,
	}, func(ctx context.Context, _ int64) (string, error) {
		return v.analyzer.AnalyzeImage(ctx, image, visionPrompt)
	}, parseVision)
	if err != nil {
		return VisionRecord{}, fmt.Errorf("vision: %w", err)
	}

	logging.Or(ctx, v.logger).Info("screenshot described",
		zap.String("environment_type", res.Value.EnvironmentType),
		zap.Int("features", len(res.Value.Features)),
	)
	return res.Value, nil
}

func parseVision(raw string) (VisionRecord, error) {
	return structured.Decode[VisionRecord](raw, visionKeys...)
}
