package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"genforge-gateway/internal/audio"
	"genforge-gateway/internal/models"
	"genforge-gateway/internal/speech"
	"genforge-gateway/internal/worker"
	"genforge-gateway/pkg/logging/logging"
)

const voiceNameLength = 16

type VoiceConfig struct {
	OutputDir string
	// SpeakerRef identifies the reference voice on the speech backend.
	SpeakerRef string
	// CrossfadeSeconds of 0 only normalizes the line.
	CrossfadeSeconds float64
}

// Voice turns dialogue into speech files. Files are named by a hash of
// everything that shapes the audio, so a line already on disk is reused.
type Voice struct {
	model  models.SpeechSynthesizer
	queue  *worker.Serial
	cfg    VoiceConfig
	logger *zap.Logger
}

func NewVoice(model models.SpeechSynthesizer, queue *worker.Serial, cfg VoiceConfig, logger *zap.Logger) *Voice {
	if cfg.CrossfadeSeconds < 0 {
		cfg.CrossfadeSeconds = 0
	}
	return &Voice{model: model, queue: queue, cfg: cfg, logger: logging.Named(logger, "voice")}
}

// Dir is where Generate writes.
func (v *Voice) Dir() string { return v.cfg.OutputDir }

// Path is the file a line is (or will be) stored at.
func (v *Voice) Path(text, voiceID string, seed int64) string {
	material := strings.Join([]string{text, voiceID, strconv.FormatInt(seed, 10), v.cfg.SpeakerRef}, "_")
	sum := sha256.Sum256([]byte(material))
	return filepath.Join(v.cfg.OutputDir, hex.EncodeToString(sum[:])[:voiceNameLength]+".wav")
}

// Generate voices text and returns the file path.
func (v *Voice) Generate(ctx context.Context, text, voiceID string, seed int64) (string, error) {
	path := v.Path(text, voiceID, seed)

	if _, err := os.Stat(path); err == nil {
		logging.Or(ctx, v.logger).Debug("voice line reused", zap.String("path", path))
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("voice: stat %s: %w", path, err)
	}

	if err := v.RenderTo(ctx, text, seed, path); err != nil {
		return "", err
	}
	return path, nil
}

// GenerateBatch voices every line with seed+i and returns paths in line
// order. Lines are submitted together but synthesized one at a time by the
// queue. The first failure cancels the lines still waiting.
func (v *Voice) GenerateBatch(ctx context.Context, lines []string, voiceID string, seed int64) ([]string, error) {
	paths := make([]string, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	for i, line := range lines {
		g.Go(func() error {
			p, err := v.Generate(gctx, line, voiceID, seed+int64(i))
			if err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// RenderTo cleans text, synthesizes it and writes the finished clip to path.
func (v *Voice) RenderTo(ctx context.Context, text string, seed int64, path string) error {
	clean := speech.CleanForTTS(text)
	start := time.Now()

	raw, err := worker.Submit(ctx, v.queue, func(ctx context.Context) (audio.Waveform, error) {
		return v.model.Synthesize(ctx, clean, v.cfg.SpeakerRef, seed)
	})
	if err != nil {
		return fmt.Errorf("voice: synthesize: %w", err)
	}
	if len(raw.Samples) == 0 {
		return fmt.Errorf("voice: synthesize: model returned no samples")
	}

	finished := audio.Finish(raw, v.cfg.CrossfadeSeconds)
	if err := audio.WriteFile(path, finished); err != nil {
		return fmt.Errorf("voice: %w", err)
	}

	logging.Or(ctx, v.logger).Info("voice line rendered",
		zap.String("path", path),
		zap.Int("chars", len(clean)),
		zap.Float64("seconds", finished.Duration()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
