// Package content builds game assets from model output: room narratives,
// chapter narration, dungeon encounters, music, voice lines and screenshot
// descriptions. Text generators validate every answer and retry with a new
// seed; audio generators run through a single-worker queue and finish every
// clip for looping.
package content

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"genforge-gateway/internal/models"
	"genforge-gateway/internal/retry"
	"genforge-gateway/internal/structured"
	"genforge-gateway/pkg/logging/logging"
)

const (
	DefaultTemperature = 0.7
	DefaultVoiceID     = "default"
)

// TextConfig tunes a text generator.
type TextConfig struct {
	Temperature float32
	MaxAttempts int
}

func (c TextConfig) withDefaults() TextConfig {
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = retry.DefaultMaxAttempts
	}
	return c
}

// Narrative generates room narratives. When voice is set, the dialogue of
// every generated record is voiced as well.
type Narrative struct {
	text    models.TextGenerator
	voice   *Voice
	voiceID string
	cfg     TextConfig
	logger  *zap.Logger
}

func NewNarrative(text models.TextGenerator, voice *Voice, cfg TextConfig, logger *zap.Logger) *Narrative {
	return &Narrative{
		text:    text,
		voice:   voice,
		voiceID: DefaultVoiceID,
		cfg:     cfg.withDefaults(),
		logger:  logging.Named(logger, "narrative"),
	}
}

// Generate returns a validated record for req.RoomIndex or an error matching
// retry.ErrRetriesExhausted. It never falls back to synthetic content.
func (n *Narrative) Generate(ctx context.Context, req NarrativeRequest) (NarrativeRecord, error) {
	prompt := narrativePrompt(req)

	res, err := retry.Run(ctx, retry.Config{
		MaxAttempts: n.cfg.MaxAttempts,
		BaseSeed:    req.Seed,
		Label:       "narrative",
		Logger:      n.logger,
	}, func(ctx context.Context, seed int64) (string, error) {
		return n.text.GenerateText(ctx, prompt, seed, n.cfg.Temperature)
	}, parseNarrative)
	if err != nil {
		return NarrativeRecord{}, fmt.Errorf("narrative: room %d: %w", req.RoomIndex, err)
	}

	rec := res.Value
	rec.RoomIndex = req.RoomIndex
	n.attachVoice(ctx, &rec, req.Seed)

	logging.Or(ctx, n.logger).Info("narrative generated",
		zap.Int("room_index", rec.RoomIndex),
		zap.String("npc", rec.NPC.Name),
		zap.Int("attempts", len(res.Attempts)),
	)
	return rec, nil
}

func parseNarrative(raw string) (NarrativeRecord, error) {
	rec, err := structured.Decode[NarrativeRecord](raw, narrativeKeys...)
	if err != nil {
		return NarrativeRecord{}, err
	}
	// fields the model does not own
	rec.Victory = ""
	rec.NPC.AudioPaths = nil
	return rec, nil
}

// attachVoice fills AudioPaths with voice file names. A voice failure keeps
// the record text-only rather than failing the narrative.
func (n *Narrative) attachVoice(ctx context.Context, rec *NarrativeRecord, seed int64) {
	if n.voice == nil {
		return
	}

	paths, err := n.voice.GenerateBatch(ctx, rec.NPC.Dialogue, n.voiceID, seed)
	if err != nil {
		logging.Or(ctx, n.logger).Warn("narrative voice failed; returning text only",
			zap.Int("room_index", rec.RoomIndex),
			zap.Error(err),
		)
		return
	}

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	rec.NPC.AudioPaths = names
}
