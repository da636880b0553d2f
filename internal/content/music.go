package content

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"genforge-gateway/internal/audio"
	"genforge-gateway/internal/cache"
	"genforge-gateway/internal/models"
	"genforge-gateway/internal/worker"
	"genforge-gateway/pkg/logging/logging"
)

// ChapterMusic is the soundtrack prompt of each campaign chapter.
var ChapterMusic = map[int]string{
	0: "energetic chiptune music, fast 8-bit synth melody, driving beat, upbeat and action-packed, 140 bpm, retro arcade game soundtrack",
	1: "intense electronic music, pulsing synth bass, rapid arpeggios, mysterious and urgent, 150 bpm, action video game soundtrack",
	2: "epic fast-paced orchestral, intense percussion, heroic brass fanfare, triumphant and exciting, 160 bpm, boss battle soundtrack",
}

const (
	DefaultMusicDescription = "whimsical fantasy MIDI music, playful melody, cheerful, 90 bpm, video game soundtrack"
	DefaultMusicCrossfade   = 2.0

	musicPromptSuffix = ", loopable, no vocals"
)

type MusicConfig struct {
	OutputDir        string
	CrossfadeSeconds float64
}

// MusicJob is a fully resolved music request: every field that affects the
// rendered audio is fixed before the cache is consulted.
type MusicJob struct {
	Description string
	Seed        int64
	Duration    float64
}

func (j MusicJob) Prompt() string { return j.Description + musicPromptSuffix }

func (j MusicJob) Material() cache.KeyMaterial {
	return cache.MusicMaterial(j.Description, j.Seed, j.Duration)
}

// Music renders loopable soundtrack clips. Model calls run one at a time on
// queue.
type Music struct {
	model  models.AudioGenerator
	queue  *worker.Serial
	cfg    MusicConfig
	logger *zap.Logger

	randomSeed func() int64
}

func NewMusic(model models.AudioGenerator, queue *worker.Serial, cfg MusicConfig, logger *zap.Logger) *Music {
	if cfg.CrossfadeSeconds < 0 {
		cfg.CrossfadeSeconds = 0
	}
	return &Music{
		model:      model,
		queue:      queue,
		cfg:        cfg,
		logger:     logging.Named(logger, "music"),
		randomSeed: func() int64 { return rand.Int64N(1 << 31) },
	}
}

// Prepare resolves req. A known chapter overrides the description, an empty
// description gets the default one, and a missing seed is drawn at random.
func (m *Music) Prepare(req MusicRequest) MusicJob {
	desc := strings.TrimSpace(req.Description)
	if req.Chapter != nil {
		if p, ok := ChapterMusic[*req.Chapter]; ok {
			desc = p
		}
	}
	if desc == "" {
		desc = DefaultMusicDescription
	}

	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = m.randomSeed()
	}

	duration := req.Duration
	if duration <= 0 {
		duration = DefaultMusicDuration
	}

	return MusicJob{Description: desc, Seed: seed, Duration: duration}
}

// Generate renders job into the output directory.
func (m *Music) Generate(ctx context.Context, job MusicJob) (AudioArtifact, error) {
	name := fmt.Sprintf("music_%d_%s.wav", job.Seed, job.Material().Key().String()[:8])
	path := filepath.Join(m.cfg.OutputDir, name)

	if err := m.RenderTo(ctx, job, path); err != nil {
		return AudioArtifact{}, err
	}
	return AudioArtifact{Path: path, Seed: job.Seed}, nil
}

// RenderTo renders job, finishes it for looping and writes it to path.
func (m *Music) RenderTo(ctx context.Context, job MusicJob, path string) error {
	logger := logging.Or(ctx, m.logger)
	start := time.Now()

	raw, err := worker.Submit(ctx, m.queue, func(ctx context.Context) (audio.Waveform, error) {
		return m.model.GenerateAudio(ctx, job.Prompt(), job.Seed, job.Duration)
	})
	if err != nil {
		return fmt.Errorf("music: generate (seed %d): %w", job.Seed, err)
	}
	if len(raw.Samples) == 0 {
		return fmt.Errorf("music: generate (seed %d): model returned no samples", job.Seed)
	}

	finished := audio.Finish(raw, m.cfg.CrossfadeSeconds)
	if err := audio.WriteFile(path, finished); err != nil {
		return fmt.Errorf("music: %w", err)
	}

	logger.Info("music rendered",
		zap.Int64("seed", job.Seed),
		zap.Float64("requested_seconds", job.Duration),
		zap.Float64("seconds", finished.Duration()),
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
