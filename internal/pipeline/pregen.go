package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"genforge-gateway/internal/content"
	"genforge-gateway/internal/structured"
	"genforge-gateway/pkg/logging/logging"
)

const (
	ManifestFile  = "manifest.json"
	NarrativeFile = "narrative.json"
	MusicFile     = "music.wav"

	// DefaultPregenMusicDuration is the clip length of chapter soundtracks.
	DefaultPregenMusicDuration = 30.0
)

// Manifest lists the files written for each chapter, relative to the
// chapter directory.
type Manifest struct {
	Seed     int64             `json:"seed"`
	Chapters []ChapterManifest `json:"chapters"`
}

type ChapterManifest struct {
	Chapter int          `json:"chapter"`
	Files   ChapterFiles `json:"files"`
}

type ChapterFiles struct {
	Narrative string   `json:"narrative,omitempty"`
	Music     string   `json:"music,omitempty"`
	Voice     []string `json:"voice,omitempty"`
}

// ChapterDir is the directory of chapter idx under root.
func ChapterDir(root string, idx int) string {
	return filepath.Join(root, "chapters", fmt.Sprintf("chapter_%d", idx))
}

func voiceFile(line int) string { return fmt.Sprintf("voice_%d.wav", line) }

type PregenOptions struct {
	OutputDir     string
	Workers       int
	MusicDuration float64
}

// Pregen renders a whole chapter plan to disk. Music and Voice may be nil,
// which skips that phase.
type Pregen struct {
	chapter *content.Chapter
	music   *content.Music
	voice   *content.Voice
	logger  *zap.Logger
}

func NewPregen(chapter *content.Chapter, music *content.Music, voice *content.Voice, logger *zap.Logger) *Pregen {
	return &Pregen{chapter: chapter, music: music, voice: voice, logger: logging.Named(logger, "pregen")}
}

// Run writes every chapter of plan under opts.OutputDir and returns the
// manifest it wrote. Narratives are generated in parallel; music and voice
// run one chapter after another because each model serves a single job at
// a time anyway. Existing files are overwritten.
//
// Any failed chapter fails the run; no manifest is written in that case.
func (p *Pregen) Run(ctx context.Context, plan content.ChapterPlan, opts PregenOptions) (Manifest, error) {
	if opts.OutputDir == "" {
		return Manifest{}, fmt.Errorf("pregen: output dir is required")
	}
	if opts.MusicDuration <= 0 {
		opts.MusicDuration = DefaultPregenMusicDuration
	}
	logger := logging.Or(ctx, p.logger)
	start := time.Now()

	for i := range plan.Chapters {
		if err := os.MkdirAll(ChapterDir(opts.OutputDir, i), 0o755); err != nil {
			return Manifest{}, fmt.Errorf("pregen: %w", err)
		}
	}

	records, err := p.narratives(ctx, plan, opts)
	if err != nil {
		return Manifest{}, err
	}
	logger.Info("narratives done", zap.Int("chapters", len(records)), zap.Duration("elapsed", time.Since(start)))

	if p.music != nil {
		phase := time.Now()
		for i, ch := range plan.Chapters {
			job := content.MusicJob{
				Description: chapterMusic(ch, i),
				Seed:        plan.Seed + int64(i),
				Duration:    opts.MusicDuration,
			}
			if err := p.music.RenderTo(ctx, job, filepath.Join(ChapterDir(opts.OutputDir, i), MusicFile)); err != nil {
				return Manifest{}, fmt.Errorf("pregen: chapter %d music: %w", i, err)
			}
			logger.Info("chapter music done", zap.Int("chapter", i), zap.Int("of", len(plan.Chapters)))
		}
		logger.Info("music done", zap.Duration("elapsed", time.Since(phase)))
	}

	if p.voice != nil {
		phase := time.Now()
		for i, rec := range records {
			for j, line := range rec.NPC.Dialogue {
				path := filepath.Join(ChapterDir(opts.OutputDir, i), voiceFile(j))
				if err := p.voice.RenderTo(ctx, line, voiceSeed(plan.Seed, i, j), path); err != nil {
					return Manifest{}, fmt.Errorf("pregen: chapter %d line %d voice: %w", i, j, err)
				}
			}
		}
		logger.Info("voice done", zap.Duration("elapsed", time.Since(phase)))
	}

	manifest := p.manifest(plan, records)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("pregen: marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, ManifestFile), data, 0o644); err != nil {
		return Manifest{}, fmt.Errorf("pregen: write manifest: %w", err)
	}

	logger.Info("pregen complete",
		zap.String("output_dir", opts.OutputDir),
		zap.Int("chapters", len(plan.Chapters)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return manifest, nil
}

func (p *Pregen) narratives(ctx context.Context, plan content.ChapterPlan, opts PregenOptions) ([]content.NarrativeRecord, error) {
	records := make([]content.NarrativeRecord, len(plan.Chapters))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i := range plan.Chapters {
		g.Go(func() error {
			rec, err := p.chapter.Generate(gctx, plan, i)
			if err != nil {
				return fmt.Errorf("pregen: %w", err)
			}
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return fmt.Errorf("pregen: marshal chapter %d: %w", i, err)
			}
			if err := os.WriteFile(filepath.Join(ChapterDir(opts.OutputDir, i), NarrativeFile), data, 0o644); err != nil {
				return fmt.Errorf("pregen: write chapter %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Pregen) manifest(plan content.ChapterPlan, records []content.NarrativeRecord) Manifest {
	m := Manifest{Seed: plan.Seed, Chapters: make([]ChapterManifest, len(plan.Chapters))}
	for i := range plan.Chapters {
		files := ChapterFiles{Narrative: NarrativeFile}
		if p.music != nil {
			files.Music = MusicFile
		}
		if p.voice != nil {
			for j := range records[i].NPC.Dialogue {
				files.Voice = append(files.Voice, voiceFile(j))
			}
		}
		m.Chapters[i] = ChapterManifest{Chapter: i, Files: files}
	}
	return m
}

// chapterMusic picks the authored prompt, then the built-in one for that
// chapter, then the default.
func chapterMusic(ch content.ChapterSpec, idx int) string {
	if ch.MusicPrompt != "" {
		return ch.MusicPrompt
	}
	if d, ok := content.ChapterMusic[idx]; ok {
		return d
	}
	return content.DefaultMusicDescription
}

// voiceSeed gives every line of every chapter its own seed.
func voiceSeed(base int64, chapter, line int) int64 {
	return base + int64(chapter*structured.DialogueLineCount+line)
}
