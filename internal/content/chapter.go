package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"genforge-gateway/internal/models"
	"genforge-gateway/internal/retry"
	"genforge-gateway/internal/structured"
	"genforge-gateway/pkg/logging/logging"
)

// ChapterSpec is the authored part of a chapter. The model only writes the
// narrator's lines.
type ChapterSpec struct {
	Name            string `json:"name" validate:"required"`
	Boss            string `json:"boss" validate:"required"`
	ProgressContext string `json:"progress_context"`
	Environment     string `json:"environment" validate:"required"`
	Story           string `json:"story" validate:"required"`
	MusicPrompt     string `json:"music_prompt"`
}

// ChapterPlan is a whole pre-generation run.
type ChapterPlan struct {
	Seed     int64         `json:"seed"`
	Intro    string        `json:"intro"`
	Victory  string        `json:"victory"`
	Chapters []ChapterSpec `json:"chapters" validate:"required,min=1,dive"`
}

// DefaultChapterPlan is the three-chapter campaign shipped with the game.
func DefaultChapterPlan() ChapterPlan {
	return ChapterPlan{
		Seed:    42,
		Intro:   "The old kingdom fell silent a hundred years ago. Now its gates stand open again, and something below is calling.",
		Victory: "The last guardian falls and the depths grow quiet. Whatever called you here has finally been answered.",
		Chapters: []ChapterSpec{
			{
				Name:            "The Mossy Gate",
				Boss:            "the Slime King",
				ProgressContext: "This is the first chapter. The hero has just arrived and knows nothing of the dungeon.",
				Environment:     "Overgrown halls where moss swallows broken statues and slime trails glisten on the flagstones.",
				Story:           "Beyond the gate the halls are alive with ooze. The Slime King has grown fat on a century of trespassers.",
				MusicPrompt:     ChapterMusic[0],
			},
			{
				Name:            "The Hollow Choir",
				Boss:            "the Weeping Abbess",
				ProgressContext: "This is the middle chapter. The hero survived the gate and now descends into the haunted cloister.",
				Environment:     "A drowned cloister where ghostly voices echo between pillars and candlelight flickers on black water.",
				Story:           "The monks never left their chapel. Their hymns turned to wailing, and the Abbess leads them still.",
				MusicPrompt:     ChapterMusic[1],
			},
			{
				Name:            "The Vine Throne",
				Boss:            "the Grape Colossus",
				ProgressContext: "This is the final chapter. The hero faces the heart of the dungeon and its oldest guardian.",
				Environment:     "A vast cavern choked with twisting vines, its ceiling heavy with glowing fruit that pulses like a heartbeat.",
				Story:           "At the root of the kingdom a single vine grew into a titan. It guards the throne and the silence beneath it.",
				MusicPrompt:     ChapterMusic[2],
			},
		},
	}
}

// LoadChapterPlan reads a plan from a JSON file.
func LoadChapterPlan(path string) (ChapterPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChapterPlan{}, fmt.Errorf("content: read chapter plan: %w", err)
	}

	var plan ChapterPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return ChapterPlan{}, fmt.Errorf("content: parse chapter plan %s: %w", path, err)
	}
	if err := structured.Validate(plan); err != nil {
		return ChapterPlan{}, fmt.Errorf("content: chapter plan %s: %w", path, err)
	}
	return plan, nil
}

// Chapter writes narrator lines for authored chapters.
type Chapter struct {
	text   models.TextGenerator
	cfg    TextConfig
	logger *zap.Logger
}

func NewChapter(text models.TextGenerator, cfg TextConfig, logger *zap.Logger) *Chapter {
	return &Chapter{text: text, cfg: cfg.withDefaults(), logger: logging.Named(logger, "chapter")}
}

// Generate produces the record for chapter idx of plan. The chapter index is
// the seed offset, so chapters generated in parallel never share a seed.
func (c *Chapter) Generate(ctx context.Context, plan ChapterPlan, idx int) (NarrativeRecord, error) {
	if idx < 0 || idx >= len(plan.Chapters) {
		return NarrativeRecord{}, fmt.Errorf("chapter: index %d out of range [0,%d)", idx, len(plan.Chapters))
	}
	ch := plan.Chapters[idx]
	prompt := chapterPrompt(ch)

	res, err := retry.Run(ctx, retry.Config{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseSeed:    plan.Seed,
		Offset:      int64(idx),
		Label:       "chapter",
		Logger:      c.logger.With(zap.Int("chapter", idx)),
	}, func(ctx context.Context, seed int64) (string, error) {
		return c.text.GenerateText(ctx, prompt, seed, c.cfg.Temperature)
	}, structured.DialogueLines)
	if err != nil {
		return NarrativeRecord{}, fmt.Errorf("chapter %d: %w", idx, err)
	}

	story := ch.Story
	if idx == 0 && plan.Intro != "" {
		story = plan.Intro + "\n\n" + ch.Story
	}

	rec := NarrativeRecord{
		RoomIndex:   idx,
		Environment: ch.Environment,
		NPC:         NPC{Name: "The Narrator", Dialogue: res.Value},
		Quest: Quest{
			Objective: fmt.Sprintf("Defeat %s to proceed", ch.Boss),
			Type:      "Boss",
			Count:     1,
		},
		Lore: Lore{Title: ch.Name, Content: story},
	}
	if idx == len(plan.Chapters)-1 {
		rec.Victory = plan.Victory
	}

	logging.Or(ctx, c.logger).Info("chapter narrative generated",
		zap.Int("chapter", idx),
		zap.Int("attempts", len(res.Attempts)),
	)
	return rec, nil
}
