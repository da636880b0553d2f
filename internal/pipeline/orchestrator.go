// Package pipeline puts the cache in front of every content generator and
// runs whole-campaign pre-generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"genforge-gateway/internal/cache"
	"genforge-gateway/internal/content"
	"genforge-gateway/pkg/logging/logging"
)

// ErrFeatureDisabled is returned for a generator that is switched off.
var ErrFeatureDisabled = errors.New("pipeline: feature disabled")

// Generators are the content generators an Orchestrator fronts. Music,
// Vision and Voice may be nil when the feature is disabled.
type Generators struct {
	Narrative *content.Narrative
	Dungeon   *content.Dungeon
	Music     *content.Music
	Vision    *content.Vision
	Voice     *content.Voice
}

// Features reports which optional generators are enabled.
type Features struct {
	Music  bool `json:"music"`
	Vision bool `json:"vision"`
	Voice  bool `json:"voice"`
}

// Orchestrator runs cache check, generation on miss and cache write on
// success. Failed generations are never cached.
type Orchestrator struct {
	cache  *cache.Manager
	gen    Generators
	logger *zap.Logger
}

func NewOrchestrator(cm *cache.Manager, gen Generators, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{cache: cm, gen: gen, logger: logging.Named(logger, "pipeline")}
}

func (o *Orchestrator) Features() Features {
	return Features{
		Music:  o.gen.Music != nil,
		Vision: o.gen.Vision != nil,
		Voice:  o.gen.Voice != nil,
	}
}

// VoiceDir is where voice files are written, or "" without voice.
func (o *Orchestrator) VoiceDir() string {
	if o.gen.Voice == nil {
		return ""
	}
	return o.gen.Voice.Dir()
}

func (o *Orchestrator) Narrative(ctx context.Context, req content.NarrativeRequest) (content.NarrativeRecord, error) {
	material := cache.NarrativeMaterial(req.RoomIndex, req.TotalRooms, req.Theme, req.Seed)

	var rec content.NarrativeRecord
	if req.UseCache && o.cache.GetJSON(ctx, cache.NamespaceNarrative, material, &rec) {
		return rec, nil
	}

	rec, err := o.gen.Narrative.Generate(ctx, req)
	if err != nil {
		return content.NarrativeRecord{}, err
	}

	if req.UseCache {
		o.store(ctx, cache.NamespaceNarrative, material, rec)
	}
	return rec, nil
}

// Dungeon always returns a record. A seeded fallback is cached like a model
// answer unless it was caused by cancellation.
func (o *Orchestrator) Dungeon(ctx context.Context, req content.DungeonRequest) content.DungeonContentRecord {
	material := cache.DungeonMaterial(req.Seed, len(req.Rooms), req.Theme, req.AvailableEnemies)

	var rec content.DungeonContentRecord
	if req.UseCache && o.cache.GetJSON(ctx, cache.NamespaceDungeon, material, &rec) && coversRooms(rec, req.Rooms) {
		return rec
	}

	res := o.gen.Dungeon.Generate(ctx, req)
	if req.UseCache && !(res.Fallback && content.Interrupted(res.Cause)) {
		o.store(ctx, cache.NamespaceDungeon, material, res.Record)
	}
	return res.Record
}

// coversRooms guards against two layouts with the same room count sharing
// a cache entry.
func coversRooms(rec content.DungeonContentRecord, rooms []content.RoomInfo) bool {
	for _, r := range rooms {
		if _, ok := rec.Rooms[strconv.Itoa(r.ID)]; !ok {
			return false
		}
	}
	return true
}

func (o *Orchestrator) Music(ctx context.Context, req content.MusicRequest) (content.AudioArtifact, error) {
	if o.gen.Music == nil {
		return content.AudioArtifact{}, fmt.Errorf("%w: music", ErrFeatureDisabled)
	}

	job := o.gen.Music.Prepare(req)
	material := job.Material()

	if req.UseCache {
		if path, ok := o.cache.GetPath(ctx, cache.NamespaceMusic, material); ok {
			return content.AudioArtifact{Path: path, Seed: job.Seed}, nil
		}
	}

	art, err := o.gen.Music.Generate(ctx, job)
	if err != nil {
		return content.AudioArtifact{}, err
	}

	if req.UseCache {
		if err := o.cache.SetPath(ctx, cache.NamespaceMusic, material, art.Path); err != nil {
			o.warnStore(ctx, cache.NamespaceMusic, err)
		}
	}
	return art, nil
}

func (o *Orchestrator) Vision(ctx context.Context, image []byte, useCache bool) (content.VisionRecord, error) {
	if o.gen.Vision == nil {
		return content.VisionRecord{}, fmt.Errorf("%w: vision", ErrFeatureDisabled)
	}

	material := cache.VisionMaterial(image)

	var rec content.VisionRecord
	if useCache && o.cache.GetJSON(ctx, cache.NamespaceVision, material, &rec) {
		return rec, nil
	}

	rec, err := o.gen.Vision.Describe(ctx, image)
	if err != nil {
		return content.VisionRecord{}, err
	}

	if useCache {
		o.store(ctx, cache.NamespaceVision, material, rec)
	}
	return rec, nil
}

func (o *Orchestrator) CacheStats(ctx context.Context) (cache.Stats, error) {
	return o.cache.Stats(ctx)
}

func (o *Orchestrator) ClearCache(ctx context.Context) error {
	return o.cache.Clear(ctx)
}

// store writes a cache entry. The result is already in hand, so a failed
// write is only logged.
func (o *Orchestrator) store(ctx context.Context, ns cache.Namespace, material cache.KeyMaterial, v any) {
	if err := o.cache.SetJSON(ctx, ns, material, v); err != nil {
		o.warnStore(ctx, ns, err)
	}
}

func (o *Orchestrator) warnStore(ctx context.Context, ns cache.Namespace, err error) {
	logging.Or(ctx, o.logger).Warn("cache_write_failed",
		zap.String("namespace", string(ns)),
		zap.Error(err),
	)
}
