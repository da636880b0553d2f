package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"genforge-gateway/internal/metrics"
	"genforge-gateway/internal/models"
	"genforge-gateway/internal/retry"
	"genforge-gateway/internal/structured"
	"genforge-gateway/pkg/logging/logging"
)

const (
	MaxEnemyCount = 10

	unexploredDescription = "Unexplored area"
	defaultDescription    = "A dungeon room"
	startDescription      = "Safe starting area"
	bossDescription       = "Boss chamber"

	bossSpawnCount = 3
)

// DungeonResult is a dungeon record plus how it was produced.
type DungeonResult struct {
	Record DungeonContentRecord
	// Fallback is set when the record came from the seeded generator
	// because no model answer validated.
	Fallback bool
	// Cause is the exhaustion error behind a fallback.
	Cause error
}

// Dungeon places enemies in rooms. It never fails: when the model cannot
// produce a valid layout it falls back to a deterministic seeded design.
type Dungeon struct {
	text   models.TextGenerator
	cfg    TextConfig
	logger *zap.Logger
}

func NewDungeon(text models.TextGenerator, cfg TextConfig, logger *zap.Logger) *Dungeon {
	return &Dungeon{text: text, cfg: cfg.withDefaults(), logger: logging.Named(logger, "dungeon")}
}

func (d *Dungeon) Generate(ctx context.Context, req DungeonRequest) DungeonResult {
	prompt := dungeonPrompt(req)

	res, err := retry.Run(ctx, retry.Config{
		MaxAttempts: d.cfg.MaxAttempts,
		BaseSeed:    req.Seed,
		Label:       "dungeon",
		Logger:      d.logger,
	}, func(ctx context.Context, seed int64) (string, error) {
		return d.text.GenerateText(ctx, prompt, seed, d.cfg.Temperature)
	}, func(raw string) (map[string]RoomContent, error) {
		return ParseDungeonRooms(raw, req.Rooms, req.AvailableEnemies)
	})
	if err == nil {
		return DungeonResult{Record: DungeonContentRecord{Seed: req.Seed, Theme: req.Theme, Rooms: res.Value}}
	}

	metrics.FallbacksTotal.WithLabelValues("dungeon").Inc()
	logging.Or(ctx, d.logger).Warn("dungeon generation exhausted; using seeded fallback",
		zap.Int64("seed", req.Seed),
		zap.Int("rooms", len(req.Rooms)),
		zap.Error(err),
	)
	return DungeonResult{
		Record:   FallbackDungeon(req.Seed, req.Theme, req.Rooms, req.AvailableEnemies),
		Fallback: true,
		Cause:    err,
	}
}

type rawSpawn struct {
	Type  string   `json:"type"`
	Count *float64 `json:"count"`
}

type rawRoom struct {
	Enemies     []rawSpawn `json:"enemies"`
	Description *string    `json:"description"`
}

// ParseDungeonRooms decodes a model answer and applies the room rules:
// every requested room appears, enemy types outside the vocabulary are
// dropped, the rest are lower-cased and their counts clamped to [0,10].
func ParseDungeonRooms(raw string, rooms []RoomInfo, vocabulary []string) (map[string]RoomContent, error) {
	obj, err := structured.DecodeObject(raw)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(vocabulary))
	for _, e := range vocabulary {
		allowed[strings.ToLower(e)] = true
	}

	out := make(map[string]RoomContent, len(rooms))
	for _, room := range rooms {
		id := strconv.Itoa(room.ID)

		data, ok := obj[id]
		if !ok || string(data) == "null" {
			out[id] = RoomContent{RoomID: room.ID, Enemies: []EnemySpawn{}, Description: unexploredDescription}
			continue
		}

		var rr rawRoom
		if err := json.Unmarshal(data, &rr); err != nil {
			return nil, fmt.Errorf("%w: room %s: %w", structured.ErrMalformedStructure, id, err)
		}

		enemies := make([]EnemySpawn, 0, len(rr.Enemies))
		for _, s := range rr.Enemies {
			typ := strings.ToLower(strings.TrimSpace(s.Type))
			if !allowed[typ] {
				continue
			}
			count := 1
			if s.Count != nil {
				// clamp before converting: int() of an out-of-range float is undefined
				count = int(math.Max(0, math.Min(*s.Count, MaxEnemyCount)))
			}
			enemies = append(enemies, EnemySpawn{Type: typ, Count: count})
		}

		desc := defaultDescription
		if rr.Description != nil && strings.TrimSpace(*rr.Description) != "" {
			desc = strings.TrimSpace(*rr.Description)
		}

		out[id] = RoomContent{RoomID: room.ID, Enemies: enemies, Description: desc}
	}

	return out, nil
}

func clampCount(n int) int {
	return max(0, min(n, MaxEnemyCount))
}

// FallbackDungeon designs encounters from seed alone, so the same inputs
// always produce the same record:
//   - the start room is empty
//   - a boss room gets one spawn of three enemies, more likely the larger
//     the dungeon, or stays empty
//   - other rooms get one or two spawns whose size grows with room id
func FallbackDungeon(seed int64, theme string, rooms []RoomInfo, vocabulary []string) DungeonContentRecord {
	rng := rand.New(rand.NewSource(seed))

	types := make([]string, 0, len(vocabulary))
	for _, e := range vocabulary {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			types = append(types, e)
		}
	}
	pick := func() string { return types[rng.Intn(len(types))] }

	bossChance := min(1.0, float64(len(rooms))/3.0)

	out := make(map[string]RoomContent, len(rooms))
	for _, room := range rooms {
		id := strconv.Itoa(room.ID)
		rc := RoomContent{RoomID: room.ID, Enemies: []EnemySpawn{}}

		switch {
		case room.IsStart:
			rc.Description = startDescription

		case room.IsBoss:
			rc.Description = bossDescription
			if len(types) > 0 && rng.Float64() < bossChance {
				rc.Enemies = append(rc.Enemies, EnemySpawn{Type: pick(), Count: bossSpawnCount})
			}

		default:
			rc.Description = fmt.Sprintf("Combat room %d", room.ID)
			if len(types) == 0 {
				break
			}
			spawns := 1 + rng.Intn(min(2, len(types)))
			for range spawns {
				count := 1 + rng.Intn(3) + max(room.ID, 0)/3
				rc.Enemies = append(rc.Enemies, EnemySpawn{Type: pick(), Count: clampCount(count)})
			}
		}

		out[id] = rc
	}

	return DungeonContentRecord{Seed: seed, Theme: theme, Rooms: out}
}

// Interrupted reports whether err came from a cancelled or expired context
// rather than from the model. A fallback caused this way is not cached.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
