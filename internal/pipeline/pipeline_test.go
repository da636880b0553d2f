package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"genforge-gateway/internal/audio"
	"genforge-gateway/internal/cache"
	"genforge-gateway/internal/content"
	"genforge-gateway/internal/worker"
)

type fakeText struct {
	mu      sync.Mutex
	replies []string
	seeds   []int64
}

func (f *fakeText) GenerateText(_ context.Context, _ string, seed int64, _ float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.seeds)
	f.seeds = append(f.seeds, seed)
	if len(f.replies) == 0 {
		return "", errors.New("no reply")
	}
	return f.replies[min(n, len(f.replies)-1)], nil
}

func (f *fakeText) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeds)
}

type fakeAnalyzer struct {
	reply string
	calls int
}

func (f *fakeAnalyzer) AnalyzeImage(context.Context, []byte, string) (string, error) {
	f.calls++
	return f.reply, nil
}

func sine(n, sampleRate int) audio.Waveform {
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate))
	}
	return audio.Waveform{Samples: s, SampleRate: sampleRate}
}

type fakeAudio struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAudio) GenerateAudio(_ context.Context, _ string, _ int64, seconds float64) (audio.Waveform, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return sine(int(seconds*float64(audio.MusicSampleRate)/100), audio.MusicSampleRate), nil
}

type fakeSpeaker struct {
	mu    sync.Mutex
	seeds []int64
}

func (f *fakeSpeaker) Synthesize(_ context.Context, _, _ string, seed int64) (audio.Waveform, error) {
	f.mu.Lock()
	f.seeds = append(f.seeds, seed)
	f.mu.Unlock()
	return sine(2205, audio.VoiceSampleRate), nil
}

const roomNarrative = `{
  "environment": "A cold vault lined with cracked sarcophagi.",
  "npc": {"name": "Old Keeper", "dialogue": ["Mind the dust here.", "The dead sleep lightly.", "Take the torch."]},
  "quest": {"objective": "Defeat the restless dead", "type": "DefeatEnemies", "count": 3},
  "lore": {"title": "The Quiet Vault", "content": "Kings were buried here with their guards."}
}`

type harness struct {
	orch     *Orchestrator
	cache    *cache.Manager
	text     *fakeText
	music    *fakeAudio
	analyzer *fakeAnalyzer
}

func newHarness(t *testing.T, text *fakeText) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cm := cache.NewManager(cache.NewMemoryStore(), logger)
	queue := worker.NewSerial("music", 4, logger)
	t.Cleanup(queue.Close)

	h := &harness{cache: cm, text: text, music: &fakeAudio{}, analyzer: &fakeAnalyzer{}}
	h.orch = NewOrchestrator(cm, Generators{
		Narrative: content.NewNarrative(text, nil, content.TextConfig{}, logger),
		Dungeon:   content.NewDungeon(text, content.TextConfig{}, logger),
		Music:     content.NewMusic(h.music, queue, content.MusicConfig{OutputDir: t.TempDir(), CrossfadeSeconds: 0.01}, logger),
		Vision:    content.NewVision(h.analyzer, 0, logger),
	}, logger)
	return h
}

func stats(t *testing.T, h *harness) cache.Stats {
	t.Helper()
	s, err := h.orch.CacheStats(context.Background())
	require.NoError(t, err)
	return s
}

func TestNarrativeMalformedThenValidCachedOnce(t *testing.T) {
	h := newHarness(t, &fakeText{replies: []string{`{"environment": "cut off`, roomNarrative}})
	ctx := context.Background()
	req := content.NarrativeRequest{RoomIndex: 0, TotalRooms: 3, Theme: content.DefaultTheme, Seed: 42, UseCache: true}

	rec, err := h.orch.Narrative(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 43}, h.text.seeds)
	assert.Equal(t, "Old Keeper", rec.NPC.Name)
	assert.Equal(t, 1, stats(t, h)[cache.NamespaceNarrative])
	assert.Equal(t, 1, stats(t, h).Total())

	var cached content.NarrativeRecord
	require.True(t, h.cache.GetJSON(ctx, cache.NamespaceNarrative, cache.NarrativeMaterial(0, 3, content.DefaultTheme, 42), &cached))
	assert.Equal(t, rec, cached)

	again, err := h.orch.Narrative(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, 2, h.text.calls())
}

func TestNarrativeFailureNotCached(t *testing.T) {
	h := newHarness(t, &fakeText{replies: []string{"nothing useful"}})
	req := content.NarrativeRequest{RoomIndex: 0, TotalRooms: 3, Theme: content.DefaultTheme, Seed: 1, UseCache: true}

	_, err := h.orch.Narrative(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, stats(t, h).Total())
}

func TestNarrativeWithoutCacheNeverWrites(t *testing.T) {
	h := newHarness(t, &fakeText{replies: []string{roomNarrative}})
	req := content.NarrativeRequest{RoomIndex: 1, TotalRooms: 3, Theme: content.DefaultTheme, Seed: 1}

	_, err := h.orch.Narrative(context.Background(), req)
	require.NoError(t, err)
	_, err = h.orch.Narrative(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, h.text.calls())
	assert.Equal(t, 0, stats(t, h).Total())
}

func dungeonRequest() content.DungeonRequest {
	return content.DungeonRequest{
		Seed:  7,
		Theme: content.DefaultTheme,
		Rooms: []content.RoomInfo{
			{ID: 0, Connections: []string{"1"}, IsStart: true},
			{ID: 1, Connections: []string{"0", "2"}},
			{ID: 2, Connections: []string{"1"}, IsBoss: true},
		},
		AvailableEnemies: content.DefaultEnemies,
		UseCache:         true,
	}
}

func TestDungeonMissingRoomIsUnexplored(t *testing.T) {
	reply := `{"0": {"enemies": [], "description": "Safe starting area"}, "2": {"enemies": [{"type": "ghost", "count": 4}], "description": "Boss chamber"}}`
	h := newHarness(t, &fakeText{replies: []string{reply}})

	rec := h.orch.Dungeon(context.Background(), dungeonRequest())
	require.Len(t, rec.Rooms, 3)
	assert.Equal(t, "Unexplored area", rec.Rooms["1"].Description)
	assert.Empty(t, rec.Rooms["1"].Enemies)
	assert.Equal(t, []content.EnemySpawn{{Type: "ghost", Count: 4}}, rec.Rooms["2"].Enemies)

	again := h.orch.Dungeon(context.Background(), dungeonRequest())
	assert.Equal(t, rec, again)
	assert.Equal(t, 1, h.text.calls())
	assert.Equal(t, 1, stats(t, h)[cache.NamespaceDungeon])
}

func TestDungeonFallbackIsCached(t *testing.T) {
	h := newHarness(t, &fakeText{replies: []string{"no idea"}})
	req := dungeonRequest()

	rec := h.orch.Dungeon(context.Background(), req)
	assert.Equal(t, content.FallbackDungeon(req.Seed, req.Theme, req.Rooms, req.AvailableEnemies), rec)
	assert.Equal(t, 3, h.text.calls())
	assert.Equal(t, 1, stats(t, h)[cache.NamespaceDungeon])
}

func TestDungeonInterruptedFallbackNotCached(t *testing.T) {
	h := newHarness(t, &fakeText{replies: []string{"{}"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := h.orch.Dungeon(ctx, dungeonRequest())
	assert.Len(t, rec.Rooms, 3)
	assert.Equal(t, 0, stats(t, h).Total())
}

func TestDungeonCachedLayoutMustCoverRooms(t *testing.T) {
	reply := `{"0": {"enemies": [], "description": "Start"}, "1": {"enemies": [], "description": "Hall"}, "2": {"enemies": [], "description": "End"}, "5": {"enemies": [], "description": "Far"}}`
	h := newHarness(t, &fakeText{replies: []string{reply}})

	h.orch.Dungeon(context.Background(), dungeonRequest())

	req := dungeonRequest()
	req.Rooms[2].ID = 5
	rec := h.orch.Dungeon(context.Background(), req)
	assert.Equal(t, "Far", rec.Rooms["5"].Description)
	assert.Equal(t, 2, h.text.calls())
}

func TestMusicSecondCallServedFromCache(t *testing.T) {
	h := newHarness(t, &fakeText{})
	seed := int64(42)
	req := content.MusicRequest{Description: "dark crypt", Seed: &seed, Duration: 10, UseCache: true}

	first, err := h.orch.Music(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first.Seed)
	_, err = os.Stat(first.Path)
	require.NoError(t, err)

	second, err := h.orch.Music(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.music.calls)
	assert.Equal(t, 1, stats(t, h)[cache.NamespaceMusic])
}

func TestMusicStaleFileRegenerates(t *testing.T) {
	h := newHarness(t, &fakeText{})
	seed := int64(3)
	req := content.MusicRequest{Description: "windy cliffs", Seed: &seed, Duration: 5, UseCache: true}

	first, err := h.orch.Music(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.Path))

	second, err := h.orch.Music(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, h.music.calls)
	_, err = os.Stat(second.Path)
	assert.NoError(t, err)
}

func TestDisabledFeatures(t *testing.T) {
	cm := cache.NewManager(cache.NewMemoryStore(), zaptest.NewLogger(t))
	orch := NewOrchestrator(cm, Generators{}, zaptest.NewLogger(t))

	assert.Equal(t, Features{}, orch.Features())
	assert.Empty(t, orch.VoiceDir())

	_, err := orch.Music(context.Background(), content.DefaultMusicRequest())
	assert.ErrorIs(t, err, ErrFeatureDisabled)
	_, err = orch.Vision(context.Background(), []byte("img"), true)
	assert.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestVisionCachedByImageContent(t *testing.T) {
	h := newHarness(t, &fakeText{})
	h.analyzer.reply = `{"environment_type": "cave", "atmosphere": "Damp and echoing.", "features": ["stalactites", "pool", "bats"], "mood": "Tense and watchful."}`

	a, err := h.orch.Vision(context.Background(), []byte("image-a"), true)
	require.NoError(t, err)
	_, err = h.orch.Vision(context.Background(), []byte("image-a"), true)
	require.NoError(t, err)
	assert.Equal(t, 1, h.analyzer.calls)
	assert.Equal(t, "cave", a.EnvironmentType)

	_, err = h.orch.Vision(context.Background(), []byte("image-b"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, h.analyzer.calls)
	assert.Equal(t, 2, stats(t, h)[cache.NamespaceVision])

	require.NoError(t, h.orch.ClearCache(context.Background()))
	assert.Equal(t, 0, stats(t, h).Total())
}

const narratorLines = `1. The gate groans open and the smell of rot rolls out to greet you.
2. Somewhere below, a crown of slime waits for a brand new subject.
3. Go carefully, for every step you take here has been counted before.`

func TestPregenWritesChaptersAndManifest(t *testing.T) {
	logger := zaptest.NewLogger(t)
	musicQueue := worker.NewSerial("music", 4, logger)
	voiceQueue := worker.NewSerial("voice", 4, logger)
	t.Cleanup(musicQueue.Close)
	t.Cleanup(voiceQueue.Close)

	speaker := &fakeSpeaker{}
	music := &fakeAudio{}
	p := NewPregen(
		content.NewChapter(&fakeText{replies: []string{narratorLines}}, content.TextConfig{}, logger),
		content.NewMusic(music, musicQueue, content.MusicConfig{CrossfadeSeconds: 0.01}, logger),
		content.NewVoice(speaker, voiceQueue, content.VoiceConfig{}, logger),
		logger,
	)

	out := t.TempDir()
	plan := content.DefaultChapterPlan()
	manifest, err := p.Run(context.Background(), plan, PregenOptions{OutputDir: out, Workers: 2, MusicDuration: 2})
	require.NoError(t, err)

	require.Len(t, manifest.Chapters, 3)
	assert.Equal(t, plan.Seed, manifest.Seed)
	assert.Equal(t, ChapterFiles{
		Narrative: "narrative.json",
		Music:     "music.wav",
		Voice:     []string{"voice_0.wav", "voice_1.wav", "voice_2.wav"},
	}, manifest.Chapters[1].Files)

	for i := range plan.Chapters {
		dir := ChapterDir(out, i)
		data, err := os.ReadFile(filepath.Join(dir, NarrativeFile))
		require.NoError(t, err)
		var rec content.NarrativeRecord
		require.NoError(t, json.Unmarshal(data, &rec))
		assert.Equal(t, i, rec.RoomIndex)
		assert.Len(t, rec.NPC.Dialogue, 3)

		for _, name := range manifest.Chapters[i].Files.Voice {
			_, err := audio.ReadFile(filepath.Join(dir, name))
			assert.NoError(t, err)
		}
		_, err = audio.ReadFile(filepath.Join(dir, MusicFile))
		assert.NoError(t, err)
	}

	assert.Equal(t, 3, music.calls)
	assert.Len(t, speaker.seeds, 9)
	assert.ElementsMatch(t, []int64{42, 43, 44, 45, 46, 47, 48, 49, 50}, speaker.seeds)

	data, err := os.ReadFile(filepath.Join(out, ManifestFile))
	require.NoError(t, err)
	var onDisk Manifest
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, manifest, onDisk)
}

func TestPregenTextOnly(t *testing.T) {
	logger := zaptest.NewLogger(t)
	p := NewPregen(content.NewChapter(&fakeText{replies: []string{narratorLines}}, content.TextConfig{}, logger), nil, nil, logger)

	manifest, err := p.Run(context.Background(), content.DefaultChapterPlan(), PregenOptions{OutputDir: t.TempDir()})
	require.NoError(t, err)
	for _, ch := range manifest.Chapters {
		assert.Equal(t, ChapterFiles{Narrative: NarrativeFile}, ch.Files)
	}
}

func TestPregenFailsWithoutManifest(t *testing.T) {
	logger := zaptest.NewLogger(t)
	p := NewPregen(content.NewChapter(&fakeText{replies: []string{"Sure!"}}, content.TextConfig{}, logger), nil, nil, logger)

	out := t.TempDir()
	_, err := p.Run(context.Background(), content.DefaultChapterPlan(), PregenOptions{OutputDir: out})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(out, ManifestFile))
	assert.True(t, os.IsNotExist(err))
}
