package content

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func threeRooms() []RoomInfo {
	return []RoomInfo{
		{ID: 0, Connections: []string{"1"}, IsStart: true},
		{ID: 1, Connections: []string{"0", "2"}},
		{ID: 2, Connections: []string{"1"}, IsBoss: true},
	}
}

func TestParseDungeonRoomsRules(t *testing.T) {
	raw := `Here you go:
{
  "0": {"enemies": [], "description": "Safe starting area"},
  "2": {"enemies": [{"type": "Ghost", "count": 40}, {"type": "dragon", "count": 1}, {"type": "SLIME", "count": -2}, {"type": "grape"}]},
  "1": {"enemies": [{"type": "slime", "count": 1e20}, {"type": "ghost", "count": -9.9e18}, {"type": "grape", "count": 2.7}], "description": "Flooded hall"},
}`
	rooms, err := ParseDungeonRooms(raw, threeRooms(), DefaultEnemies)
	require.NoError(t, err)
	require.Len(t, rooms, 3)

	assert.Equal(t, RoomContent{RoomID: 0, Enemies: []EnemySpawn{}, Description: "Safe starting area"}, rooms["0"])
	assert.Equal(t, RoomContent{
		RoomID: 1,
		Enemies: []EnemySpawn{
			{Type: "slime", Count: 10},
			{Type: "ghost", Count: 0},
			{Type: "grape", Count: 2},
		},
		Description: "Flooded hall",
	}, rooms["1"])
	assert.Equal(t, RoomContent{
		RoomID: 2,
		Enemies: []EnemySpawn{
			{Type: "ghost", Count: 10},
			{Type: "slime", Count: 0},
			{Type: "grape", Count: 1},
		},
		Description: "A dungeon room",
	}, rooms["2"])
}

func TestParseDungeonRoomsRejectsBadShapes(t *testing.T) {
	_, err := ParseDungeonRooms("no braces here", threeRooms(), DefaultEnemies)
	assert.Error(t, err)

	_, err = ParseDungeonRooms(`{"1": "just a string"}`, threeRooms(), DefaultEnemies)
	assert.Error(t, err)
}

func TestDungeonOmittedRoomIsUnexplored(t *testing.T) {
	text := &scriptedText{replies: []string{`{"0": {"enemies": [], "description": "Safe starting area"}, "2": {"enemies": [{"type": "ghost", "count": 2}], "description": "Boss chamber"}}`}}
	req := DungeonRequest{Seed: 5, Theme: DefaultTheme, Rooms: threeRooms(), AvailableEnemies: DefaultEnemies}

	res := NewDungeon(text, TextConfig{}, zaptest.NewLogger(t)).Generate(context.Background(), req)
	require.False(t, res.Fallback)

	room := res.Record.Rooms["1"]
	assert.Empty(t, room.Enemies)
	assert.Equal(t, "Unexplored area", room.Description)
	assert.Equal(t, int64(5), res.Record.Seed)
	assert.Equal(t, DefaultTheme, res.Record.Theme)
}

func TestDungeonFallsBackAfterExhaustion(t *testing.T) {
	text := &scriptedText{replies: []string{"I cannot do that."}}
	req := DungeonRequest{Seed: 77, Theme: DefaultTheme, Rooms: threeRooms(), AvailableEnemies: DefaultEnemies}

	res := NewDungeon(text, TextConfig{}, zaptest.NewLogger(t)).Generate(context.Background(), req)
	assert.True(t, res.Fallback)
	assert.Error(t, res.Cause)
	assert.False(t, Interrupted(res.Cause))
	assert.Equal(t, 3, text.calls())
	assert.Equal(t, FallbackDungeon(77, DefaultTheme, req.Rooms, req.AvailableEnemies), res.Record)
}

func TestDungeonCancelledFallbackIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := &scriptedText{replies: []string{"{}"}}
	req := DungeonRequest{Seed: 1, Theme: DefaultTheme, Rooms: threeRooms(), AvailableEnemies: DefaultEnemies}

	res := NewDungeon(text, TextConfig{}, zaptest.NewLogger(t)).Generate(ctx, req)
	assert.True(t, res.Fallback)
	assert.True(t, Interrupted(res.Cause))
	assert.Equal(t, 0, text.calls())
}

func TestFallbackDungeonDeterministic(t *testing.T) {
	rooms := []RoomInfo{{ID: 0, IsStart: true}}
	for i := 1; i < 12; i++ {
		rooms = append(rooms, RoomInfo{ID: i})
	}
	rooms = append(rooms, RoomInfo{ID: 12, IsBoss: true})

	a, err := json.Marshal(FallbackDungeon(42, DefaultTheme, rooms, DefaultEnemies))
	require.NoError(t, err)
	b, err := json.Marshal(FallbackDungeon(42, DefaultTheme, rooms, DefaultEnemies))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	rec := FallbackDungeon(42, DefaultTheme, rooms, []string{"Slime", "Ghost"})
	assert.Empty(t, rec.Rooms["0"].Enemies)
	assert.Equal(t, "Safe starting area", rec.Rooms["0"].Description)

	// 13 rooms make the boss spawn certain
	boss := rec.Rooms["12"]
	assert.Equal(t, "Boss chamber", boss.Description)
	require.Len(t, boss.Enemies, 1)
	assert.Equal(t, 3, boss.Enemies[0].Count)

	for i := 1; i < 12; i++ {
		room := rec.Rooms[jsonID(i)]
		assert.Equal(t, "Combat room "+jsonID(i), room.Description)
		require.NotEmpty(t, room.Enemies)
		assert.LessOrEqual(t, len(room.Enemies), 2)
		for _, e := range room.Enemies {
			assert.Contains(t, []string{"slime", "ghost"}, e.Type)
			assert.GreaterOrEqual(t, e.Count, 1+i/3)
			assert.LessOrEqual(t, e.Count, min(3+i/3, MaxEnemyCount))
		}
	}
}

func TestFallbackDungeonEmptyVocabulary(t *testing.T) {
	rec := FallbackDungeon(3, DefaultTheme, threeRooms(), nil)
	for id, room := range rec.Rooms {
		assert.Empty(t, room.Enemies, "room %s", id)
		assert.NotNil(t, room.Enemies, "room %s should encode as []", id)
	}
}

func TestDungeonPromptListsRooms(t *testing.T) {
	p := dungeonPrompt(DungeonRequest{Theme: "ice caves", Rooms: threeRooms(), AvailableEnemies: []string{"slime", "yeti"}})
	assert.Contains(t, p, "Room 0: starting room, connections: 1")
	assert.Contains(t, p, "Room 2: boss room, connections: 1")
	assert.Contains(t, p, "- yeti\n")
	assert.True(t, strings.HasSuffix(p, "rooms 0, 1, 2:"))
}

func jsonID(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
