package content

// NPC speaks the room's dialogue. AudioPaths, when present, names one voice
// file per dialogue line in the same order.
type NPC struct {
	Name       string   `json:"name" validate:"required"`
	Dialogue   []string `json:"dialogue" validate:"len=3,dive,required"`
	AudioPaths []string `json:"audio_paths,omitempty"`
}

type Quest struct {
	Objective string `json:"objective" validate:"required"`
	Type      string `json:"type" validate:"required"`
	Count     int    `json:"count" validate:"gte=0"`
}

type Lore struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// NarrativeRecord is the story content of one room or chapter.
type NarrativeRecord struct {
	RoomIndex   int    `json:"roomIndex"`
	Environment string `json:"environment" validate:"required"`
	NPC         NPC    `json:"npc"`
	Quest       Quest  `json:"quest"`
	Lore        Lore   `json:"lore"`
	Victory     string `json:"victory,omitempty"`
}

// narrativeKeys must all be present in a model's JSON answer.
var narrativeKeys = []string{"environment", "npc", "quest", "lore"}

const (
	DefaultTheme = "dark fantasy dungeon"
	DefaultSeed  = 12345
)

type NarrativeRequest struct {
	RoomIndex       int    `json:"roomIndex" validate:"gte=0"`
	TotalRooms      int    `json:"totalRooms" validate:"gte=1"`
	Theme           string `json:"theme" validate:"required,max=200"`
	Seed            int64  `json:"seed"`
	UseCache        bool   `json:"use_cache"`
	PreviousContext string `json:"previous_context,omitempty" validate:"max=8000"`
}

// DefaultNarrativeRequest holds the values a client may leave out.
func DefaultNarrativeRequest() NarrativeRequest {
	return NarrativeRequest{Theme: DefaultTheme, Seed: DefaultSeed, UseCache: true}
}

type EnemySpawn struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type RoomContent struct {
	RoomID      int          `json:"room_id"`
	Enemies     []EnemySpawn `json:"enemies"`
	Description string       `json:"description"`
}

// RoomInfo describes one room of a generated dungeon layout.
type RoomInfo struct {
	ID          int      `json:"id" validate:"gte=0"`
	Connections []string `json:"connections"`
	IsStart     bool     `json:"is_start"`
	IsBoss      bool     `json:"is_boss"`
}

// DungeonContentRecord maps every requested room id to its encounter.
type DungeonContentRecord struct {
	Seed  int64                  `json:"seed"`
	Theme string                 `json:"theme"`
	Rooms map[string]RoomContent `json:"rooms"`
}

// DefaultEnemies is the vocabulary used when a request names none.
var DefaultEnemies = []string{"slime", "ghost", "grape"}

type DungeonRequest struct {
	Seed             int64      `json:"seed"`
	Theme            string     `json:"theme" validate:"required,max=200"`
	Rooms            []RoomInfo `json:"rooms" validate:"required,min=1,max=200,dive"`
	AvailableEnemies []string   `json:"available_enemies" validate:"max=32,dive,required"`
	UseCache         bool       `json:"use_cache"`
}

func DefaultDungeonRequest() DungeonRequest {
	return DungeonRequest{
		Seed:             DefaultSeed,
		Theme:            DefaultTheme,
		AvailableEnemies: append([]string(nil), DefaultEnemies...),
		UseCache:         true,
	}
}

const (
	DefaultMusicDuration = 30.0
	MaxMusicDuration     = 120.0
)

type MusicRequest struct {
	Description string  `json:"description" validate:"max=1000"`
	Chapter     *int    `json:"chapter,omitempty" validate:"omitempty,gte=0"`
	Seed        *int64  `json:"seed,omitempty"`
	Duration    float64 `json:"duration" validate:"gt=0,lte=120"`
	UseCache    bool    `json:"use_cache"`
}

func DefaultMusicRequest() MusicRequest {
	return MusicRequest{Duration: DefaultMusicDuration, UseCache: true}
}

// AudioArtifact points at a finished audio file.
type AudioArtifact struct {
	Path string `json:"path"`
	Seed int64  `json:"seed"`
}

// VisionRecord describes a room screenshot for downstream prompts.
type VisionRecord struct {
	EnvironmentType string   `json:"environment_type" validate:"min=1,max=100"`
	Atmosphere      string   `json:"atmosphere" validate:"min=10,max=500"`
	Features        []string `json:"features" validate:"min=3,max=10,dive,required"`
	Mood            string   `json:"mood" validate:"min=10,max=500"`
}

var visionKeys = []string{"environment_type", "atmosphere", "features", "mood"}
