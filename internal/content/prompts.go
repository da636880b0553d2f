package content

import (
	"fmt"
	"strings"
)

// storyPhase places a room on the story arc.
func storyPhase(roomIndex, totalRooms int) string {
	progress := 0.0
	if totalRooms > 1 {
		progress = float64(roomIndex) / float64(totalRooms-1)
	}
	switch {
	case progress < 0.33:
		return "beginning"
	case progress < 0.66:
		return "middle"
	default:
		return "final"
	}
}

func narrativePrompt(req NarrativeRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a %s story segment for room %d of %d.\n", req.Theme, req.RoomIndex+1, req.TotalRooms)
	fmt.Fprintf(&b, "This is the %s of the adventure.\n", storyPhase(req.RoomIndex, req.TotalRooms))

	if ctx := strings.TrimSpace(req.PreviousContext); ctx != "" {
		b.WriteString("\nStory so far:\n")
		b.WriteString(ctx)
		b.WriteString("\n\nContinue the story coherently, building on what happened before.\n")
	}

	b.WriteString(`
RULES:
1. Output ONLY valid JSON, with no explanation, markdown or extra text
2. Use double quotes for every string
3. Place every comma correctly
4. "dialogue" MUST be an array of EXACTLY 3 strings
5. Do not use apostrophes or single quotes inside the JSON
6. Escape quotes inside strings

Required structure:
{
  "environment": "atmospheric description of the room",
  "npc": {
    "name": "character name",
    "dialogue": ["first line", "second line", "third line"]
  },
  "quest": {
    "objective": "what the player must do",
    "type": "DefeatEnemies",
    "count": 3
  },
  "lore": {
    "title": "lore title",
    "content": "lore content and backstory"
  }
}

Example:
{
  "environment": "A flooded crypt where candles float on black water and the ceiling drips with cold condensation.",
  "npc": {
    "name": "Drowned Warden",
    "dialogue": ["The water remembers every soul that sank here.", "Ghosts rise from the pools when the candles gutter out.", "Cleanse this hall and the lower gate will open for you."]
  },
  "quest": {
    "objective": "Defeat the Ghosts haunting the flooded crypt",
    "type": "DefeatEnemies",
    "count": 4
  },
  "lore": {
    "title": "The Sunken Vigil",
    "content": "Monks once kept a vigil over these tombs until the river broke through the walls. Their lanterns still burn beneath the surface."
  }
}

Now generate the JSON for this room:`)

	return b.String()
}

func roomKind(r RoomInfo) string {
	switch {
	case r.IsStart:
		return "starting room"
	case r.IsBoss:
		return "boss room"
	default:
		return "combat room"
	}
}

// enemyNotes describes the enemy types the game ships with. Unknown types
// in a request are listed without a note.
var enemyNotes = map[string]string{
	"slime": "basic melee enemy, slow but persistent; suits introductory rooms",
	"ghost": "ranged attacker with burst patterns; suits mid-dungeon rooms",
	"grape": "projectile launcher with area denial; suits challenging rooms",
}

func dungeonPrompt(req DungeonRequest) string {
	var b strings.Builder

	b.WriteString("You are a game designer creating enemy encounters for a roguelike dungeon crawler.\n\n")
	b.WriteString("DUNGEON:\n")
	fmt.Fprintf(&b, "- Theme: %s\n", req.Theme)
	fmt.Fprintf(&b, "- Total rooms: %d\n", len(req.Rooms))
	fmt.Fprintf(&b, "- Available enemy types: %s\n\n", strings.Join(req.AvailableEnemies, ", "))

	b.WriteString("ROOMS:\n")
	for _, r := range req.Rooms {
		conns := "none"
		if len(r.Connections) > 0 {
			conns = strings.Join(r.Connections, ", ")
		}
		fmt.Fprintf(&b, "  - Room %d: %s, connections: %s\n", r.ID, roomKind(r), conns)
	}

	b.WriteString("\nENEMIES:\n")
	for _, e := range req.AvailableEnemies {
		if note, ok := enemyNotes[strings.ToLower(e)]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", e, note)
		} else {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	b.WriteString(`
DESIGN RULES:
1. The starting room (is_start=true) has NO enemies
2. Boss rooms (is_boss=true) have 1 strong enemy or many weak ones
3. Rooms with more connections are larger and can hold more enemies
4. Difficulty increases with room id
5. Mix enemy types for interesting combat
6. Normal rooms hold 0-5 enemies in total

Respond ONLY with valid JSON in exactly this format:
{
  "0": {"enemies": [], "description": "Safe starting area"},
  "1": {"enemies": [{"type": "slime", "count": 2}], "description": "Light encounter"},
  "2": {"enemies": [{"type": "slime", "count": 1}, {"type": "ghost", "count": 2}], "description": "Mixed threat"}
}
`)
	fmt.Fprintf(&b, "\nGenerate content for rooms %s:", roomIDList(req.Rooms))

	return b.String()
}

func roomIDList(rooms []RoomInfo) string {
	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = fmt.Sprint(r.ID)
	}
	return strings.Join(ids, ", ")
}

const visionPrompt = `Analyze this 2D roguelike RPG game screenshot (top-down pixel art).

Describe it with:
- environment_type: what kind of area this is (1-2 words)
- atmosphere: the overall feeling and visual mood (2-3 sentences)
- features: 5-7 specific things you see (terrain, structures, objects, enemies)
- mood: the emotional tone, for ambient music generation (1-2 sentences)

Respond ONLY in this JSON format:
{"environment_type": "...", "atmosphere": "...", "features": ["...", "...", "...", "...", "..."], "mood": "..."}`

// chapterPrompt asks for narrator lines, one per line, for a chapter.
func chapterPrompt(ch ChapterSpec) string {
	return fmt.Sprintf(`You are the narrator of a dark fantasy action game.
The player is entering the chapter "%s", where %s waits at the end.
%s

Write exactly 3 dramatic narrator lines spoken as the chapter begins.
Each line is one or two sentences and at least 40 characters long.
Put each line on its own line. Do not number them, do not add stage directions,
and do not write anything else.`, ch.Name, ch.Boss, ch.ProgressContext)
}
