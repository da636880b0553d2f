package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// KeyLength is the number of hex characters kept from the digest (64 bits).
const KeyLength = 16

// keySeparator joins key material fields. It is a control character that
// does not occur in themes, descriptions or numbers, so ("a_b", "c") and
// ("a", "b_c") never share a key.
const keySeparator = "\x1f"

// Key addresses one entry inside a namespace.
type Key string

// KeyMaterial is the ordered list of request parameters that decide whether
// two requests are cache-equivalent.
type KeyMaterial []string

// Key hashes the material into its cache key.
func (m KeyMaterial) Key() Key {
	return BuildKey(m...)
}

// BuildKey hashes the fields joined by keySeparator with SHA-256 and keeps
// the first KeyLength hex characters.
func BuildKey(fields ...string) Key {
	sum := sha256.Sum256([]byte(strings.Join(fields, keySeparator)))
	return Key(hex.EncodeToString(sum[:])[:KeyLength])
}

// Valid reports whether k has the shape produced by BuildKey.
func (k Key) Valid() bool {
	if len(k) != KeyLength {
		return false
	}
	for _, c := range k {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func (k Key) String() string { return string(k) }

// NarrativeMaterial keys a room narrative.
func NarrativeMaterial(roomIndex, totalRooms int, theme string, seed int64) KeyMaterial {
	return KeyMaterial{
		strconv.Itoa(roomIndex),
		strconv.Itoa(totalRooms),
		theme,
		strconv.FormatInt(seed, 10),
	}
}

// MusicMaterial keys a finished music clip.
func MusicMaterial(description string, seed int64, durationSeconds float64) KeyMaterial {
	return KeyMaterial{
		description,
		strconv.FormatInt(seed, 10),
		strconv.FormatFloat(durationSeconds, 'f', -1, 64),
	}
}

// DungeonMaterial keys dungeon content for a layout. The enemy vocabulary
// is part of the key because it bounds which spawns are valid.
func DungeonMaterial(seed int64, roomCount int, theme string, enemies []string) KeyMaterial {
	return KeyMaterial{
		strconv.FormatInt(seed, 10),
		strconv.Itoa(roomCount),
		theme,
		strings.Join(enemies, ","),
	}
}

// VisionMaterial keys an image analysis by the image content itself.
func VisionMaterial(image []byte) KeyMaterial {
	sum := sha256.Sum256(image)
	return KeyMaterial{hex.EncodeToString(sum[:])}
}
