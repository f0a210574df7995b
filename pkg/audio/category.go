// ABOUTME: Sound categories
// ABOUTME: Closed enumeration keying per-category volume and stream budgets
package audio

import (
	"fmt"
	"strings"
)

// Category classifies a stream; each category has its own volume level and concurrency budget
type Category uint8

const (
	// Effect is a short sound effect
	Effect Category = iota
	// Music is a background music track
	Music

	// NumCategories is the number of mixable categories
	NumCategories = int(Music) + 1

	// Mixed tags chunks produced by the mixer itself. It is not a mixable category.
	Mixed Category = 0xFF
)

// Categories lists every mixable category in mixing order
var Categories = [NumCategories]Category{Effect, Music}

// Valid reports whether c can key a mixer table
func (c Category) Valid() bool {
	return int(c) < NumCategories
}

func (c Category) String() string {
	switch c {
	case Effect:
		return "effect"
	case Music:
		return "music"
	case Mixed:
		return "mixed"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// ParseCategory converts a name such as "effect" or "music" into a Category
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "effect", "effects", "sfx", "sound":
		return Effect, nil
	case "music", "bgm":
		return Music, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}
