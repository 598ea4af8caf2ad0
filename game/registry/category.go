package registry

import (
	"fmt"
	"strings"
)

// Category is a set of faction flags. The zero value is Unknown and
// overlaps with everything.
type Category uint8

const (
	CategoryPlayer Category = 1 << iota
	CategoryAlly
	CategoryMonster

	CategoryUnknown Category = 0
)

// Overlaps reports whether a and b could describe the same entity.
func Overlaps(a, b Category) bool {
	return a == CategoryUnknown || b == CategoryUnknown || a&b != 0
}

// Has reports whether every flag in other is set.
func (c Category) Has(other Category) bool {
	return other != 0 && c&other == other
}

// MonsterSide reports whether c fights on the monster side. Unknown
// counts as monster so unidentified arrivals are treated as opponents.
func (c Category) MonsterSide() bool {
	return c == CategoryUnknown || (c&CategoryMonster != 0 && c&(CategoryPlayer|CategoryAlly) == 0)
}

func (c Category) String() string {
	if c == CategoryUnknown {
		return "unknown"
	}
	var parts []string
	if c&CategoryPlayer != 0 {
		parts = append(parts, "player")
	}
	if c&CategoryAlly != 0 {
		parts = append(parts, "ally")
	}
	if c&CategoryMonster != 0 {
		parts = append(parts, "monster")
	}
	return strings.Join(parts, "|")
}

// ParseCategory accepts single names and "|" or "," joined combinations.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "unknown" {
		return CategoryUnknown, nil
	}
	var c Category
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "player":
			c |= CategoryPlayer
		case "ally", "npc":
			c |= CategoryAlly
		case "monster", "boss":
			c |= CategoryMonster
		case "unknown", "":
		default:
			return CategoryUnknown, fmt.Errorf("%w: category %q", ErrBadValue, part)
		}
	}
	return c, nil
}

// Gender is only kept for profile display.
type Gender uint8

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
	GenderNeuter
)

func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "his", "he":
		return GenderMale
	case "female", "f", "her", "she":
		return GenderFemale
	case "neuter", "it", "its":
		return GenderNeuter
	}
	return GenderUnknown
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	case GenderNeuter:
		return "neuter"
	}
	return "unknown"
}
