package registry

import (
	"strings"
)

// Stats are the numeric attributes shared by characters and combatants.
type Stats struct {
	HP  int
	TP  int
	STR int
	DEF int
	INT int
	SPD int
}

// Seed carries what is known about an entity when it is first registered.
type Seed struct {
	DisplayName string
	Category    Category
	Placeholder bool
	Clone       bool
	Summon      bool
}

// Character is the persistent profile of one entity, keyed by its
// short identifier.
type Character struct {
	ID          string
	DisplayName string
	Category    Category
	Gender      Gender
	Level       int

	Base             Stats
	IgnitionCapacity int

	Weapons    map[string]int // name → mastery level
	Techniques map[string]int
	Skills     map[string]int
	Styles     map[string]int

	EquippedWeapon string
	CurrentStyle   string

	Resist map[string]bool
	Weak   map[string]bool
	Immune map[string]bool
	Absorb map[string]bool

	Rating  int
	Wins    int
	Losses  int
	Battles int

	TauntVulnerable bool
	Analyzed        bool

	Placeholder bool
	Clone       bool
	Summon      bool
}

// NewCharacter returns an empty profile for id.
func NewCharacter(id string, seed Seed) *Character {
	ch := &Character{
		ID:          id,
		DisplayName: seed.DisplayName,
		Category:    seed.Category,
		Placeholder: seed.Placeholder,
		Clone:       seed.Clone || IsCloneID(id),
		Summon:      seed.Summon || IsSummonID(id),
		Weapons:     map[string]int{},
		Techniques:  map[string]int{},
		Skills:      map[string]int{},
		Styles:      map[string]int{},
		Resist:      map[string]bool{},
		Weak:        map[string]bool{},
		Immune:      map[string]bool{},
		Absorb:      map[string]bool{},
	}
	if ch.DisplayName == "" {
		ch.DisplayName = id
	}
	return ch
}

// BattleScoped reports whether the character only exists for one battle.
func (ch *Character) BattleScoped() bool {
	return ch.Clone || ch.Summon
}

// Mastery returns the mastery level of a weapon or technique, 0 if unknown.
func (ch *Character) Mastery(kind CatalogKind, name string) int {
	m := ch.Weapons
	if kind == KindTechnique {
		m = ch.Techniques
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return 0
}

// HasSkill reports whether the character knows skill.
func (ch *Character) HasSkill(skill string) bool {
	_, ok := ch.Skills[strings.ToLower(skill)]
	return ok
}

// IsCloneID reports the naming convention used for shadow copies.
func IsCloneID(id string) bool {
	return strings.HasSuffix(strings.ToLower(id), "_clone")
}

// IsSummonID reports the naming convention used for summons.
func IsSummonID(id string) bool {
	return strings.HasSuffix(strings.ToLower(id), "_summon")
}

// CloneOwner strips the clone/summon suffix, returning "" for ordinary ids.
func CloneOwner(id string) string {
	lower := strings.ToLower(id)
	for _, suffix := range []string{"_clone", "_summon"} {
		if strings.HasSuffix(lower, suffix) {
			return id[:len(id)-len(suffix)]
		}
	}
	return ""
}

func (ch *Character) affinity(kind string) map[string]bool {
	switch kind {
	case "resist":
		return ch.Resist
	case "weak":
		return ch.Weak
	case "immune":
		return ch.Immune
	case "absorb":
		return ch.Absorb
	}
	return nil
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Copy returns a deep copy, safe to hand to another goroutine.
func (ch *Character) Copy() *Character {
	cp := *ch
	cp.Weapons = cloneIntMap(ch.Weapons)
	cp.Techniques = cloneIntMap(ch.Techniques)
	cp.Skills = cloneIntMap(ch.Skills)
	cp.Styles = cloneIntMap(ch.Styles)
	cp.Resist = cloneSet(ch.Resist)
	cp.Weak = cloneSet(ch.Weak)
	cp.Immune = cloneSet(ch.Immune)
	cp.Absorb = cloneSet(ch.Absorb)
	return &cp
}
