package registry

import (
	"sort"
	"strings"
	"time"
)

// Combatant is a character's presence in the current battle.
type Combatant struct {
	ID        string
	Character *Character

	Stats
	TPKnown bool

	Band     HealthBand
	Statuses map[string]bool
	Presence Presence

	Turns         int
	LastAction    string
	SkillUsedTurn map[string]int
	JoinedAt      time.Time
}

func newCombatant(ch *Character) *Combatant {
	return &Combatant{
		ID:            ch.ID,
		Character:     ch,
		Stats:         ch.Base,
		Band:          BandPerfect,
		Statuses:      map[string]bool{},
		SkillUsedTurn: map[string]int{},
		JoinedAt:      time.Now(),
	}
}

// Alive reports whether the combatant can still act or be targeted.
func (c *Combatant) Alive() bool {
	return c.Presence == PresenceAlive && c.Band != BandDead
}

// HasStatus reports whether tag is currently applied.
func (c *Combatant) HasStatus(tag string) bool {
	return c.Statuses[NormalizeStatus(tag)]
}

// Incapacitated reports whether any applied status prevents acting.
func (c *Combatant) Incapacitated() bool {
	for tag := range c.Statuses {
		if incapacitating[tag] {
			return true
		}
	}
	return false
}

// ReplaceStatuses swaps the status set for the tags reported with a turn.
func (c *Combatant) ReplaceStatuses(tags []string) {
	c.Statuses = make(map[string]bool, len(tags))
	for _, t := range tags {
		if t = NormalizeStatus(t); t != "" {
			c.Statuses[t] = true
		}
	}
}

// StatusList returns the applied tags in sorted order.
func (c *Combatant) StatusList() []string {
	out := make([]string, 0, len(c.Statuses))
	for t := range c.Statuses {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Hostile reports whether other is an opponent of c. In PvP everyone else
// is, except an entity's own clones and summons.
func (c *Combatant) Hostile(other *Combatant, pvp bool) bool {
	if other.ID == c.ID {
		return false
	}
	if pvp {
		return !sameOwner(c.ID, other.ID)
	}
	return c.Character.Category.MonsterSide() != other.Character.Category.MonsterSide()
}

func sameOwner(a, b string) bool {
	oa, ob := CloneOwner(a), CloneOwner(b)
	if oa == "" {
		oa = a
	}
	if ob == "" {
		ob = b
	}
	return strings.EqualFold(oa, ob)
}
