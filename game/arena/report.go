package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kasuganosora/arenabot/game/decision"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/game/registry"
)

// CombatantSummary is a flat, serializable view of one combatant.
type CombatantSummary struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Category    string   `json:"category"`
	Level       int      `json:"level"`
	Health      string   `json:"health"`
	HP          int      `json:"hp"`
	TP          int      `json:"tp"`
	Presence    string   `json:"presence"`
	Statuses    []string `json:"statuses"`
	Turns       int      `json:"turns"`
	LastAction  string   `json:"last_action,omitempty"`
	Controlled  bool     `json:"controlled"`
	Placeholder bool     `json:"placeholder,omitempty"`
}

// BattleReport is what the accountant receives when a battle concludes.
type BattleReport struct {
	BattleID   string             `json:"battle_id"`
	Type       phase.BattleType   `json:"type"`
	Outcome    phase.Outcome      `json:"outcome"`
	Turns      int                `json:"turns"`
	Commands   int                `json:"commands"`
	Bot        string             `json:"bot"`
	BotEntered bool               `json:"bot_entered"`
	Combatants []CombatantSummary `json:"combatants"`
	OpenedAt   time.Time          `json:"opened_at"`
	EndedAt    time.Time          `json:"ended_at"`
}

// Duration is how long the battle ran from its announcement.
func (r BattleReport) Duration() time.Duration {
	if r.OpenedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.OpenedAt)
}

func (a *Arena) summarize(c *registry.Combatant) CombatantSummary {
	_, controlled := a.formOf(c.ID)
	return CombatantSummary{
		ID:          c.ID,
		DisplayName: c.Character.DisplayName,
		Category:    c.Character.Category.String(),
		Level:       c.Character.Level,
		Health:      c.Band.String(),
		HP:          c.HP,
		TP:          c.TP,
		Presence:    c.Presence.String(),
		Statuses:    c.StatusList(),
		Turns:       c.Turns,
		LastAction:  c.LastAction,
		Controlled:  controlled,
		Placeholder: c.Character.Placeholder,
	}
}

// report captures the running battle. Callers hold the lock.
func (a *Arena) report(outcome phase.Outcome) BattleReport {
	r := BattleReport{
		BattleID:   a.phase.BattleID(),
		Type:       a.phase.BattleType(),
		Outcome:    outcome,
		Turns:      a.phase.Turn(),
		Commands:   a.commands,
		Bot:        a.bot.Name,
		BotEntered: a.reg.InBattle(a.bot.Name),
		OpenedAt:   a.openedAt,
		EndedAt:    time.Now(),
	}
	for _, c := range a.reg.Combatants() {
		r.Combatants = append(r.Combatants, a.summarize(c))
	}
	return r
}

// State is a point-in-time view of the arena for the admin API.
type State struct {
	Phase          phase.Snapshot     `json:"phase"`
	Combatants     []CombatantSummary `json:"combatants"`
	PendingNames   int                `json:"pending_names"`
	PendingIDs     int                `json:"pending_ids"`
	Deciding       bool               `json:"deciding"`
	AnalysisActive bool               `json:"analysis_pending"`
	Commands       int                `json:"commands"`
}

// Snapshot returns the current state.
func (a *Arena) Snapshot() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := State{
		Phase:          a.phase.Snapshot(),
		Combatants:     []CombatantSummary{},
		Deciding:       a.working.Load(),
		AnalysisActive: a.analysis,
		Commands:       a.commands,
	}
	s.PendingNames, s.PendingIDs = a.res.Pending()
	for _, c := range a.reg.Combatants() {
		s.Combatants = append(s.Combatants, a.summarize(c))
	}
	return s
}

// Characters returns copies of every known profile sorted by id.
func (a *Arena) Characters() []*registry.Character {
	a.mu.RLock()
	defer a.mu.RUnlock()
	chars := a.reg.Characters()
	out := make([]*registry.Character, 0, len(chars))
	for _, ch := range chars {
		out = append(out, ch.Copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Character returns a copy of one profile.
func (a *Arena) Character(id string) (*registry.Character, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ch, ok := a.reg.Character(id)
	if !ok {
		return nil, false
	}
	return ch.Copy(), true
}

// Catalog is the weapon and technique catalog.
type Catalog struct {
	Weapons    []registry.Weapon    `json:"weapons"`
	Techniques []registry.Technique `json:"techniques"`
}

// Catalog returns copies of the catalog sorted by name.
func (a *Arena) Catalog() Catalog {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var c Catalog
	for _, w := range a.reg.Weapons() {
		c.Weapons = append(c.Weapons, *w)
	}
	for _, t := range a.reg.Techniques() {
		c.Techniques = append(c.Techniques, *t)
	}
	sort.Slice(c.Weapons, func(i, j int) bool { return c.Weapons[i].Name < c.Weapons[j].Name })
	sort.Slice(c.Techniques, func(i, j int) bool { return c.Techniques[i].Name < c.Techniques[j].Name })
	return c
}

// Preview evaluates what actor would do right now without emitting or
// recording anything. It shares the engine with the worker and fails while
// a decision is running.
func (a *Arena) Preview(actor string) (decision.Decision, error) {
	form, ok := a.formOf(actor)
	if !ok {
		return decision.Decision{}, fmt.Errorf("%w: %s", ErrNotControlled, actor)
	}
	if !a.working.CompareAndSwap(false, true) {
		return decision.Decision{}, ErrWorkerBusy
	}
	defer a.working.Store(false)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.phase.Is(phase.Started) {
		return decision.Decision{}, ErrNoBattle
	}
	return a.evaluate(actor, form)
}

// Events returns up to n recently handled facts, newest first.
func (a *Arena) Events(ctx context.Context, n int) ([]Fact, error) {
	if a.cache == nil || n <= 0 {
		return []Fact{}, nil
	}
	raw, err := a.cache.LRange(ctx, KeyEvents, 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	out := make([]Fact, 0, len(raw))
	for _, s := range raw {
		var f Fact
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
