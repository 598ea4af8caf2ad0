package decision

import (
	"sort"
	"strings"

	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/game/registry"
)

// Kind is the action class of a candidate.
type Kind string

const (
	KindAttack Kind = "attack"
	KindTech   Kind = "tech"
	KindTaunt  Kind = "taunt"
	KindSkill  Kind = "skill"
)

// Candidate is one scored option for the current turn.
type Candidate struct {
	Kind    Kind    `json:"kind"`
	Ability string  `json:"ability,omitempty"`
	Target  string  `json:"target,omitempty"` // empty for area actions
	Weapon  string  `json:"weapon,omitempty"` // must be equipped first
	Score   float64 `json:"score"`
}

// Catalog is the part of the registry the engine reads.
type Catalog interface {
	Weapon(name string) (*registry.Weapon, bool)
	Technique(name string) (*registry.Technique, bool)
}

// Situation is everything one decision looks at.
type Situation struct {
	Actor      *registry.Combatant
	Form       Form
	Combatants []*registry.Combatant
	Catalog    Catalog
	PvP        bool
	Turn       int
	Disabled   map[phase.Condition]bool

	// AnalysisPending is set while an earlier analysis has not come back.
	AnalysisPending bool
}

func (s Situation) partition() (allies, targets []*registry.Combatant) {
	seenSelf := false
	for _, c := range s.Combatants {
		if !c.Alive() {
			continue
		}
		if c.ID == s.Actor.ID {
			seenSelf = true
		}
		if s.Actor.Hostile(c, s.PvP) {
			targets = append(targets, c)
		} else {
			allies = append(allies, c)
		}
	}
	if !seenSelf {
		allies = append(allies, s.Actor)
	}
	return allies, targets
}

// equipped is the weapon the actor is holding.
func equipped(ch *registry.Character) string {
	if ch.EquippedWeapon != "" {
		return ch.EquippedWeapon
	}
	return registry.DefaultWeapon
}

// usableWeapons lists weapon names with the equipped one first.
func usableWeapons(s Situation) []string {
	ch := s.Actor.Character
	eq := equipped(ch)
	if s.Disabled[phase.NoWeaponSwitch] || s.Actor.HasStatus(registry.StatusWeaponLock) {
		return []string{eq}
	}
	out := []string{eq}
	for _, name := range sortedKeys(ch.Weapons) {
		if !strings.EqualFold(name, eq) {
			out = append(out, name)
		}
	}
	return out
}

func lookupWeapon(cat Catalog, name string) *registry.Weapon {
	if w, ok := cat.Weapon(name); ok {
		return w
	}
	return registry.NewWeapon(name)
}

func lookupTechnique(cat Catalog, name string) *registry.Technique {
	if t, ok := cat.Technique(name); ok {
		return t
	}
	return registry.NewTechnique(name)
}

// carrier finds the usable weapon a technique is performed with. The
// equipped weapon is assumed when its technique list was never observed.
func carrier(cat Catalog, weapons []string, tech string) (string, bool) {
	for _, wn := range weapons {
		if w, ok := cat.Weapon(wn); ok && w.TechniquesKnown() && w.HasTechnique(tech) {
			return wn, true
		}
	}
	if w, ok := cat.Weapon(weapons[0]); !ok || !w.TechniquesKnown() {
		return weapons[0], true
	}
	return "", false
}

func targetLevel(t *registry.Combatant, actor *registry.Character) int {
	if t.Character.Level > 0 {
		return t.Character.Level
	}
	return actor.Level
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func meanFraction(cs []*registry.Combatant) float64 {
	if len(cs) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range cs {
		sum += c.Band.Fraction()
	}
	return sum / float64(len(cs))
}

// Candidates enumerates every scored option for the actor. An empty result
// means there is nothing worth doing.
func (e *Engine) Candidates(s Situation) []Candidate {
	actor := s.Actor
	ch := actor.Character
	allies, targets := s.partition()
	if len(targets) == 0 {
		return nil
	}

	var out []Candidate
	var open []*registry.Combatant // targets not short-circuited by taunt
	for _, t := range targets {
		if e.opts.Taunt && t.Character.TauntVulnerable {
			out = append(out, Candidate{Kind: KindTaunt, Target: t.ID, Score: tauntPriority})
			continue
		}
		open = append(open, t)
		if e.opts.Taunt {
			out = append(out, Candidate{Kind: KindTaunt, Target: t.ID, Score: tauntIdle})
		}
	}

	weapons := usableWeapons(s)
	for _, wn := range weapons {
		w := lookupWeapon(s.Catalog, wn)
		for _, t := range open {
			o := offense{
				power:    w.Power,
				mastery:  ch.Mastery(registry.KindWeapon, wn),
				stat:     actor.STR,
				debuffed: actor.HasStatus(registry.StatusWeaken),
				level:    targetLevel(t, ch),
				element:  w.Element,
				wtype:    w.Type,
				tags:     w.StatusTags,
				hits:     w.Hits(),
				hitCap:   weaponHitCap,
				repeat:   strings.EqualFold(actor.LastAction, wn),
			}
			if sc, ok := scoreOffense(o, t); ok {
				out = append(out, Candidate{Kind: KindAttack, Ability: wn, Target: t.ID, Weapon: wn, Score: sc})
			}
		}
	}

	if !s.Disabled[phase.NoTechs] && !actor.HasStatus(registry.StatusAmnesia) && !actor.HasStatus(registry.StatusSilence) {
		out = append(out, techniqueCandidates(s, weapons, allies, open)...)
	}

	if !s.Disabled[phase.NoSkills] {
		out = append(out, e.skillCandidates(s, targets, open)...)
	}
	return out
}

func techniqueCandidates(s Situation, weapons []string, allies, open []*registry.Combatant) []Candidate {
	actor := s.Actor
	ch := actor.Character
	own := actor.Band.Fraction()
	var out []Candidate

	for _, name := range sortedKeys(ch.Techniques) {
		t := lookupTechnique(s.Catalog, name)
		if actor.TPKnown && t.TPCost > actor.TP {
			continue
		}
		wn, ok := carrier(s.Catalog, weapons, name)
		if !ok {
			continue
		}
		mastery := ch.Mastery(registry.KindTechnique, name)
		repeat := strings.EqualFold(actor.LastAction, name)
		stat, debuffed := actor.STR, actor.HasStatus(registry.StatusWeaken)
		if t.Magic {
			stat, debuffed = actor.INT, actor.HasStatus(registry.StatusIntDown)
		}
		cand := Candidate{Kind: KindTech, Ability: name, Weapon: wn}

		offenseOn := func(target *registry.Combatant) (float64, bool) {
			return scoreOffense(offense{
				power:     t.Power,
				mastery:   mastery,
				stat:      stat,
				debuffed:  debuffed,
				level:     targetLevel(target, ch),
				element:   t.Element,
				tags:      t.StatusTags,
				hits:      float64(t.Hits),
				hitCap:    techHitCap,
				technique: true,
				magic:     t.Magic,
				repeat:    repeat,
			}, target)
		}

		switch t.Target {
		case registry.TargetAoE, registry.TargetSuicide:
			var scores []float64
			for _, target := range open {
				if sc, ok := offenseOn(target); ok {
					scores = append(scores, sc)
				}
			}
			cand.Score = aggregate(scores)
			if t.Target == registry.TargetSuicide {
				cand.Score *= 1 - own
			}
			if cand.Score > 0 {
				out = append(out, cand)
			}
		case registry.TargetHeal:
			for _, ally := range allies {
				if sc, ok := scoreHeal(t.Power, mastery, actor.INT, ch.Level, repeat, ally); ok {
					c := cand
					c.Target, c.Score = ally.ID, sc
					out = append(out, c)
				}
			}
		case registry.TargetHealAoE:
			var scores []float64
			for _, ally := range allies {
				if sc, ok := scoreHeal(t.Power, mastery, actor.INT, ch.Level, repeat, ally); ok {
					scores = append(scores, sc)
				}
			}
			if cand.Score = aggregate(scores); cand.Score > 0 {
				out = append(out, cand)
			}
		case registry.TargetBoost:
			if actor.HasStatus(registry.StatusBoosted) {
				continue
			}
			cand.Target = actor.ID
			cand.Score = (boostBase + t.Power + float64(mastery)) * own
			if repeat {
				cand.Score /= repeatDivisor
			}
			if cand.Score > 0 {
				out = append(out, cand)
			}
		case registry.TargetBuff:
			bonus := 0.0
			for _, tag := range t.StatusTags {
				if !actor.HasStatus(tag) {
					bonus += statusValue(tag)
				}
			}
			if bonus == 0 {
				continue
			}
			cand.Target = actor.ID
			cand.Score = bonus + t.Power
			if repeat {
				cand.Score /= repeatDivisor
			}
			out = append(out, cand)
		default:
			for _, target := range open {
				if sc, ok := offenseOn(target); ok {
					c := cand
					c.Target, c.Score = target.ID, sc
					out = append(out, c)
				}
			}
		}
	}
	return out
}

func (e *Engine) skillCandidates(s Situation, targets, open []*registry.Combatant) []Candidate {
	actor := s.Actor
	ch := actor.Character
	own := actor.Band.Fraction()
	var out []Candidate

	if e.opts.ShadowCopy && ch.HasSkill(skillShadowCopy) && !ch.BattleScoped() && !cloneAlive(s) {
		last, used := actor.SkillUsedTurn[skillShadowCopy]
		if !used || s.Turn-last >= shadowCooldown {
			if sc := shadowBase * own * meanFraction(targets); sc > 0 {
				out = append(out, Candidate{Kind: KindSkill, Ability: skillShadowCopy, Score: sc})
			}
		}
	}

	if e.opts.Analysis && ch.HasSkill(skillAnalysis) && !s.AnalysisPending {
		for _, t := range open {
			if t.Character.Analyzed {
				continue
			}
			if sc := analysisBase * own * t.Band.Fraction(); sc > 0 {
				out = append(out, Candidate{Kind: KindSkill, Ability: skillAnalysis, Target: t.ID, Score: sc})
			}
		}
	}
	return out
}

func cloneAlive(s Situation) bool {
	want := s.Actor.ID + "_clone"
	for _, c := range s.Combatants {
		if strings.EqualFold(c.ID, want) && c.Alive() {
			return true
		}
	}
	return false
}
