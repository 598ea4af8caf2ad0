package decision

import (
	"math"

	"github.com/kasuganosora/arenabot/game/registry"
)

// offense describes one damaging use of a weapon or technique against one
// target. Unknown catalog data arrives as zero power, no element, one hit.
type offense struct {
	power     float64
	mastery   int
	stat      int
	debuffed  bool
	level     int
	element   string
	wtype     string
	tags      []string
	hits      float64
	hitCap    int
	technique bool
	magic     bool
	repeat    bool
}

// base computes power + mastery + stat scaled to the level baseline, with
// the floor fallback applied.
func base(power float64, mastery, stat int, debuffed bool, level int) float64 {
	contribution := float64(stat) * statWeight
	if debuffed {
		contribution /= debuffDivisor
	}
	score := power + float64(mastery) + contribution

	baseline := levelBaseline * float64(max(level, 1))
	factor := math.Min(score/baseline, levelClamp)*levelBlend + levelOffset
	score *= factor

	if score < scoreFloor {
		score = math.Max(contribution, 1)
	}
	return score
}

// scoreOffense rates o against target. ok is false when the candidate must
// be discarded.
func scoreOffense(o offense, target *registry.Combatant) (score float64, ok bool) {
	ch := target.Character
	if !o.magic && target.HasStatus(registry.StatusEthereal) {
		return 0, false
	}

	score = base(o.power, o.mastery, o.stat, o.debuffed, o.level)

	switch affinity(ch, o.element, o.wtype) {
	case "immune":
		return 0, false
	case "absorb":
		if o.technique {
			return 0, false
		}
		score *= absorbPenalty
	case "resist":
		score = score*resistFactor - resistMalus
	case "weak":
		score = score*weakFactor + weakBonus
	}

	score *= bandMultiplier(offenseBand, target.Band)

	for _, tag := range o.tags {
		if !target.HasStatus(tag) {
			score += statusValue(tag)
		}
	}

	if o.repeat {
		score /= repeatDivisor
	}

	score *= harmonic(o.hits, o.hitCap)
	if score <= 0 {
		return 0, false
	}
	return score, true
}

// affinity returns the strongest elemental relation of ch to either key,
// in priority order immune, absorb, resist, weak.
func affinity(ch *registry.Character, keys ...string) string {
	for _, rel := range []struct {
		name string
		set  map[string]bool
	}{
		{"immune", ch.Immune},
		{"absorb", ch.Absorb},
		{"resist", ch.Resist},
		{"weak", ch.Weak},
	} {
		for _, k := range keys {
			if k != "" && rel.set[k] {
				return rel.name
			}
		}
	}
	return ""
}

// scoreHeal rates a healing technique on one ally.
func scoreHeal(power float64, mastery, intel, level int, repeat bool, ally *registry.Combatant) (float64, bool) {
	if !ally.Alive() || ally.HasStatus(registry.StatusZombie) {
		return 0, false
	}
	m := bandMultiplier(healBand, ally.Band)
	if m == 0 {
		return 0, false
	}
	score := base(power, mastery, intel, false, level) * m
	if repeat {
		score /= repeatDivisor
	}
	return score, score > 0
}

// aggregate combines per-target scores of an area action.
func aggregate(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	return mean * (1 + aoeSpread*float64(len(scores)-1))
}
