package decision

import "github.com/kasuganosora/arenabot/game/registry"

const (
	statWeight      = 0.1
	debuffDivisor   = 4.0
	levelBaseline   = 10.0 // expected score per level
	levelClamp      = 2.0
	levelBlend      = 0.65
	levelOffset     = 0.7
	scoreFloor      = 10.0
	absorbPenalty   = 0.1
	resistFactor    = 0.5
	resistMalus     = 10.0
	weakFactor      = 1.5
	weakBonus       = 10.0
	repeatDivisor   = 2.5
	weaponHitCap    = 6
	techHitCap      = 8
	aoeSpread       = 0.6
	tauntPriority   = 1000.0
	tauntIdle       = 1.0
	shadowBase      = 60.0
	shadowCooldown  = 5
	analysisBase    = 30.0
	boostBase       = 25.0
	jitterMin       = 0.05
	jitterMax       = 0.10
	skillShadowCopy = "shadowcopy"
	skillAnalysis   = "analysis"
)

// offenseBand favors more damaged targets.
var offenseBand = map[registry.HealthBand]float64{
	registry.BandEnhanced:     0.95,
	registry.BandPerfect:      1.0,
	registry.BandGreat:        1.05,
	registry.BandGood:         1.1,
	registry.BandDecent:       1.15,
	registry.BandScratched:    1.2,
	registry.BandBruised:      1.3,
	registry.BandHurt:         1.4,
	registry.BandInjured:      1.5,
	registry.BandInjuredBadly: 1.6,
	registry.BandCritical:     1.7,
	registry.BandHairsBreadth: 1.75,
}

// healBand favors injured allies; healing a healthy one is worthless.
var healBand = map[registry.HealthBand]float64{
	registry.BandEnhanced:     0,
	registry.BandPerfect:      0,
	registry.BandGreat:        0.3,
	registry.BandGood:         0.5,
	registry.BandDecent:       0.8,
	registry.BandScratched:    1.0,
	registry.BandBruised:      1.15,
	registry.BandHurt:         1.3,
	registry.BandInjured:      1.45,
	registry.BandInjuredBadly: 1.55,
	registry.BandCritical:     1.65,
	registry.BandHairsBreadth: 1.75,
}

func bandMultiplier(table map[registry.HealthBand]float64, b registry.HealthBand) float64 {
	if m, ok := table[b]; ok {
		return m
	}
	return 1.0
}

// statusBonus is added once per inflicted status the target does not have.
var statusBonus = map[string]float64{
	registry.StatusStun:        25,
	registry.StatusPetrified:   25,
	registry.StatusFrozen:      20,
	registry.StatusSleep:       20,
	registry.StatusParalysis:   20,
	"charm":                    20,
	registry.StatusIntimidated: 15,
	registry.StatusConfuse:     15,
	registry.StatusBlind:       15,
	registry.StatusSilence:     15,
	registry.StatusAmnesia:     15,
	"poison":                   15,
	registry.StatusWeaken:      10,
	"curse":                    10,
	"slow":                     8,
	registry.StatusIntDown:     8,
	registry.StatusBored:       6,
	registry.StatusDrunk:       6,
	registry.StatusProtect:     12,
	registry.StatusBoosted:     12,
}

func statusValue(tag string) float64 {
	if v, ok := statusBonus[tag]; ok {
		return v
	}
	return 6
}

// harmonic is the diminishing return for n hits, capped.
func harmonic(hits float64, cap int) float64 {
	n := int(hits + 0.5)
	if n < 1 {
		n = 1
	}
	if n > cap {
		n = cap
	}
	sum := 0.0
	for k := 1; k <= n; k++ {
		sum += 1 / float64(k)
	}
	return sum
}
