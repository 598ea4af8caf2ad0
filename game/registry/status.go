package registry

import "strings"

// HealthBand is the coarse health label narrated for a combatant.
type HealthBand uint8

const (
	BandUnknown HealthBand = iota
	BandEnhanced
	BandPerfect
	BandGreat
	BandGood
	BandDecent
	BandScratched
	BandBruised
	BandHurt
	BandInjured
	BandInjuredBadly
	BandCritical
	BandHairsBreadth
	BandDead
)

var bandLabels = map[HealthBand]string{
	BandEnhanced:     "enhanced",
	BandPerfect:      "perfect",
	BandGreat:        "great",
	BandGood:         "good",
	BandDecent:       "decent",
	BandScratched:    "scratched",
	BandBruised:      "bruised",
	BandHurt:         "hurt",
	BandInjured:      "injured",
	BandInjuredBadly: "injured badly",
	BandCritical:     "critical",
	BandHairsBreadth: "alive by a hair's breadth",
	BandDead:         "dead",
}

var bandFractions = map[HealthBand]float64{
	BandEnhanced:     1.0,
	BandPerfect:      1.0,
	BandGreat:        0.9,
	BandGood:         0.8,
	BandDecent:       0.7,
	BandScratched:    0.6,
	BandBruised:      0.5,
	BandHurt:         0.4,
	BandInjured:      0.3,
	BandInjuredBadly: 0.2,
	BandCritical:     0.1,
	BandHairsBreadth: 0.05,
	BandDead:         0,
}

// ParseHealthBand maps a narrated label to a band. Unrecognized labels
// yield BandUnknown.
func ParseHealthBand(s string) HealthBand {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Contains(s, "hair") {
		return BandHairsBreadth
	}
	for b, label := range bandLabels {
		if s == label {
			return b
		}
	}
	return BandUnknown
}

func (b HealthBand) String() string {
	if l, ok := bandLabels[b]; ok {
		return l
	}
	return "unknown"
}

// Fraction approximates remaining health in [0,1]. Unknown reads as full.
func (b HealthBand) Fraction() float64 {
	if f, ok := bandFractions[b]; ok {
		return f
	}
	return 1.0
}

// BandForFraction picks the band a raw HP ratio falls into.
func BandForFraction(f float64) HealthBand {
	switch {
	case f <= 0:
		return BandDead
	case f > 1:
		return BandEnhanced
	case f == 1:
		return BandPerfect
	case f >= 0.9:
		return BandGreat
	case f >= 0.8:
		return BandGood
	case f >= 0.7:
		return BandDecent
	case f >= 0.6:
		return BandScratched
	case f >= 0.5:
		return BandBruised
	case f >= 0.4:
		return BandHurt
	case f >= 0.3:
		return BandInjured
	case f >= 0.2:
		return BandInjuredBadly
	case f >= 0.1:
		return BandCritical
	}
	return BandHairsBreadth
}

// Well-known status tags.
const (
	StatusStun        = "stun"
	StatusFrozen      = "frozen"
	StatusConfuse     = "confuse"
	StatusPetrified   = "petrified"
	StatusBored       = "bored"
	StatusSleep       = "sleep"
	StatusIntimidated = "intimidated"
	StatusParalysis   = "paralysis"
	StatusBlind       = "blind"
	StatusDrunk       = "drunk"

	StatusWeaken     = "weaken"
	StatusIntDown    = "intdown"
	StatusAmnesia    = "amnesia"
	StatusSilence    = "silence"
	StatusWeaponLock = "weaponlock"
	StatusEthereal   = "ethereal"
	StatusZombie     = "zombie"
	StatusBoosted    = "boosted"
	StatusProtect    = "protect"
)

var incapacitating = map[string]bool{
	StatusStun:        true,
	StatusFrozen:      true,
	StatusConfuse:     true,
	StatusPetrified:   true,
	StatusBored:       true,
	StatusSleep:       true,
	StatusIntimidated: true,
	StatusParalysis:   true,
	StatusBlind:       true,
	StatusDrunk:       true,
}

var statusAliases = map[string]string{
	"stunned":     StatusStun,
	"confused":    StatusConfuse,
	"asleep":      StatusSleep,
	"paralyzed":   StatusParalysis,
	"blinded":     StatusBlind,
	"weakened":    StatusWeaken,
	"int down":    StatusIntDown,
	"silenced":    StatusSilence,
	"weapon lock": StatusWeaponLock,
	"boost":       StatusBoosted,
	"protected":   StatusProtect,
}

// NormalizeStatus lower-cases a tag and folds common aliases.
func NormalizeStatus(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if canon, ok := statusAliases[tag]; ok {
		return canon
	}
	return tag
}

// Incapacitating reports whether tag prevents the holder from acting.
func Incapacitating(tag string) bool {
	return incapacitating[NormalizeStatus(tag)]
}

// Presence tracks whether a combatant is still on the field.
type Presence uint8

const (
	PresenceAlive Presence = iota
	PresenceDead
	PresenceFled
)

func ParsePresence(s string) (Presence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alive", "revived", "":
		return PresenceAlive, nil
	case "dead", "killed", "defeated":
		return PresenceDead, nil
	case "fled", "ran", "escaped":
		return PresenceFled, nil
	}
	return PresenceAlive, ErrBadValue
}

func (p Presence) String() string {
	switch p {
	case PresenceDead:
		return "dead"
	case PresenceFled:
		return "fled"
	}
	return "alive"
}
