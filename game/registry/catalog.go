package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// CatalogKind selects the catalog a fact belongs to.
type CatalogKind string

const (
	KindWeapon    CatalogKind = "weapon"
	KindTechnique CatalogKind = "technique"
)

// DefaultWeapon is what an entity fights with when nothing else is known.
const DefaultWeapon = "Fists"

// TargetClass is what a technique can be aimed at.
type TargetClass string

const (
	TargetUnknown TargetClass = ""
	TargetSingle  TargetClass = "single"
	TargetAoE     TargetClass = "aoe"
	TargetHeal    TargetClass = "heal"
	TargetHealAoE TargetClass = "heal-aoe"
	TargetBoost   TargetClass = "boost"
	TargetBuff    TargetClass = "buff"
	TargetSuicide TargetClass = "suicide"
)

func ParseTargetClass(s string) (TargetClass, error) {
	switch t := TargetClass(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetSingle, TargetAoE, TargetHeal, TargetHealAoE, TargetBoost, TargetBuff, TargetSuicide:
		return t, nil
	case "heal-all", "healaoe":
		return TargetHealAoE, nil
	case "all", "area":
		return TargetAoE, nil
	}
	return TargetUnknown, fmt.Errorf("%w: target class %q", ErrBadValue, s)
}

// SelfTargeted reports whether the technique only ever lands on its user.
func (t TargetClass) SelfTargeted() bool {
	return t == TargetBoost || t == TargetBuff
}

// Observed fields, one bit each.
const (
	fieldType uint16 = 1 << iota
	fieldHits
	fieldPower
	fieldElement
	fieldTechniques
	fieldStatus
	fieldTarget
	fieldTPCost
	fieldMagic
)

// Weapon is one weapon definition as accumulated from observed facts.
type Weapon struct {
	Name       string
	Type       string
	HitsMin    int
	HitsMax    int
	Power      float64
	Element    string
	Techniques []string
	StatusTags []string
	WellKnown  bool

	Observed uint16
}

// NewWeapon returns a weapon that has seen nothing yet.
func NewWeapon(name string) *Weapon {
	return &Weapon{Name: name, HitsMin: 1, HitsMax: 1}
}

// Hits is the average strike count.
func (w *Weapon) Hits() float64 {
	if w.HitsMax < w.HitsMin {
		return float64(max(w.HitsMin, 1))
	}
	return float64(max(w.HitsMin+w.HitsMax, 2)) / 2
}

// HasTechnique reports whether the weapon is known to carry tech.
func (w *Weapon) HasTechnique(tech string) bool {
	for _, t := range w.Techniques {
		if strings.EqualFold(t, tech) {
			return true
		}
	}
	return false
}

// TechniquesKnown reports whether the technique list was ever observed.
func (w *Weapon) TechniquesKnown() bool {
	return w.Observed&fieldTechniques != 0
}

func (w *Weapon) evaluate() {
	need := fieldType | fieldHits | fieldPower | fieldElement | fieldTechniques
	w.WellKnown = w.Observed&need == need
}

// Apply merges a single observed field. The weapon is unchanged on error.
func (w *Weapon) Apply(field, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(field) {
	case "type":
		w.Type = strings.ToLower(value)
		w.Observed |= fieldType
	case "hits":
		lo, hi, err := parseRange(value)
		if err != nil {
			return err
		}
		w.HitsMin, w.HitsMax = lo, hi
		w.Observed |= fieldHits
	case "power":
		p, err := parseFloat(value)
		if err != nil {
			return err
		}
		w.Power = p
		w.Observed |= fieldPower
	case "element":
		w.Element = normalizeElement(value)
		w.Observed |= fieldElement
	case "techniques":
		w.Techniques = splitList(value)
		w.Observed |= fieldTechniques
	case "status":
		w.StatusTags = normalizeTags(splitList(value))
		w.Observed |= fieldStatus
	default:
		return fmt.Errorf("%w: weapon field %q", ErrUnknownField, field)
	}
	w.evaluate()
	return nil
}

// Technique is one technique definition as accumulated from observed facts.
type Technique struct {
	Name       string
	Target     TargetClass
	TPCost     int
	Power      float64
	Element    string
	Hits       int
	StatusTags []string
	Magic      bool
	WellKnown  bool

	Observed uint16
}

func NewTechnique(name string) *Technique {
	return &Technique{Name: name, Hits: 1}
}

func (t *Technique) evaluate() {
	need := fieldTarget | fieldTPCost
	if t.Observed&need != need {
		t.WellKnown = false
		return
	}
	t.WellKnown = t.Observed&fieldElement != 0 || t.Target.SelfTargeted()
}

// Apply merges a single observed field. The technique is unchanged on error.
func (t *Technique) Apply(field, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(field) {
	case "target":
		tc, err := ParseTargetClass(value)
		if err != nil {
			return err
		}
		t.Target = tc
		t.Observed |= fieldTarget
	case "tpcost", "tp":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: tp cost %q", ErrBadValue, value)
		}
		t.TPCost = n
		t.Observed |= fieldTPCost
	case "power":
		p, err := parseFloat(value)
		if err != nil {
			return err
		}
		t.Power = p
		t.Observed |= fieldPower
	case "element":
		t.Element = normalizeElement(value)
		t.Observed |= fieldElement
	case "hits":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: hits %q", ErrBadValue, value)
		}
		t.Hits = n
		t.Observed |= fieldHits
	case "status":
		t.StatusTags = normalizeTags(splitList(value))
		t.Observed |= fieldStatus
	case "magic":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: magic %q", ErrBadValue, value)
		}
		t.Magic = b
		t.Observed |= fieldMagic
	default:
		return fmt.Errorf("%w: technique field %q", ErrUnknownField, field)
	}
	t.evaluate()
	return nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%w: number %q", ErrBadValue, s)
	}
	return f, nil
}

// parseRange accepts "3" or "1-4".
func parseRange(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || a < 1 {
		return 0, 0, fmt.Errorf("%w: range %q", ErrBadValue, s)
	}
	if !found {
		return a, a, nil
	}
	b, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || b < a {
		return 0, 0, fmt.Errorf("%w: range %q", ErrBadValue, s)
	}
	return a, b, nil
}

func normalizeElement(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "none" || s == "n/a" {
		return ""
	}
	return s
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '.' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeTags(tags []string) []string {
	for i, t := range tags {
		tags[i] = NormalizeStatus(t)
	}
	return tags
}
