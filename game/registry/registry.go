// Package registry holds the long-lived entity profiles, the per-battle
// combatants and the weapon/technique catalog. A Registry is not safe for
// concurrent use; callers serialize access.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrUnknownField = errors.New("registry: unknown field")
	ErrBadValue     = errors.New("registry: malformed value")
	ErrNotFound     = errors.New("registry: not found")
)

// Registry owns every Character, Combatant, Weapon and Technique.
type Registry struct {
	characters map[string]*Character
	combatants map[string]*Combatant
	order      []string // combatant keys in entry order
	weapons    map[string]*Weapon
	techniques map[string]*Technique

	dirtyChars   map[string]bool
	dirtyWeapons map[string]bool
	dirtyTechs   map[string]bool

	logger *zap.Logger
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		characters:   map[string]*Character{},
		combatants:   map[string]*Combatant{},
		weapons:      map[string]*Weapon{},
		techniques:   map[string]*Technique{},
		dirtyChars:   map[string]bool{},
		dirtyWeapons: map[string]bool{},
		dirtyTechs:   map[string]bool{},
		logger:       logger,
	}
}

func key(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ---- Characters ----

// RegisterCharacter returns the Character for id, creating it from seed if
// absent. An existing Character is returned unchanged.
func (r *Registry) RegisterCharacter(id string, seed Seed) *Character {
	k := key(id)
	if ch, ok := r.characters[k]; ok {
		return ch
	}
	ch := NewCharacter(strings.TrimSpace(id), seed)
	r.characters[k] = ch
	if !ch.BattleScoped() && !ch.Placeholder {
		r.dirtyChars[k] = true
	}
	r.logger.Debug("character registered",
		zap.String("id", ch.ID),
		zap.String("display_name", ch.DisplayName),
		zap.Stringer("category", ch.Category),
		zap.Bool("placeholder", ch.Placeholder))
	return ch
}

// Rebind fills in a placeholder Character once its display name is
// resolved. Known characters only gain missing data.
func (r *Registry) Rebind(id string, seed Seed) *Character {
	ch := r.RegisterCharacter(id, seed)
	if ch.Placeholder {
		ch.Placeholder = false
		if seed.DisplayName != "" {
			ch.DisplayName = seed.DisplayName
		}
		ch.Category = seed.Category
	} else if ch.Category == CategoryUnknown {
		ch.Category = seed.Category
	}
	ch.Clone = ch.Clone || seed.Clone
	ch.Summon = ch.Summon || seed.Summon
	if !ch.BattleScoped() {
		r.dirtyChars[key(id)] = true
	}
	return ch
}

// Character looks up a Character by short identifier.
func (r *Registry) Character(id string) (*Character, bool) {
	ch, ok := r.characters[key(id)]
	return ch, ok
}

// Characters returns every known Character.
func (r *Registry) Characters() []*Character {
	out := make([]*Character, 0, len(r.characters))
	for _, ch := range r.characters {
		out = append(out, ch)
	}
	return out
}

// Named returns the resolved Characters narrated as name whose category
// could match cat, sorted by id. Placeholders never match.
func (r *Registry) Named(name string, cat Category) []*Character {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var out []*Character
	for _, ch := range r.characters {
		if ch.Placeholder || !strings.EqualFold(ch.DisplayName, name) || !Overlaps(ch.Category, cat) {
			continue
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- Combatants ----

// EnterBattle creates the Combatant for ch. A Character already in battle
// keeps its existing Combatant.
func (r *Registry) EnterBattle(ch *Character) *Combatant {
	k := key(ch.ID)
	if c, ok := r.combatants[k]; ok {
		return c
	}
	c := newCombatant(ch)
	r.combatants[k] = c
	r.order = append(r.order, k)
	return c
}

// Combatant looks up a battle participant.
func (r *Registry) Combatant(id string) (*Combatant, bool) {
	c, ok := r.combatants[key(id)]
	return c, ok
}

// Combatants returns participants in the order they entered.
func (r *Registry) Combatants() []*Combatant {
	out := make([]*Combatant, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.combatants[k])
	}
	return out
}

// InBattle reports whether id has a Combatant.
func (r *Registry) InBattle(id string) bool {
	_, ok := r.combatants[key(id)]
	return ok
}

// EndBattle drops all combatants and purges battle-scoped characters.
// It returns the ids of purged characters.
func (r *Registry) EndBattle() []string {
	var purged []string
	for k, ch := range r.characters {
		if ch.BattleScoped() {
			purged = append(purged, ch.ID)
			delete(r.characters, k)
			delete(r.dirtyChars, k)
		}
	}
	r.combatants = map[string]*Combatant{}
	r.order = nil
	return purged
}

// ensure returns the Character for id, creating a placeholder if needed.
func (r *Registry) ensure(id string) *Character {
	if ch, ok := r.Character(id); ok {
		return ch
	}
	return r.RegisterCharacter(id, Seed{Placeholder: true})
}

// ObserveAttribute applies one attribute fact to the Character and, when it
// is fighting, to its Combatant.
func (r *Registry) ObserveAttribute(id, field, value string) error {
	ch := r.ensure(id)
	c, inBattle := r.Combatant(id)
	value = strings.TrimSpace(value)
	field = strings.ToLower(strings.TrimSpace(field))

	var err error
	switch field {
	case "hp", "tp", "str", "def", "int", "spd":
		var n int
		if n, err = strconv.Atoi(value); err != nil {
			break
		}
		if inBattle {
			*statField(&c.Stats, field) = n
			c.TPKnown = c.TPKnown || field == "tp"
			if field == "hp" && ch.Base.HP > 0 {
				c.Band = BandForFraction(float64(n) / float64(ch.Base.HP))
			}
		} else {
			*statField(&ch.Base, field) = n
		}
	case "base_hp", "base_tp", "base_str", "base_def", "base_int", "base_spd":
		var n int
		if n, err = strconv.Atoi(value); err == nil {
			*statField(&ch.Base, strings.TrimPrefix(field, "base_")) = n
		}
	case "ignition":
		err = atoiInto(&ch.IgnitionCapacity, value)
	case "level":
		err = atoiInto(&ch.Level, value)
	case "rating":
		err = atoiInto(&ch.Rating, value)
	case "wins":
		err = atoiInto(&ch.Wins, value)
	case "losses":
		err = atoiInto(&ch.Losses, value)
	case "gender":
		ch.Gender = ParseGender(value)
	case "category":
		var cat Category
		if cat, err = ParseCategory(value); err == nil {
			ch.Category = cat
		}
	case "weapon", "technique", "skill", "style":
		name, lvl, perr := parseNamedLevel(value)
		if perr != nil {
			return perr
		}
		switch field {
		case "weapon":
			ch.Weapons[name] = lvl
		case "technique":
			ch.Techniques[name] = lvl
		case "skill":
			ch.Skills[strings.ToLower(name)] = lvl
		case "style":
			ch.Styles[strings.ToLower(name)] = lvl
		}
	case "equip":
		ch.EquippedWeapon = value
		if !hasKeyFold(ch.Weapons, value) {
			ch.Weapons[value] = 0
		}
	case "current_style":
		ch.CurrentStyle = strings.ToLower(value)
	case "resist", "weak", "immune", "absorb":
		set := ch.affinity(field)
		for _, el := range splitList(value) {
			set[strings.ToLower(el)] = true
		}
		ch.Analyzed = true
	case "taunt_vulnerable":
		err = boolInto(&ch.TauntVulnerable, value)
	case "analyzed":
		err = boolInto(&ch.Analyzed, value)
	default:
		return fmt.Errorf("%w: attribute %q", ErrUnknownField, field)
	}
	if err != nil {
		return fmt.Errorf("%w: %s %q", ErrBadValue, field, value)
	}
	if !ch.BattleScoped() && !ch.Placeholder {
		r.dirtyChars[key(id)] = true
	}
	return nil
}

func atoiInto(dst *int, s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func boolInto(dst *bool, s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func statField(s *Stats, name string) *int {
	switch name {
	case "hp":
		return &s.HP
	case "tp":
		return &s.TP
	case "str":
		return &s.STR
	case "def":
		return &s.DEF
	case "int":
		return &s.INT
	}
	return &s.SPD
}

func hasKeyFold(m map[string]int, name string) bool {
	for k := range m {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// parseNamedLevel accepts "Name" or "Name:level".
func parseNamedLevel(s string) (string, int, error) {
	name, lvl, found := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, fmt.Errorf("%w: empty name", ErrBadValue)
	}
	if !found {
		return name, 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(lvl))
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("%w: level %q", ErrBadValue, lvl)
	}
	return name, n, nil
}

// ApplyStatus adds a status tag to a combatant.
func (r *Registry) ApplyStatus(id, tag string) error {
	c, ok := r.Combatant(id)
	if !ok {
		return fmt.Errorf("%w: combatant %q", ErrNotFound, id)
	}
	c.Statuses[NormalizeStatus(tag)] = true
	return nil
}

// ClearStatus removes a status tag from a combatant.
func (r *Registry) ClearStatus(id, tag string) error {
	c, ok := r.Combatant(id)
	if !ok {
		return fmt.Errorf("%w: combatant %q", ErrNotFound, id)
	}
	delete(c.Statuses, NormalizeStatus(tag))
	return nil
}

// SetPresence records a death, flight or revival.
func (r *Registry) SetPresence(id string, p Presence) error {
	c, ok := r.Combatant(id)
	if !ok {
		return fmt.Errorf("%w: combatant %q", ErrNotFound, id)
	}
	c.Presence = p
	if p == PresenceDead {
		c.Band = BandDead
	} else if c.Band == BandDead {
		c.Band = BandHairsBreadth
	}
	return nil
}

// ---- Catalog ----

// Weapon looks up a weapon by name.
func (r *Registry) Weapon(name string) (*Weapon, bool) {
	w, ok := r.weapons[key(name)]
	return w, ok
}

// Technique looks up a technique by name.
func (r *Registry) Technique(name string) (*Technique, bool) {
	t, ok := r.techniques[key(name)]
	return t, ok
}

// Weapons returns every catalog weapon.
func (r *Registry) Weapons() []*Weapon {
	out := make([]*Weapon, 0, len(r.weapons))
	for _, w := range r.weapons {
		out = append(out, w)
	}
	return out
}

// Techniques returns every catalog technique.
func (r *Registry) Techniques() []*Technique {
	out := make([]*Technique, 0, len(r.techniques))
	for _, t := range r.techniques {
		out = append(out, t)
	}
	return out
}

// ApplyCatalogFact merges one field into the named entry, creating it if
// absent. A malformed fact leaves the entry untouched.
func (r *Registry) ApplyCatalogFact(kind CatalogKind, name, field, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty %s name", ErrBadValue, kind)
	}
	k := key(name)
	switch kind {
	case KindWeapon:
		w, ok := r.weapons[k]
		if !ok {
			w = NewWeapon(name)
		}
		if err := w.Apply(field, value); err != nil {
			return err
		}
		r.weapons[k] = w
		r.dirtyWeapons[k] = true
	case KindTechnique:
		t, ok := r.techniques[k]
		if !ok {
			t = NewTechnique(name)
		}
		if err := t.Apply(field, value); err != nil {
			return err
		}
		r.techniques[k] = t
		r.dirtyTechs[k] = true
	default:
		return fmt.Errorf("%w: catalog kind %q", ErrBadValue, kind)
	}
	return nil
}

// ---- Persistence ----

// Dirty is the set of entries changed since the last TakeDirty.
type Dirty struct {
	Characters []*Character
	Weapons    []*Weapon
	Techniques []*Technique
}

// Empty reports whether nothing changed.
func (d Dirty) Empty() bool {
	return len(d.Characters) == 0 && len(d.Weapons) == 0 && len(d.Techniques) == 0
}

// TakeDirty returns copies of changed entries and clears the dirty marks.
func (r *Registry) TakeDirty() Dirty {
	var d Dirty
	for k := range r.dirtyChars {
		if ch, ok := r.characters[k]; ok {
			d.Characters = append(d.Characters, ch.Copy())
		}
	}
	for k := range r.dirtyWeapons {
		if w, ok := r.weapons[k]; ok {
			cp := *w
			cp.Techniques = append([]string(nil), w.Techniques...)
			cp.StatusTags = append([]string(nil), w.StatusTags...)
			d.Weapons = append(d.Weapons, &cp)
		}
	}
	for k := range r.dirtyTechs {
		if t, ok := r.techniques[k]; ok {
			cp := *t
			cp.StatusTags = append([]string(nil), t.StatusTags...)
			d.Techniques = append(d.Techniques, &cp)
		}
	}
	r.dirtyChars = map[string]bool{}
	r.dirtyWeapons = map[string]bool{}
	r.dirtyTechs = map[string]bool{}
	return d
}

// MarkDirty flags the entries of d again, typically after a failed save.
func (r *Registry) MarkDirty(d Dirty) {
	for _, ch := range d.Characters {
		r.dirtyChars[key(ch.ID)] = true
	}
	for _, w := range d.Weapons {
		r.dirtyWeapons[key(w.Name)] = true
	}
	for _, t := range d.Techniques {
		r.dirtyTechs[key(t.Name)] = true
	}
}

// Load installs persisted entries without marking them dirty. Entries
// already present in memory win.
func (r *Registry) Load(chars []*Character, weapons []*Weapon, techs []*Technique) {
	for _, ch := range chars {
		if _, ok := r.characters[key(ch.ID)]; !ok && !ch.BattleScoped() {
			r.characters[key(ch.ID)] = ch
		}
	}
	for _, w := range weapons {
		w.evaluate()
		if _, ok := r.weapons[key(w.Name)]; !ok {
			r.weapons[key(w.Name)] = w
		}
	}
	for _, t := range techs {
		t.evaluate()
		if _, ok := r.techniques[key(t.Name)]; !ok {
			r.techniques[key(t.Name)] = t
		}
	}
}
