// Package store persists learned profiles and catalog definitions.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/kasuganosora/arenabot/game/registry"
	"github.com/kasuganosora/arenabot/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes registry state through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an already migrated database.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Load reads every persisted profile and definition.
func (s *Store) Load(ctx context.Context) ([]*registry.Character, []*registry.Weapon, []*registry.Technique, error) {
	db := s.db.WithContext(ctx)

	var profiles []model.Profile
	if err := db.Find(&profiles).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load profiles: %w", err)
	}
	var weapons []model.WeaponDef
	if err := db.Find(&weapons).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load weapons: %w", err)
	}
	var techs []model.TechniqueDef
	if err := db.Find(&techs).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load techniques: %w", err)
	}

	chars := make([]*registry.Character, 0, len(profiles))
	for i := range profiles {
		chars = append(chars, characterFrom(&profiles[i]))
	}
	ws := make([]*registry.Weapon, 0, len(weapons))
	for i := range weapons {
		ws = append(ws, weaponFrom(&weapons[i]))
	}
	ts := make([]*registry.Technique, 0, len(techs))
	for i := range techs {
		ts = append(ts, techniqueFrom(&techs[i]))
	}
	s.logger.Info("catalog loaded",
		zap.Int("profiles", len(chars)),
		zap.Int("weapons", len(ws)),
		zap.Int("techniques", len(ts)))
	return chars, ws, ts, nil
}

// Save upserts the changed entries in one transaction. Battle-scoped
// characters are never written.
func (s *Store) Save(ctx context.Context, d registry.Dirty) error {
	if d.Empty() {
		return nil
	}
	var profiles []model.Profile
	for _, ch := range d.Characters {
		if !ch.BattleScoped() {
			profiles = append(profiles, profileFrom(ch))
		}
	}
	weapons := make([]model.WeaponDef, 0, len(d.Weapons))
	for _, w := range d.Weapons {
		weapons = append(weapons, weaponDefFrom(w))
	}
	techs := make([]model.TechniqueDef, 0, len(d.Techniques))
	for _, t := range d.Techniques {
		techs = append(techs, techniqueDefFrom(t))
	}

	upsert := clause.OnConflict{UpdateAll: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(profiles) > 0 {
			if err := tx.Clauses(upsert).Create(&profiles).Error; err != nil {
				return fmt.Errorf("save profiles: %w", err)
			}
		}
		if len(weapons) > 0 {
			if err := tx.Clauses(upsert).Create(&weapons).Error; err != nil {
				return fmt.Errorf("save weapons: %w", err)
			}
		}
		if len(techs) > 0 {
			if err := tx.Clauses(upsert).Create(&techs).Error; err != nil {
				return fmt.Errorf("save techniques: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("catalog saved",
		zap.Int("profiles", len(profiles)),
		zap.Int("weapons", len(weapons)),
		zap.Int("techniques", len(techs)))
	return nil
}

func setList(m map[string]bool) datatypes.JSONSlice[string] {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func listSet(l []string) map[string]bool {
	out := make(map[string]bool, len(l))
	for _, k := range l {
		out[k] = true
	}
	return out
}

func intMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func profileFrom(ch *registry.Character) model.Profile {
	return model.Profile{
		ID:              ch.ID,
		DisplayName:     ch.DisplayName,
		Category:        uint8(ch.Category),
		Gender:          uint8(ch.Gender),
		Level:           ch.Level,
		HP:              ch.Base.HP,
		TP:              ch.Base.TP,
		STR:             ch.Base.STR,
		DEF:             ch.Base.DEF,
		INT:             ch.Base.INT,
		SPD:             ch.Base.SPD,
		Ignition:        ch.IgnitionCapacity,
		Weapons:         datatypes.NewJSONType(intMap(ch.Weapons)),
		Techniques:      datatypes.NewJSONType(intMap(ch.Techniques)),
		Skills:          datatypes.NewJSONType(intMap(ch.Skills)),
		Styles:          datatypes.NewJSONType(intMap(ch.Styles)),
		EquippedWeapon:  ch.EquippedWeapon,
		CurrentStyle:    ch.CurrentStyle,
		Resist:          setList(ch.Resist),
		Weak:            setList(ch.Weak),
		Immune:          setList(ch.Immune),
		Absorb:          setList(ch.Absorb),
		Rating:          ch.Rating,
		Wins:            ch.Wins,
		Losses:          ch.Losses,
		Battles:         ch.Battles,
		TauntVulnerable: ch.TauntVulnerable,
		Analyzed:        ch.Analyzed,
	}
}

func characterFrom(p *model.Profile) *registry.Character {
	ch := registry.NewCharacter(p.ID, registry.Seed{
		DisplayName: p.DisplayName,
		Category:    registry.Category(p.Category),
	})
	ch.Gender = registry.Gender(p.Gender)
	ch.Level = p.Level
	ch.Base = registry.Stats{HP: p.HP, TP: p.TP, STR: p.STR, DEF: p.DEF, INT: p.INT, SPD: p.SPD}
	ch.IgnitionCapacity = p.Ignition
	for dst, src := range map[*map[string]int]map[string]int{
		&ch.Weapons:    p.Weapons.Data(),
		&ch.Techniques: p.Techniques.Data(),
		&ch.Skills:     p.Skills.Data(),
		&ch.Styles:     p.Styles.Data(),
	} {
		if src != nil {
			*dst = src
		}
	}
	ch.EquippedWeapon = p.EquippedWeapon
	ch.CurrentStyle = p.CurrentStyle
	ch.Resist = listSet(p.Resist)
	ch.Weak = listSet(p.Weak)
	ch.Immune = listSet(p.Immune)
	ch.Absorb = listSet(p.Absorb)
	ch.Rating, ch.Wins, ch.Losses, ch.Battles = p.Rating, p.Wins, p.Losses, p.Battles
	ch.TauntVulnerable = p.TauntVulnerable
	ch.Analyzed = p.Analyzed
	return ch
}

func weaponDefFrom(w *registry.Weapon) model.WeaponDef {
	return model.WeaponDef{
		Name:       w.Name,
		Type:       w.Type,
		HitsMin:    w.HitsMin,
		HitsMax:    w.HitsMax,
		Power:      w.Power,
		Element:    w.Element,
		Techniques: w.Techniques,
		StatusTags: w.StatusTags,
		WellKnown:  w.WellKnown,
		Observed:   w.Observed,
	}
}

func weaponFrom(d *model.WeaponDef) *registry.Weapon {
	return &registry.Weapon{
		Name:       d.Name,
		Type:       d.Type,
		HitsMin:    d.HitsMin,
		HitsMax:    d.HitsMax,
		Power:      d.Power,
		Element:    d.Element,
		Techniques: d.Techniques,
		StatusTags: d.StatusTags,
		WellKnown:  d.WellKnown,
		Observed:   d.Observed,
	}
}

func techniqueDefFrom(t *registry.Technique) model.TechniqueDef {
	return model.TechniqueDef{
		Name:       t.Name,
		Target:     string(t.Target),
		TPCost:     t.TPCost,
		Power:      t.Power,
		Element:    t.Element,
		Hits:       t.Hits,
		StatusTags: t.StatusTags,
		Magic:      t.Magic,
		WellKnown:  t.WellKnown,
		Observed:   t.Observed,
	}
}

func techniqueFrom(d *model.TechniqueDef) *registry.Technique {
	hits := d.Hits
	if hits < 1 {
		hits = 1
	}
	return &registry.Technique{
		Name:       d.Name,
		Target:     registry.TargetClass(d.Target),
		TPCost:     d.TPCost,
		Power:      d.Power,
		Element:    d.Element,
		Hits:       hits,
		StatusTags: d.StatusTags,
		Magic:      d.Magic,
		WellKnown:  d.WellKnown,
		Observed:   d.Observed,
	}
}
