package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCharacter_Idempotent(t *testing.T) {
	r := New(nil)
	a := r.RegisterCharacter("Bob", Seed{DisplayName: "Bob the Brave", Category: CategoryPlayer})
	b := r.RegisterCharacter("bob", Seed{DisplayName: "Someone Else", Category: CategoryMonster})

	assert.Same(t, a, b)
	assert.Equal(t, "Bob the Brave", b.DisplayName)
	assert.Equal(t, CategoryPlayer, b.Category)
	assert.Len(t, r.Characters(), 1)
}

func TestRegisterCharacter_DefaultsDisplayName(t *testing.T) {
	r := New(nil)
	ch := r.RegisterCharacter("goblin", Seed{})
	assert.Equal(t, "goblin", ch.DisplayName)
	assert.False(t, ch.BattleScoped())
}

func TestRebind_Placeholder(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.ObserveAttribute("orc", "hp", "50"))
	ch, ok := r.Character("orc")
	require.True(t, ok)
	assert.True(t, ch.Placeholder)

	got := r.Rebind("orc", Seed{DisplayName: "A Fierce Orc", Category: CategoryMonster})
	assert.Same(t, ch, got)
	assert.False(t, got.Placeholder)
	assert.Equal(t, "A Fierce Orc", got.DisplayName)
	assert.Equal(t, CategoryMonster, got.Category)
	assert.Equal(t, 50, got.Base.HP)
}

func TestRebind_KnownCharacterKeepsName(t *testing.T) {
	r := New(nil)
	r.RegisterCharacter("alice", Seed{DisplayName: "Alice", Category: CategoryPlayer})
	got := r.Rebind("alice", Seed{DisplayName: "Alicia", Category: CategoryMonster})
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, CategoryPlayer, got.Category)
}

func TestEnterBattle_CopiesBaseline(t *testing.T) {
	r := New(nil)
	ch := r.RegisterCharacter("alice", Seed{Category: CategoryPlayer})
	ch.Base = Stats{HP: 100, TP: 20, STR: 10}

	c := r.EnterBattle(ch)
	assert.Equal(t, 100, c.HP)
	assert.Equal(t, BandPerfect, c.Band)

	c.HP = 10
	assert.Equal(t, 100, ch.Base.HP, "combatant must not alias the baseline")

	again := r.EnterBattle(ch)
	assert.Same(t, c, again)
	assert.Len(t, r.Combatants(), 1)
}

func TestEndBattle_PurgesBattleScoped(t *testing.T) {
	r := New(nil)
	alice := r.RegisterCharacter("alice", Seed{Category: CategoryPlayer})
	clone := r.RegisterCharacter("alice_clone", Seed{Category: CategoryPlayer})
	summon := r.RegisterCharacter("imp", Seed{Category: CategoryAlly, Summon: true})
	r.EnterBattle(alice)
	r.EnterBattle(clone)
	r.EnterBattle(summon)
	require.NoError(t, r.ApplyCatalogFact(KindWeapon, "Sword", "power", "10"))

	purged := r.EndBattle()

	assert.ElementsMatch(t, []string{"alice_clone", "imp"}, purged)
	assert.Empty(t, r.Combatants())
	_, ok := r.Character("alice")
	assert.True(t, ok)
	_, ok = r.Character("alice_clone")
	assert.False(t, ok)
	_, ok = r.Weapon("sword")
	assert.True(t, ok, "catalog survives the battle")
}

func TestObserveAttribute_InBattleTouchesCombatantOnly(t *testing.T) {
	r := New(nil)
	ch := r.RegisterCharacter("alice", Seed{Category: CategoryPlayer})
	ch.Base.HP = 200
	r.EnterBattle(ch)

	require.NoError(t, r.ObserveAttribute("alice", "hp", "100"))
	require.NoError(t, r.ObserveAttribute("alice", "tp", "15"))

	c, _ := r.Combatant("alice")
	assert.Equal(t, 100, c.HP)
	assert.Equal(t, BandBruised, c.Band)
	assert.True(t, c.TPKnown)
	assert.Equal(t, 200, ch.Base.HP)
}

func TestObserveAttribute_ProfileFields(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.ObserveAttribute("alice", "weapon", "Sword:5"))
	require.NoError(t, r.ObserveAttribute("alice", "technique", "Fireball:3"))
	require.NoError(t, r.ObserveAttribute("alice", "skill", "ShadowCopy"))
	require.NoError(t, r.ObserveAttribute("alice", "equip", "Sword"))
	require.NoError(t, r.ObserveAttribute("alice", "weak", "fire, ice"))
	require.NoError(t, r.ObserveAttribute("alice", "level", "12"))

	ch, _ := r.Character("alice")
	assert.Equal(t, 5, ch.Mastery(KindWeapon, "sword"))
	assert.Equal(t, 3, ch.Mastery(KindTechnique, "fireball"))
	assert.True(t, ch.HasSkill("shadowcopy"))
	assert.Equal(t, "Sword", ch.EquippedWeapon)
	assert.True(t, ch.Weak["fire"])
	assert.True(t, ch.Weak["ice"])
	assert.True(t, ch.Analyzed)
	assert.Equal(t, 12, ch.Level)
}

func TestObserveAttribute_BadValueLeavesField(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.ObserveAttribute("alice", "level", "7"))
	err := r.ObserveAttribute("alice", "level", "seven")
	assert.ErrorIs(t, err, ErrBadValue)
	ch, _ := r.Character("alice")
	assert.Equal(t, 7, ch.Level)

	assert.ErrorIs(t, r.ObserveAttribute("alice", "charisma", "9"), ErrUnknownField)
}

func TestStatusAndPresence(t *testing.T) {
	r := New(nil)
	c := r.EnterBattle(r.RegisterCharacter("alice", Seed{}))

	require.NoError(t, r.ApplyStatus("alice", "Stunned"))
	assert.True(t, c.HasStatus(StatusStun))
	assert.True(t, c.Incapacitated())

	require.NoError(t, r.ClearStatus("alice", "stun"))
	assert.False(t, c.Incapacitated())

	require.NoError(t, r.SetPresence("alice", PresenceDead))
	assert.False(t, c.Alive())
	assert.Equal(t, BandDead, c.Band)

	assert.ErrorIs(t, r.ApplyStatus("nobody", "stun"), ErrNotFound)
}

func TestHostile(t *testing.T) {
	r := New(nil)
	p := r.EnterBattle(r.RegisterCharacter("p", Seed{Category: CategoryPlayer}))
	a := r.EnterBattle(r.RegisterCharacter("a", Seed{Category: CategoryAlly}))
	m := r.EnterBattle(r.RegisterCharacter("m", Seed{Category: CategoryMonster}))
	u := r.EnterBattle(r.RegisterCharacter("u", Seed{}))

	assert.False(t, p.Hostile(a, false))
	assert.True(t, p.Hostile(m, false))
	assert.True(t, p.Hostile(u, false), "unknown fights on the monster side")
	assert.False(t, m.Hostile(u, false))
	assert.True(t, p.Hostile(a, true))
	assert.False(t, p.Hostile(p, true))

	pc := r.EnterBattle(r.RegisterCharacter("p_clone", Seed{Category: CategoryPlayer}))
	assert.False(t, p.Hostile(pc, true), "own clone is never an opponent")
	assert.True(t, a.Hostile(pc, true))
}

func TestTakeDirty(t *testing.T) {
	r := New(nil)
	r.RegisterCharacter("alice", Seed{Category: CategoryPlayer})
	r.RegisterCharacter("alice_clone", Seed{})
	require.NoError(t, r.ApplyCatalogFact(KindTechnique, "Fire", "tpcost", "5"))

	d := r.TakeDirty()
	require.Len(t, d.Characters, 1)
	assert.Equal(t, "alice", d.Characters[0].ID)
	assert.Len(t, d.Techniques, 1)
	assert.True(t, r.TakeDirty().Empty())
}

func TestLoad_MemoryWins(t *testing.T) {
	r := New(nil)
	r.RegisterCharacter("alice", Seed{DisplayName: "Alice"})
	stored := NewCharacter("alice", Seed{DisplayName: "Old Alice"})
	other := NewCharacter("bob", Seed{DisplayName: "Bob"})
	w := NewWeapon("Sword")
	w.Observed = fieldType | fieldHits | fieldPower | fieldElement | fieldTechniques

	r.Load([]*Character{stored, other}, []*Weapon{w}, nil)

	ch, _ := r.Character("alice")
	assert.Equal(t, "Alice", ch.DisplayName)
	_, ok := r.Character("bob")
	assert.True(t, ok)
	got, _ := r.Weapon("sword")
	assert.True(t, got.WellKnown)
}

func TestCategory(t *testing.T) {
	assert.True(t, Overlaps(CategoryUnknown, CategoryMonster))
	assert.True(t, Overlaps(CategoryPlayer|CategoryAlly, CategoryAlly))
	assert.False(t, Overlaps(CategoryPlayer, CategoryMonster))

	c, err := ParseCategory("player|ally")
	require.NoError(t, err)
	assert.Equal(t, CategoryPlayer|CategoryAlly, c)
	assert.Equal(t, "player|ally", c.String())

	c, err = ParseCategory("boss")
	require.NoError(t, err)
	assert.Equal(t, CategoryMonster, c)

	_, err = ParseCategory("dragon")
	assert.ErrorIs(t, err, ErrBadValue)
}

func TestCloneOwner(t *testing.T) {
	assert.Equal(t, "alice", CloneOwner("alice_clone"))
	assert.Equal(t, "Imp", CloneOwner("Imp_summon"))
	assert.Equal(t, "", CloneOwner("alice"))
	assert.True(t, IsCloneID("Alice_Clone"))
}

func TestHealthBand(t *testing.T) {
	assert.Equal(t, BandInjuredBadly, ParseHealthBand("Injured Badly"))
	assert.Equal(t, BandHairsBreadth, ParseHealthBand("Alive by a hair's breadth"))
	assert.Equal(t, BandUnknown, ParseHealthBand("glowing"))
	assert.Equal(t, 1.0, BandUnknown.Fraction())
	assert.Equal(t, BandCritical, BandForFraction(0.15))
	assert.Equal(t, BandEnhanced, BandForFraction(1.2))
}

func TestNamed(t *testing.T) {
	r := New(nil)
	r.RegisterCharacter("alice", Seed{DisplayName: "Alice", Category: CategoryPlayer})
	r.RegisterCharacter("alice2", Seed{DisplayName: "alice", Category: CategoryPlayer})
	r.RegisterCharacter("mimic", Seed{DisplayName: "Alice", Category: CategoryMonster})
	r.RegisterCharacter("ghost", Seed{DisplayName: "Alice", Placeholder: true})

	got := r.Named(" ALICE ", CategoryPlayer)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].ID)
	assert.Equal(t, "alice2", got[1].ID)

	assert.Len(t, r.Named("Alice", CategoryUnknown), 3)
	assert.Empty(t, r.Named("", CategoryPlayer))
	assert.Empty(t, r.Named("Bob", CategoryPlayer))
}
