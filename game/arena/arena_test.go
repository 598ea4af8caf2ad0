package arena

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/game/registry"
	"github.com/kasuganosora/arenabot/plugin/hook"
	"github.com/kasuganosora/arenabot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu      sync.Mutex
	notices []Notice
}

func (f *fakeOutbox) Deliver(_ context.Context, n Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

func (f *fakeOutbox) lines(kind NoticeKind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.notices {
		if n.Kind == kind {
			out = append(out, n.Line)
		}
	}
	return out
}

type fakeAccountant struct {
	mu      sync.Mutex
	reports []BattleReport
}

func (f *fakeAccountant) RecordBattle(_ context.Context, r BattleReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
}

func (f *fakeAccountant) last(t *testing.T) BattleReport {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.reports)
	return f.reports[len(f.reports)-1]
}

type fakeStore struct {
	mu    sync.Mutex
	saved []registry.Dirty
	chars []*registry.Character
}

func (f *fakeStore) Load(context.Context) ([]*registry.Character, []*registry.Weapon, []*registry.Technique, error) {
	return f.chars, nil, nil, nil
}

func (f *fakeStore) Save(_ context.Context, d registry.Dirty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, d)
	return nil
}

type harness struct {
	*Arena
	out  *fakeOutbox
	acct *fakeAccountant
}

func botConfig() config.BotConfig {
	return config.BotConfig{
		Name:            "Hero",
		MaxRetries:      1,
		RetryDelay:      time.Millisecond,
		AcquirePoll:     5 * time.Millisecond,
		AcquireAttempts: 4,
	}
}

func newHarness(t *testing.T, bot config.BotConfig) *harness {
	t.Helper()
	c, _ := testutil.SetupTestCache(t)
	return newHarnessWith(t, bot, config.TransportConfig{}, c)
}

func newHarnessWith(t *testing.T, bot config.BotConfig, transport config.TransportConfig, c cache.Cache) *harness {
	t.Helper()
	h := &harness{out: &fakeOutbox{}, acct: &fakeAccountant{}}
	h.Arena = New(bot, config.BattleConfig{EntryWindow: time.Minute}, transport, Deps{
		Outbox:     h.out,
		Accountant: h.acct,
		Cache:      c,
	})
	require.NoError(t, h.Start(context.Background(), 0))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return h
}

func (h *harness) feed(t *testing.T, kind Kind, payload any) error {
	t.Helper()
	f, err := NewFact(kind, payload)
	require.NoError(t, err)
	return h.Handle(context.Background(), f)
}

func (h *harness) must(t *testing.T, kind Kind, payload any) {
	t.Helper()
	require.NoError(t, h.feed(t, kind, payload))
}

func (h *harness) enter(t *testing.T, id, category string) {
	t.Helper()
	h.must(t, KindEntityEntered, map[string]any{"display_name": id, "identifier": id, "category": category})
}

// startBattle opens a battle with Hero against one goblin.
func (h *harness) startBattle(t *testing.T) {
	t.Helper()
	h.must(t, KindBattleOpened, map[string]any{"type": "normal", "duration_seconds": 60})
	h.enter(t, "Hero", "player")
	h.enter(t, "Gob", "monster")
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Hero", "Gob"}})
}

func TestHandle_UnknownKind(t *testing.T) {
	h := newHarness(t, botConfig())
	err := h.Handle(context.Background(), Fact{Kind: "weather_changed"})
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Equal(t, phase.Idle, h.Snapshot().Phase.State)
}

func TestHandle_BadPayload(t *testing.T) {
	h := newHarness(t, botConfig())
	err := h.Handle(context.Background(), Fact{Kind: KindBattleOpened, Payload: []byte(`{"type":`)})
	assert.True(t, errors.Is(err, ErrBadPayload))
	assert.Equal(t, phase.Idle, h.Snapshot().Phase.State)
}

func TestHandle_UnseenIdentifierBecomesPlaceholder(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindAttributeObserved, map[string]any{"identifier": "Ghost", "field": "level", "value": "12"})

	ch, ok := h.Character("Ghost")
	require.True(t, ok)
	assert.True(t, ch.Placeholder)
	assert.Equal(t, 12, ch.Level)
}

func TestHandle_EventLog(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindBattleOpened, map[string]any{"type": "boss", "duration_seconds": 30})
	h.enter(t, "Gob", "monster")

	events, err := h.Events(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindEntityEntered, events[0].Kind)
	assert.Equal(t, KindBattleOpened, events[1].Kind)
}

func TestTurn_ControlledEntityAttacks(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero", "health": "Perfect"})
	h.wg.Wait()

	assert.Equal(t, []string{"!attack Gob"}, h.out.lines(NoticeCommand))
	snap := h.Snapshot()
	assert.Equal(t, 1, snap.Commands)
	for _, c := range snap.Combatants {
		if c.ID == "Hero" {
			assert.Equal(t, registry.DefaultWeapon, c.LastAction)
			assert.True(t, c.Controlled)
		}
	}
}

func TestTurn_OtherEntityDoesNotDecide(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Gob", "health": "Hurt"})
	h.wg.Wait()
	assert.Empty(t, h.out.lines(NoticeCommand))
}

func TestTurn_IncapacitatedSkipsDecision(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero", "statuses": []string{"stunned"}})
	h.wg.Wait()
	assert.Empty(t, h.out.lines(NoticeCommand))
}

func TestTurn_OutsideBattleRejected(t *testing.T) {
	h := newHarness(t, botConfig())
	err := h.feed(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	assert.True(t, errors.Is(err, phase.ErrTransition))
}

func TestDecision_StaleTurnEmitsNothing(t *testing.T) {
	bot := botConfig()
	bot.ThinkMin, bot.ThinkMax = 300*time.Millisecond, 300*time.Millisecond
	h := newHarness(t, bot)
	h.startBattle(t)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	require.Eventually(t, h.working.Load, time.Second, time.Millisecond)
	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Gob"})
	h.wg.Wait()

	assert.Empty(t, h.out.lines(NoticeCommand))
	stats, err := h.cache.HGetAll(context.Background(), KeyStats)
	require.NoError(t, err)
	assert.Equal(t, "1", stats["stale"])
}

func TestDecision_NoTargetsDiagnosesAndRetries(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindBattleOpened, map[string]any{"type": "normal"})
	h.enter(t, "Hero", "player")
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Hero"}})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()

	assert.Empty(t, h.out.lines(NoticeCommand))
	diags := h.out.lines(NoticeDiagnostic)
	require.Len(t, diags, 2, "first attempt plus one retry")
	assert.Contains(t, diags[0], "no targets")
}

func TestDecision_SecondWorkerIsRejected(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)

	h.working.Store(true)
	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()
	h.working.Store(false)
	assert.Empty(t, h.out.lines(NoticeCommand))
}

func TestDecision_BeforeEmitHookSuppresses(t *testing.T) {
	h := newHarness(t, botConfig())
	h.hooks.Register(hook.BeforeCommandEmit, 0, "quiet", func(_ context.Context, _ string, data any) (any, error) {
		return data, hook.ErrInterrupt
	})
	h.startBattle(t)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()
	assert.Empty(t, h.out.lines(NoticeCommand))
}

func TestDecision_BeforeEmitHookRewrites(t *testing.T) {
	h := newHarness(t, botConfig())
	h.hooks.Register(hook.BeforeCommandEmit, 0, "shout", func(_ context.Context, _ string, data any) (any, error) {
		em := data.(*Emission)
		em.Line = strings.ToUpper(em.Line)
		return em, nil
	})
	h.startBattle(t)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()
	assert.Equal(t, []string{"!ATTACK GOB"}, h.out.lines(NoticeCommand))
}

func TestDecision_AcquiresUnknownTechniqueFirst(t *testing.T) {
	bot := botConfig()
	bot.AcquireCatalog = true
	h := newHarness(t, bot)
	h.startBattle(t)
	h.must(t, KindAttributeObserved, map[string]any{"identifier": "Hero", "field": "technique", "value": "Fire:2"})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()

	lines := h.out.lines(NoticeCommand)
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "!view-info technique Fire", lines[0])

	// Asked once per process.
	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Gob"})
	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()
	var queries int
	for _, l := range h.out.lines(NoticeCommand) {
		if strings.HasPrefix(l, "!view-info") {
			queries++
		}
	}
	assert.Equal(t, 1, queries)
}

func TestDecision_CloneForm(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Hero's shadow", "identifier": "Hero_clone", "category": "player", "clone": true})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero_clone"})
	h.wg.Wait()
	assert.Equal(t, []string{"!shadow attack Gob"}, h.out.lines(NoticeCommand))
}

func TestBattleStarted_ResolvesNarratedNames(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindBattleOpened, map[string]any{"type": "normal"})
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Alice", "category": "player"})
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Bob_the_Goblin", "category": "monster"})
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Bob", "Alice2"}})

	alice, ok := h.Character("Alice2")
	require.True(t, ok)
	assert.Equal(t, "Alice", alice.DisplayName)
	assert.False(t, alice.Placeholder)

	bob, ok := h.Character("Bob")
	require.True(t, ok)
	assert.Equal(t, "Bob_the_Goblin", bob.DisplayName)
	assert.Equal(t, registry.CategoryMonster, bob.Category)

	snap := h.Snapshot()
	assert.Equal(t, phase.Started, snap.Phase.State)
	assert.Zero(t, snap.PendingNames)
	assert.Zero(t, snap.PendingIDs)
}

func TestBattleEnded_AccountsAndPurges(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Imp", "identifier": "Imp_summon", "category": "monster", "summon": true})

	h.must(t, KindBattleEnded, map[string]any{"outcome": "victory"})

	r := h.acct.last(t)
	assert.Equal(t, phase.OutcomeVictory, r.Outcome)
	assert.True(t, r.BotEntered)
	assert.Len(t, r.Combatants, 3)

	snap := h.Snapshot()
	assert.Equal(t, phase.Idle, snap.Phase.State)
	assert.Empty(t, snap.Combatants)
	_, ok := h.Character("Imp_summon")
	assert.False(t, ok)
	hero, ok := h.Character("Hero")
	require.True(t, ok)
	assert.Equal(t, 1, hero.Wins)
	assert.Equal(t, 1, hero.Battles)
}

func TestBattleEnded_WithoutBattle(t *testing.T) {
	h := newHarness(t, botConfig())
	err := h.feed(t, KindBattleEnded, map[string]any{"outcome": "victory"})
	assert.True(t, errors.Is(err, ErrNoBattle))
}

func TestDarkness_EndsBattle(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindBattleOpened, map[string]any{"type": "normal", "darkness_turns": 1})
	h.enter(t, "Pal", "player")
	h.enter(t, "Gob", "monster")
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Pal", "Gob"}})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Pal"})
	assert.Equal(t, phase.Started, h.Snapshot().Phase.State)

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Pal"})
	assert.Equal(t, phase.Idle, h.Snapshot().Phase.State)
	assert.Equal(t, phase.OutcomeDarkness, h.acct.last(t).Outcome)
}

func TestDarkness_PausedByHolyAura(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindBattleOpened, map[string]any{"type": "normal", "darkness_turns": 1})
	h.enter(t, "Pal", "player")
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Pal"}})
	h.must(t, KindBattlefieldEffect, map[string]any{"effect": "holy_aura", "turns": 1})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Pal"})
	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Pal"})
	snap := h.Snapshot().Phase
	assert.Equal(t, phase.Started, snap.State)
	assert.Equal(t, 1, snap.Darkness)
	assert.Zero(t, snap.HolyAura)
}

func TestBattlefieldEffect_Condition(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)
	h.must(t, KindBattlefieldEffect, map[string]any{"effect": "no-techs"})
	assert.Contains(t, h.Snapshot().Phase.Conditions, phase.NoTechs)

	h.must(t, KindBattlefieldEffect, map[string]any{"effect": "no-techs", "active": false})
	assert.NotContains(t, h.Snapshot().Phase.Conditions, phase.NoTechs)

	err := h.feed(t, KindBattlefieldEffect, map[string]any{"effect": "rain"})
	assert.True(t, errors.Is(err, ErrBadPayload))
}

func TestBattleOpened_AbandonsRunningBattle(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)
	first := h.Snapshot().Phase.BattleID

	h.must(t, KindBattleOpened, map[string]any{"type": "pvp"})

	r := h.acct.last(t)
	assert.Equal(t, phase.OutcomeAbandoned, r.Outcome)
	assert.Equal(t, first, r.BattleID)

	snap := h.Snapshot()
	assert.Equal(t, phase.Open, snap.Phase.State)
	assert.Equal(t, phase.BattlePvP, snap.Phase.BattleType)
	assert.NotEqual(t, first, snap.Phase.BattleID)
	assert.Empty(t, snap.Combatants)
}

func TestAutoEnter_Threshold(t *testing.T) {
	bot := botConfig()
	bot.MinOtherPlayers = 2
	h := newHarness(t, bot)
	h.must(t, KindBattleOpened, map[string]any{"type": "normal"})
	id := h.Snapshot().Phase.BattleID

	h.enter(t, "Alice", "player")
	h.enter(t, "Gob", "monster")
	h.autoEnter(id)
	assert.Empty(t, h.out.lines(NoticeCommand), "one other player is not enough")

	h.must(t, KindEntityEntered, map[string]any{"display_name": "Carol", "category": "player"})
	h.autoEnter("some-other-battle")
	assert.Empty(t, h.out.lines(NoticeCommand))

	h.autoEnter(id)
	assert.Equal(t, []string{"!enter"}, h.out.lines(NoticeCommand))
}

func TestAutoEnter_Scheduled(t *testing.T) {
	bot := botConfig()
	bot.AutoEnter = true
	bot.EntryMargin = time.Hour
	h := newHarness(t, bot)

	h.must(t, KindBattleOpened, map[string]any{"type": "normal", "duration_seconds": 1})
	require.Eventually(t, func() bool {
		return len(h.out.lines(NoticeCommand)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "!enter", h.out.lines(NoticeCommand)[0])
}

func TestPreview(t *testing.T) {
	h := newHarness(t, botConfig())
	_, err := h.Preview("Hero")
	assert.True(t, errors.Is(err, ErrNoBattle))

	_, err = h.Preview("Gob")
	assert.True(t, errors.Is(err, ErrNotControlled))

	h.startBattle(t)
	d, err := h.Preview("Hero")
	require.NoError(t, err)
	assert.Equal(t, "Gob", d.Choice.Target)
	assert.Empty(t, h.out.lines(NoticeCommand))
}

func TestFlush_SavesDirtyProfiles(t *testing.T) {
	store := &fakeStore{chars: []*registry.Character{
		registry.NewCharacter("Vet", registry.Seed{DisplayName: "Veteran", Category: registry.CategoryPlayer}),
	}}
	a := New(botConfig(), config.BattleConfig{}, config.TransportConfig{}, Deps{Outbox: &fakeOutbox{}, Store: store})
	require.NoError(t, a.Start(context.Background(), 0))

	vet, ok := a.Character("Vet")
	require.True(t, ok)
	assert.Equal(t, "Veteran", vet.DisplayName)

	f, err := NewFact(KindAttributeObserved, map[string]any{"identifier": "Vet", "field": "level", "value": "30"})
	require.NoError(t, err)
	require.NoError(t, a.Handle(context.Background(), f))
	require.NoError(t, a.Stop(context.Background()))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 1)
	require.Len(t, store.saved[0].Characters, 1)
	assert.Equal(t, 30, store.saved[0].Characters[0].Level)
}

func TestFanout(t *testing.T) {
	a, b := &fakeOutbox{}, &fakeOutbox{}
	require.NoError(t, Fanout{a, b}.Deliver(context.Background(), Notice{Kind: NoticeCommand, Line: "!enter"}))
	assert.Equal(t, []string{"!enter"}, a.lines(NoticeCommand))
	assert.Equal(t, []string{"!enter"}, b.lines(NoticeCommand))
}

func TestHandle_EmptyIdentifierRejected(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)

	cases := []struct {
		kind    Kind
		payload map[string]any
	}{
		{KindAttributeObserved, map[string]any{"identifier": " ", "field": "level", "value": "3"}},
		{KindStatusApplied, map[string]any{"identifier": "", "tag": "poisoned"}},
		{KindStatusRemoved, map[string]any{"identifier": "\t", "tag": "poisoned"}},
		{KindPresenceChanged, map[string]any{"identifier": "", "presence": "dead"}},
		{KindTurnAdvanced, map[string]any{"identifier": "  "}},
	}
	for _, tc := range cases {
		err := h.feed(t, tc.kind, tc.payload)
		assert.True(t, errors.Is(err, ErrBadPayload), "%s: %v", tc.kind, err)
	}
	_, ok := h.Character("")
	assert.False(t, ok)
	assert.Len(t, h.Snapshot().Combatants, 2)
}

func TestSecondBattle_KnownNameIsNotRebound(t *testing.T) {
	h := newHarness(t, botConfig())
	h.startBattle(t)
	h.enter(t, "Alice", "player")
	h.must(t, KindBattleEnded, map[string]any{"outcome": "victory"})

	h.must(t, KindBattleOpened, map[string]any{"type": "normal"})
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Alice", "category": "player"})
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Grim Reaper", "category": "monster"})

	snap := h.Snapshot()
	assert.Equal(t, 1, snap.PendingNames, "Alice entered directly")
	require.Len(t, snap.Combatants, 1)
	assert.Equal(t, "Alice", snap.Combatants[0].ID)

	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Alice", "Reaper"}})

	reaper, ok := h.Character("Reaper")
	require.True(t, ok)
	assert.Equal(t, "Grim Reaper", reaper.DisplayName)
	assert.Equal(t, registry.CategoryMonster, reaper.Category)
	assert.False(t, reaper.Placeholder)

	alice, ok := h.Character("Alice")
	require.True(t, ok)
	assert.Equal(t, "Alice", alice.DisplayName)
	assert.Equal(t, registry.CategoryPlayer, alice.Category)
}

func TestSecondBattle_UnboundPlaceholderOfferedAgain(t *testing.T) {
	h := newHarness(t, botConfig())
	h.must(t, KindBattleOpened, map[string]any{"type": "normal"})
	h.enter(t, "Hero", "player")
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Hero", "Shade"}})
	h.must(t, KindBattleEnded, map[string]any{"outcome": "draw"})

	shade, ok := h.Character("Shade")
	require.True(t, ok)
	require.True(t, shade.Placeholder)

	h.must(t, KindBattleOpened, map[string]any{"type": "normal"})
	h.must(t, KindEntityEntered, map[string]any{"display_name": "Shade Walker", "category": "monster"})
	h.must(t, KindBattleStarted, map[string]any{"order": []string{"Shade"}})

	shade, ok = h.Character("Shade")
	require.True(t, ok)
	assert.False(t, shade.Placeholder)
	assert.Equal(t, "Shade Walker", shade.DisplayName)
	assert.Equal(t, registry.CategoryMonster, shade.Category)
}

func TestDecision_StaleWhileThrottled(t *testing.T) {
	c, _ := testutil.SetupTestCache(t)
	h := newHarnessWith(t, botConfig(), config.TransportConfig{CommandRPS: 1, CommandBurst: 1}, c)
	h.startBattle(t)
	require.True(t, h.limiter.Allow(), "drain the burst")

	reached := make(chan struct{})
	var once sync.Once
	h.hooks.Register(hook.BeforeCommandEmit, 0, "reached", func(_ context.Context, _ string, data any) (any, error) {
		once.Do(func() { close(reached) })
		return data, nil
	})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatal("decision never reached emission")
	}
	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Gob"})
	h.wg.Wait()

	assert.Empty(t, h.out.lines(NoticeCommand))
	assert.Zero(t, h.Snapshot().Commands)
	stats, err := h.cache.HGetAll(context.Background(), KeyStats)
	require.NoError(t, err)
	assert.Equal(t, "1", stats["stale"])
}

// lockCheckCache reports whether the arena lock was free on every SetNX.
type lockCheckCache struct {
	cache.Cache
	arena  *Arena
	calls  atomic.Int32
	locked atomic.Bool
}

func (c *lockCheckCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.calls.Add(1)
	if c.arena.mu.TryLock() {
		c.arena.mu.Unlock()
	} else {
		c.locked.Store(true)
	}
	return c.Cache.SetNX(ctx, key, value, ttl)
}

func TestAcquire_SharedCacheOutsideLock(t *testing.T) {
	inner, _ := testutil.SetupTestCache(t)
	lc := &lockCheckCache{Cache: inner}
	bot := botConfig()
	bot.AcquireCatalog = true
	h := newHarnessWith(t, bot, config.TransportConfig{}, lc)
	lc.arena = h.Arena
	h.startBattle(t)
	h.must(t, KindAttributeObserved, map[string]any{"identifier": "Hero", "field": "technique", "value": "Fire:2"})
	h.must(t, KindAttributeObserved, map[string]any{"identifier": "Hero", "field": "weapon", "value": "Sword:1"})

	h.must(t, KindTurnAdvanced, map[string]any{"identifier": "Hero"})
	h.wg.Wait()

	assert.EqualValues(t, 2, lc.calls.Load())
	assert.False(t, lc.locked.Load(), "SetNX ran under the arena lock")
	assert.Contains(t, h.out.lines(NoticeCommand), "!view-info technique Fire")
	assert.Contains(t, h.out.lines(NoticeCommand), "!view-info weapon Sword")
}
