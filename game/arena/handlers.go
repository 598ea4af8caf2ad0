package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/arenabot/game/decision"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/game/registry"
	"github.com/kasuganosora/arenabot/plugin/hook"
	"go.uber.org/zap"
)

// Handlers run under the write lock. Anything that blocks or calls out of
// the package is queued on fx.

// touch makes sure id is known and, while a battle runs, fighting. An
// unresolved placeholder is offered to the resolver in every battle it
// shows up in.
func (a *Arena) touch(id string) (*registry.Character, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrBadPayload)
	}
	ch, ok := a.reg.Character(id)
	if !ok {
		ch = a.reg.RegisterCharacter(id, registry.Seed{Placeholder: true})
	}
	if a.phase.Is(phase.Open) || a.phase.Is(phase.Started) {
		if ch.Placeholder {
			a.res.AddID(ch.ID, ch.Category)
		}
		a.reg.EnterBattle(ch)
	}
	return ch, nil
}

// recognize enters a Character already known under the narrated name. The
// first match not yet fighting wins.
func (a *Arena) recognize(name string, cat registry.Category) (*registry.Character, bool) {
	if !a.phase.Is(phase.Open) && !a.phase.Is(phase.Started) {
		return nil, false
	}
	for _, ch := range a.reg.Named(name, cat) {
		if ch.BattleScoped() || a.reg.InBattle(ch.ID) {
			continue
		}
		a.reg.EnterBattle(ch)
		return ch, true
	}
	return nil, false
}

func (a *Arena) onEntityEntered(_ context.Context, fx *effects, raw json.RawMessage) error {
	var p entityEntered
	if err := decode(raw, &p); err != nil {
		return err
	}
	cat, err := registry.ParseCategory(p.Category)
	if err != nil {
		a.logger.Debug("entity category not understood", zap.String("category", p.Category))
		cat = registry.CategoryUnknown
	}
	id := strings.TrimSpace(p.Identifier)
	if id == "" {
		if strings.TrimSpace(p.DisplayName) == "" {
			return fmt.Errorf("%w: entity without name or identifier", ErrBadPayload)
		}
		if ch, ok := a.recognize(p.DisplayName, cat); ok {
			a.logger.Debug("narrated entity recognized",
				zap.String("id", ch.ID),
				zap.String("display_name", p.DisplayName))
			return nil
		}
		// Narrated arrival; the identifier follows with the turn order.
		a.res.AddName(p.DisplayName, cat)
		return nil
	}
	ch := a.reg.Rebind(id, registry.Seed{
		DisplayName: p.DisplayName,
		Category:    cat,
		Clone:       p.Clone,
		Summon:      p.Summon,
	})
	if a.phase.Is(phase.Open) || a.phase.Is(phase.Started) {
		a.reg.EnterBattle(ch)
	}
	bound := *ch
	fx.then(func(ctx context.Context) {
		a.trigger(ctx, hook.OnEntityBound, &bound)
	})
	return nil
}

func (a *Arena) onAttributeObserved(_ context.Context, _ *effects, raw json.RawMessage) error {
	var p attributeObserved
	if err := decode(raw, &p); err != nil {
		return err
	}
	ch, err := a.touch(p.Identifier)
	if err != nil {
		return err
	}
	if err := a.reg.ObserveAttribute(ch.ID, p.Field, p.Value); err != nil {
		return err
	}
	switch strings.ToLower(p.Field) {
	case "resist", "weak", "immune", "absorb", "analyzed":
		a.analysis = false
	}
	return nil
}

func (a *Arena) onStatusApplied(_ context.Context, _ *effects, raw json.RawMessage) error {
	var p statusChanged
	if err := decode(raw, &p); err != nil {
		return err
	}
	ch, err := a.touch(p.Identifier)
	if err != nil {
		return err
	}
	return a.reg.ApplyStatus(ch.ID, p.Tag)
}

func (a *Arena) onStatusRemoved(_ context.Context, _ *effects, raw json.RawMessage) error {
	var p statusChanged
	if err := decode(raw, &p); err != nil {
		return err
	}
	ch, err := a.touch(p.Identifier)
	if err != nil {
		return err
	}
	return a.reg.ClearStatus(ch.ID, p.Tag)
}

func (a *Arena) onPresenceChanged(_ context.Context, _ *effects, raw json.RawMessage) error {
	var p presenceChanged
	if err := decode(raw, &p); err != nil {
		return err
	}
	pr, err := registry.ParsePresence(p.Presence)
	if err != nil {
		return fmt.Errorf("%w: presence %q", err, p.Presence)
	}
	ch, err := a.touch(p.Identifier)
	if err != nil {
		return err
	}
	return a.reg.SetPresence(ch.ID, pr)
}

func (a *Arena) onCatalogObserved(_ context.Context, _ *effects, raw json.RawMessage) error {
	var p catalogObserved
	if err := decode(raw, &p); err != nil {
		return err
	}
	kind := registry.CatalogKind(strings.ToLower(strings.TrimSpace(p.Kind)))
	return a.reg.ApplyCatalogFact(kind, p.Name, p.Field, p.Value)
}

func (a *Arena) onTurnAdvanced(ctx context.Context, fx *effects, raw json.RawMessage) error {
	var p turnAdvanced
	if err := decode(raw, &p); err != nil {
		return err
	}
	if !a.phase.Is(phase.Started) {
		return fmt.Errorf("%w: turn outside a started battle", phase.ErrTransition)
	}
	ch, err := a.touch(p.Identifier)
	if err != nil {
		return err
	}
	c, _ := a.reg.Combatant(ch.ID)

	c.Turns++
	tick := a.phase.ObserveTurn(c.Turns)
	if band := registry.ParseHealthBand(p.Health); band != registry.BandUnknown {
		c.Band = band
	}
	if p.Statuses != nil {
		c.ReplaceStatuses(p.Statuses)
	}

	if tick.DarknessExpired {
		a.logger.Info("darkness fell", zap.String("battle_id", a.phase.BattleID()), zap.Int("turn", tick.Turn))
		return a.endBattle(ctx, fx, phase.OutcomeDarkness)
	}

	form, controlled := a.formOf(c.ID)
	switch {
	case !controlled:
	case c.Incapacitated():
		a.logger.Info("controlled entity cannot act",
			zap.String("actor", c.ID),
			zap.Strings("statuses", c.StatusList()))
	case !c.Alive():
	default:
		actor, seq := c.ID, tick.Seq
		fx.then(func(context.Context) { a.startWorker(actor, form, seq) })
	}
	return nil
}

func (a *Arena) onBattleOpened(ctx context.Context, fx *effects, raw json.RawMessage) error {
	var p battleOpened
	if err := decode(raw, &p); err != nil {
		return err
	}
	if a.phase.Is(phase.Open) || a.phase.Is(phase.Started) {
		a.logger.Warn("battle opened while another is running",
			zap.String("battle_id", a.phase.BattleID()))
		if err := a.endBattle(ctx, fx, phase.OutcomeAbandoned); err != nil {
			return err
		}
	} else if a.phase.Is(phase.Ended) {
		if err := a.phase.Reset(ctx); err != nil {
			return err
		}
	}

	bt := phase.ParseBattleType(p.Type)
	darkness := a.battle.DarknessTurns[string(bt)]
	if p.DarknessTurns != nil {
		darkness = *p.DarknessTurns
	}
	window := time.Duration(p.DurationSeconds) * time.Second
	if window <= 0 {
		window = a.battle.EntryWindow
	}

	a.reg.EndBattle()
	a.res.Reset()
	if err := a.phase.Open(ctx, bt, window, darkness); err != nil {
		return err
	}
	a.openedAt = time.Now()
	a.commands = 0
	a.analysis = false

	battleID := a.phase.BattleID()
	a.logger.Info("battle opened",
		zap.String("battle_id", battleID),
		zap.String("type", string(bt)),
		zap.Duration("window", window),
		zap.Int("darkness", darkness))

	if a.bot.AutoEnter {
		delay := max(window-a.bot.EntryMargin, 0)
		a.sched.AddDelay(taskAutoEnter, delay, func() { a.autoEnter(battleID) })
	}
	snap := a.phase.Snapshot()
	fx.then(func(ctx context.Context) { a.trigger(ctx, hook.OnBattleOpen, snap) })
	return nil
}

// autoEnter joins the battle when enough other players already have.
func (a *Arena) autoEnter(battleID string) {
	a.mu.RLock()
	ok := a.phase.Is(phase.Open) && a.phase.BattleID() == battleID && !a.reg.InBattle(a.bot.Name)
	others := 0
	if ok {
		for _, c := range a.reg.Combatants() {
			if !strings.EqualFold(c.ID, a.bot.Name) && !c.Character.Category.MonsterSide() {
				others++
			}
		}
		names, _ := a.res.Pending()
		others += names
	}
	a.mu.RUnlock()

	if !ok {
		return
	}
	if others < a.bot.MinOtherPlayers {
		a.logger.Info("auto entry skipped",
			zap.String("battle_id", battleID),
			zap.Int("others", others),
			zap.Int("required", a.bot.MinOtherPlayers))
		return
	}
	cmd := decision.Command{Form: decision.FormSelf, Actor: a.bot.Name, Verb: decision.VerbEnter}
	if err := a.emit(a.runCtx, battleID, cmd); err != nil {
		a.logger.Warn("auto entry failed", zap.Error(err))
	}
}

func (a *Arena) onBattleStarted(ctx context.Context, fx *effects, raw json.RawMessage) error {
	var p battleStarted
	if len(raw) > 0 {
		if err := decode(raw, &p); err != nil {
			return err
		}
	}
	if a.phase.Is(phase.Idle) || a.phase.Is(phase.Ended) {
		// The announcement was missed; open implicitly.
		if a.phase.Is(phase.Ended) {
			if err := a.phase.Reset(ctx); err != nil {
				return err
			}
		}
		if err := a.phase.Open(ctx, phase.BattleNormal, 0, a.battle.DarknessTurns[string(phase.BattleNormal)]); err != nil {
			return err
		}
		a.openedAt = time.Now()
	}
	if err := a.phase.Start(ctx); err != nil {
		return err
	}
	a.sched.Remove(taskAutoEnter)

	for _, id := range p.Order {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, err := a.touch(id); err != nil {
			return err
		}
	}
	for _, b := range a.res.Resolve() {
		ch := a.reg.Rebind(b.ID, registry.Seed{DisplayName: b.Name, Category: b.Category})
		a.reg.EnterBattle(ch)
		bound := *ch
		fx.then(func(ctx context.Context) { a.trigger(ctx, hook.OnEntityBound, &bound) })
	}
	a.res.DropNames()

	a.logger.Info("battle started",
		zap.String("battle_id", a.phase.BattleID()),
		zap.Int("combatants", len(a.reg.Combatants())))
	snap := a.phase.Snapshot()
	fx.then(func(ctx context.Context) { a.trigger(ctx, hook.OnBattleStart, snap) })
	return nil
}

func (a *Arena) onBattlefieldEffect(_ context.Context, _ *effects, raw json.RawMessage) error {
	var p battlefieldEffect
	if err := decode(raw, &p); err != nil {
		return err
	}
	effect := strings.ToLower(strings.TrimSpace(p.Effect))
	switch effect {
	case "holy_aura", "holy-aura":
		a.phase.SetHolyAura(p.Turns)
	case "darkness":
		a.phase.SetDarkness(p.Turns)
	default:
		c, ok := phase.ParseCondition(effect)
		if !ok {
			return fmt.Errorf("%w: battlefield effect %q", ErrBadPayload, p.Effect)
		}
		a.phase.SetCondition(c, p.Active == nil || *p.Active)
	}
	return nil
}

func (a *Arena) onBattleEnded(ctx context.Context, fx *effects, raw json.RawMessage) error {
	var p battleEnded
	if len(raw) > 0 {
		if err := decode(raw, &p); err != nil {
			return err
		}
	}
	if !a.phase.Is(phase.Open) && !a.phase.Is(phase.Started) {
		return ErrNoBattle
	}
	outcome := phase.Outcome(strings.ToLower(strings.TrimSpace(p.Outcome)))
	if outcome == "" {
		outcome = phase.OutcomeDraw
	}
	return a.endBattle(ctx, fx, outcome)
}

// endBattle accounts for the battle, purges battle-scoped state and returns
// the machine to idle.
func (a *Arena) endBattle(ctx context.Context, fx *effects, outcome phase.Outcome) error {
	report := a.report(outcome)
	if err := a.phase.End(ctx, outcome); err != nil {
		return err
	}

	if bot, ok := a.reg.Character(a.bot.Name); ok && a.reg.InBattle(a.bot.Name) {
		bot.Battles++
		switch outcome {
		case phase.OutcomeVictory:
			bot.Wins++
		case phase.OutcomeDefeat, phase.OutcomeDarkness:
			bot.Losses++
		}
		a.reg.MarkDirty(registry.Dirty{Characters: []*registry.Character{bot}})
	}

	fx.then(func(ctx context.Context) {
		if a.acct != nil {
			a.acct.RecordBattle(ctx, report)
		}
		a.trigger(ctx, hook.OnBattleEnd, report)
	})

	purged := a.reg.EndBattle()
	a.res.Reset()
	a.sched.Remove(taskAutoEnter)
	a.analysis = false
	if err := a.phase.Reset(ctx); err != nil {
		return err
	}
	a.logger.Info("battle ended",
		zap.String("battle_id", report.BattleID),
		zap.String("outcome", string(outcome)),
		zap.Int("turns", report.Turns),
		zap.Strings("purged", purged))

	fx.then(func(ctx context.Context) {
		if err := a.Flush(ctx); err != nil {
			a.logger.Error("catalog flush failed", zap.Error(err))
		}
	})
	return nil
}

func (a *Arena) trigger(ctx context.Context, event string, data any) {
	if _, err := a.hooks.Trigger(ctx, event, data); err != nil {
		a.logger.Debug("hook chain stopped", zap.String("event", event), zap.Error(err))
	}
}
