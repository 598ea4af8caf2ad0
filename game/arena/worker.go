package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/arenabot/game/decision"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/game/registry"
	"github.com/kasuganosora/arenabot/plugin/hook"
	"go.uber.org/zap"
)

// startWorker runs one decision for actor in the background. Only one
// worker may run at a time.
func (a *Arena) startWorker(actor string, form decision.Form, seq uint64) {
	if !a.working.CompareAndSwap(false, true) {
		a.logger.Error("decision worker already running, turn skipped",
			zap.String("actor", actor),
			zap.Uint64("turn_seq", seq))
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.working.Store(false)
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("decision worker panicked", zap.Any("recover", r), zap.String("actor", actor))
			}
		}()
		if _, err := a.decide(a.runCtx, actor, form, seq); err != nil {
			a.logger.Info("no command emitted", zap.String("actor", actor), zap.Error(err))
		}
	}()
}

// stale reports whether the turn moved on since seq. Callers hold the lock.
func (a *Arena) stale(seq uint64) bool {
	return a.phase.TurnSeq() != seq || !a.phase.Is(phase.Started)
}

// decide is the body of one decision: catalog acquisition, think time,
// scoring with bounded retries, the staleness check and emission.
func (a *Arena) decide(ctx context.Context, actor string, form decision.Form, seq uint64) (decision.Decision, error) {
	a.acquire(ctx, actor, seq)

	think := a.engine.ThinkTime(a.bot.ThinkMin, a.bot.ThinkMax)
	if a.waitUntil(ctx, think, func() bool { return a.stale(seq) }) {
		a.count(ctx, "stale")
		return decision.Decision{}, ErrStaleDecision
	}
	if ctx.Err() != nil {
		return decision.Decision{}, ctx.Err()
	}

	var (
		d        decision.Decision
		err      error
		battleID string
	)
	for attempt := 0; ; attempt++ {
		a.mu.RLock()
		if a.stale(seq) {
			a.mu.RUnlock()
			a.count(ctx, "stale")
			return decision.Decision{}, ErrStaleDecision
		}
		battleID = a.phase.BattleID()
		d, err = a.evaluate(actor, form)
		a.mu.RUnlock()

		if err == nil {
			break
		}
		a.diagnose(ctx, battleID, err)
		if !errors.Is(err, decision.ErrNoTargets) || attempt >= a.bot.MaxRetries {
			return decision.Decision{}, err
		}
		a.count(ctx, "no_targets")
		if a.waitUntil(ctx, a.bot.RetryDelay, func() bool { return a.stale(seq) }) || ctx.Err() != nil {
			a.count(ctx, "stale")
			return decision.Decision{}, ErrStaleDecision
		}
	}

	a.logger.Info("decision made",
		zap.String("battle_id", battleID),
		zap.String("actor", actor),
		zap.String("kind", string(d.Choice.Kind)),
		zap.String("ability", d.Choice.Ability),
		zap.String("target", d.Choice.Target),
		zap.Float64("score", d.Choice.Score),
		zap.Int("considered", d.Considered))
	a.trigger(ctx, hook.OnDecision, d)

	sent := 0
	for _, cmd := range d.Commands {
		if err = a.emitTurn(ctx, battleID, cmd, seq); err != nil {
			break
		}
		sent++
	}
	if sent > 0 {
		a.mu.Lock()
		a.record(actor, d, sent)
		a.mu.Unlock()
	}
	return d, err
}

// evaluate runs the engine against the current model. Callers hold at
// least the read lock.
func (a *Arena) evaluate(actor string, form decision.Form) (decision.Decision, error) {
	c, ok := a.reg.Combatant(actor)
	if !ok {
		return decision.Decision{}, fmt.Errorf("%w: %s", ErrNotInBattle, actor)
	}
	disabled := map[phase.Condition]bool{}
	for _, cond := range []phase.Condition{phase.NoTechs, phase.NoSkills, phase.NoItems, phase.NoWeaponSwitch} {
		if a.phase.Condition(cond) {
			disabled[cond] = true
		}
	}
	return a.engine.Decide(decision.Situation{
		Actor:           c,
		Form:            form,
		Combatants:      a.reg.Combatants(),
		Catalog:         a.reg,
		PvP:             a.phase.PvP(),
		Turn:            a.phase.Turn(),
		Disabled:        disabled,
		AnalysisPending: a.analysis,
	})
}

// record writes the chosen action back into the model once sent of its
// commands went out. Callers hold the write lock.
func (a *Arena) record(actor string, d decision.Decision, sent int) {
	c, ok := a.reg.Combatant(actor)
	if !ok {
		return
	}
	choice := d.Choice
	// Compared against weapon and technique names by the repeat penalty.
	c.LastAction = choice.Ability
	if choice.Kind == decision.KindTaunt {
		c.LastAction = string(decision.KindTaunt)
	}
	if choice.Kind == decision.KindSkill {
		c.SkillUsedTurn[strings.ToLower(choice.Ability)] = a.phase.Turn()
		if strings.EqualFold(choice.Ability, "analysis") {
			a.analysis = true
		}
	}
	if choice.Weapon != "" {
		c.Character.EquippedWeapon = choice.Weapon
	}
	a.commands += sent
}

// acquire asks for catalog entries the actor may use but does not fully
// know, then waits for them until they are well-known, the turn moves on
// or the bounded wait runs out. Scoring proceeds with whatever arrived.
func (a *Arena) acquire(ctx context.Context, actor string, seq uint64) {
	if !a.bot.AcquireCatalog {
		return
	}
	a.mu.Lock()
	battleID := a.phase.BattleID()
	var asks []catalogRef
	var pending []func() bool
	if c, ok := a.reg.Combatant(actor); ok {
		for name := range c.Character.Weapons {
			if w, ok := a.reg.Weapon(name); ok && w.WellKnown {
				continue
			}
			if ref, ok := a.claim(registry.KindWeapon, name); ok {
				asks = append(asks, ref)
			}
			pending = append(pending, func() bool { w, ok := a.reg.Weapon(name); return ok && w.WellKnown })
		}
		for name := range c.Character.Techniques {
			if t, ok := a.reg.Technique(name); ok && t.WellKnown {
				continue
			}
			if ref, ok := a.claim(registry.KindTechnique, name); ok {
				asks = append(asks, ref)
			}
			pending = append(pending, func() bool { t, ok := a.reg.Technique(name); return ok && t.WellKnown })
		}
	}
	a.mu.Unlock()

	var queries []decision.Command
	for _, ref := range asks {
		if q, ok := a.query(ctx, ref, actor); ok {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return
	}
	for _, q := range queries {
		if err := a.emit(ctx, battleID, q); err != nil {
			a.logger.Warn("catalog query failed", zap.String("name", q.Ability), zap.Error(err))
		}
	}
	timeout := a.bot.AcquirePoll * time.Duration(max(a.bot.AcquireAttempts, 1))
	complete := a.waitUntil(ctx, timeout, func() bool {
		if a.stale(seq) {
			return true
		}
		for _, known := range pending {
			if !known() {
				return false
			}
		}
		return true
	})
	if !complete {
		a.logger.Info("catalog acquisition timed out, scoring with partial data",
			zap.String("actor", actor),
			zap.Int("queries", len(queries)))
	}
}

// catalogRef names one catalog entry to ask about.
type catalogRef struct {
	kind registry.CatalogKind
	name string
}

func (r catalogRef) key() string {
	return string(r.kind) + ":" + strings.ToLower(r.name)
}

// claim marks name as asked for by this process. Callers hold the write
// lock.
func (a *Arena) claim(kind registry.CatalogKind, name string) (catalogRef, bool) {
	ref := catalogRef{kind: kind, name: name}
	if a.acquired[ref.key()] {
		return catalogRef{}, false
	}
	a.acquired[ref.key()] = true
	return ref, true
}

// query returns a view-info command for ref unless another process sharing
// the cache already asked for it. It must run without the arena lock.
func (a *Arena) query(ctx context.Context, ref catalogRef, actor string) (decision.Command, bool) {
	if a.cache != nil {
		first, err := a.cache.SetNX(ctx, keyAcquirePfx+ref.key(), actor, acquireTTL)
		if err == nil && !first {
			return decision.Command{}, false
		}
	}
	return decision.Command{
		Form:    decision.FormSelf,
		Actor:   a.bot.Name,
		Verb:    decision.VerbViewInfo,
		Subject: string(ref.kind),
		Ability: ref.name,
	}, true
}

// emit passes cmd through the before-emit hooks, the flood limiter and the
// outbox.
func (a *Arena) emit(ctx context.Context, battleID string, cmd decision.Command) error {
	return a.send(ctx, battleID, cmd, nil)
}

// emitTurn is emit for a decision taken on turn seq. It drops the command
// if the turn moved on while it waited for the limiter.
func (a *Arena) emitTurn(ctx context.Context, battleID string, cmd decision.Command, seq uint64) error {
	return a.send(ctx, battleID, cmd, func() bool {
		a.mu.RLock()
		defer a.mu.RUnlock()
		return a.stale(seq)
	})
}

func (a *Arena) send(ctx context.Context, battleID string, cmd decision.Command, stale func() bool) error {
	em := &Emission{BattleID: battleID, Command: cmd, Line: cmd.String()}
	if _, err := a.hooks.Trigger(ctx, hook.BeforeCommandEmit, em); err != nil {
		a.logger.Info("command suppressed by hook", zap.String("line", em.Line), zap.Error(err))
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if stale != nil && stale() {
		a.count(ctx, "stale")
		return ErrStaleDecision
	}
	if a.out == nil {
		return errors.New("arena: no outbox")
	}
	if err := a.out.Deliver(ctx, Notice{Kind: NoticeCommand, Line: em.Line, BattleID: battleID, At: time.Now()}); err != nil {
		return fmt.Errorf("deliver %q: %w", em.Line, err)
	}
	a.logger.Debug("command emitted", zap.String("battle_id", battleID), zap.String("line", em.Line))
	a.count(ctx, "commands")
	a.trigger(ctx, hook.AfterCommandEmit, em)
	return nil
}

// diagnose reports a failed decision to observers.
func (a *Arena) diagnose(ctx context.Context, battleID string, err error) {
	if a.out == nil {
		return
	}
	n := Notice{Kind: NoticeDiagnostic, Line: err.Error(), BattleID: battleID, At: time.Now()}
	if derr := a.out.Deliver(ctx, n); derr != nil {
		a.logger.Debug("diagnostic not delivered", zap.Error(derr))
	}
}
