// Package arena ties the registry, identity resolver, phase machine and
// decision engine together. Every fact is applied under one lock, and on
// the controlled entity's turn a single worker deliberates and emits a
// command.
package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	"github.com/kasuganosora/arenabot/game/decision"
	"github.com/kasuganosora/arenabot/game/identity"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/game/registry"
	"github.com/kasuganosora/arenabot/plugin/hook"
	"github.com/kasuganosora/arenabot/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrUnknownKind   = errors.New("arena: unknown fact kind")
	ErrBadPayload    = errors.New("arena: bad payload")
	ErrStaleDecision = errors.New("arena: stale decision")
	ErrNotControlled = errors.New("arena: entity is not controlled")
	ErrNotInBattle   = errors.New("arena: entity is not in battle")
	ErrWorkerBusy    = errors.New("arena: decision worker busy")
	ErrNoBattle      = errors.New("arena: no battle in progress")
)

// Cache keys and scheduler task names.
const (
	KeyEvents      = "arena:events" // recent facts, newest first
	KeyStats       = "arena:stats"  // hash of activity counters
	keyAcquirePfx  = "arena:acquire:"
	taskAutoEnter  = "auto-enter"
	taskFlush      = "catalog-flush"
	eventLogLength = 200
	acquireTTL     = 24 * time.Hour
)

// Persistence loads and saves learned profiles and catalog definitions.
type Persistence interface {
	Load(ctx context.Context) ([]*registry.Character, []*registry.Weapon, []*registry.Technique, error)
	Save(ctx context.Context, d registry.Dirty) error
}

// Accountant receives concluded battles.
type Accountant interface {
	RecordBattle(ctx context.Context, r BattleReport)
}

// Deps are the collaborators of an Arena. Only Outbox is required.
type Deps struct {
	Outbox     Outbox
	Store      Persistence
	Accountant Accountant
	Cache      cache.Cache
	Hooks      *hook.Center
	Scheduler  *scheduler.Scheduler
	Logger     *zap.Logger
	Rand       *rand.Rand
}

type handler func(ctx context.Context, fx *effects, raw json.RawMessage) error

// effects collects work that must run after the lock is released.
type effects struct {
	after []func(context.Context)
}

func (fx *effects) then(f func(context.Context)) { fx.after = append(fx.after, f) }

// Arena is the battle-facing core.
type Arena struct {
	bot    config.BotConfig
	battle config.BattleConfig

	// mu guards everything below it up to working.
	mu       sync.RWMutex
	reg      *registry.Registry
	res      *identity.Resolver
	phase    *phase.Machine
	changed  chan struct{}
	acquired map[string]bool
	analysis bool // an analysis result is outstanding
	commands int
	openedAt time.Time

	working atomic.Bool
	engine  *decision.Engine

	handlers map[Kind]handler
	out      Outbox
	store    Persistence
	acct     Accountant
	cache    cache.Cache
	hooks    *hook.Center
	sched    *scheduler.Scheduler
	limiter  *rate.Limiter
	logger   *zap.Logger

	runCtx context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Arena. Call Start before feeding facts.
func New(bot config.BotConfig, battle config.BattleConfig, transport config.TransportConfig, deps Deps) *Arena {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hooks := deps.Hooks
	if hooks == nil {
		hooks = hook.NewCenter(logger)
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = scheduler.New(logger)
	}
	limit := rate.Inf
	if transport.CommandRPS > 0 {
		limit = rate.Limit(transport.CommandRPS)
	}
	burst := max(transport.CommandBurst, 1)

	runCtx, stop := context.WithCancel(context.Background())
	a := &Arena{
		bot:      bot,
		battle:   battle,
		reg:      registry.New(logger.Named("registry")),
		res:      identity.NewResolver(logger.Named("identity")),
		phase:    phase.New(logger.Named("phase")),
		changed:  make(chan struct{}),
		acquired: map[string]bool{},
		engine: decision.New(decision.Options{
			Taunt:      bot.Skills.Taunt,
			ShadowCopy: bot.Skills.ShadowCopy,
			Analysis:   bot.Skills.Analysis,
		}, deps.Rand),
		out:     deps.Outbox,
		store:   deps.Store,
		acct:    deps.Accountant,
		cache:   deps.Cache,
		hooks:   hooks,
		sched:   sched,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		runCtx:  runCtx,
		stop:    stop,
	}
	a.handlers = map[Kind]handler{
		KindEntityEntered:     a.onEntityEntered,
		KindAttributeObserved: a.onAttributeObserved,
		KindStatusApplied:     a.onStatusApplied,
		KindStatusRemoved:     a.onStatusRemoved,
		KindTurnAdvanced:      a.onTurnAdvanced,
		KindPresenceChanged:   a.onPresenceChanged,
		KindCatalogObserved:   a.onCatalogObserved,
		KindBattleOpened:      a.onBattleOpened,
		KindBattleStarted:     a.onBattleStarted,
		KindBattlefieldEffect: a.onBattlefieldEffect,
		KindBattleEnded:       a.onBattleEnded,
	}
	return a
}

// Start loads the persisted catalog and schedules periodic flushing.
func (a *Arena) Start(ctx context.Context, flushEvery time.Duration) error {
	if a.store != nil {
		chars, weapons, techs, err := a.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("arena: load catalog: %w", err)
		}
		a.mu.Lock()
		a.reg.Load(chars, weapons, techs)
		a.mu.Unlock()
		if flushEvery > 0 {
			a.sched.AddTicker(taskFlush, flushEvery, func() {
				if err := a.Flush(a.runCtx); err != nil {
					a.logger.Error("catalog flush failed", zap.Error(err))
				}
			})
		}
	}
	a.logger.Info("arena started",
		zap.String("bot", a.bot.Name),
		zap.Strings("controlled", a.bot.Controlled))
	return nil
}

// Stop cancels a running decision, waits for it and flushes the catalog.
func (a *Arena) Stop(ctx context.Context) error {
	a.stop()
	a.sched.Remove(taskFlush)
	a.sched.Remove(taskAutoEnter)
	a.wg.Wait()
	return a.Flush(ctx)
}

// Flush saves everything that changed since the last flush.
func (a *Arena) Flush(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	a.mu.Lock()
	d := a.reg.TakeDirty()
	a.mu.Unlock()
	if d.Empty() {
		return nil
	}
	if err := a.store.Save(ctx, d); err != nil {
		// Put the entries back so the next flush retries them.
		a.mu.Lock()
		a.reg.MarkDirty(d)
		a.mu.Unlock()
		return err
	}
	return nil
}

// Handle applies one fact. Unknown kinds and undecodable payloads are
// reported but leave the model untouched; observation errors on known
// kinds are logged and absorbed.
func (a *Arena) Handle(ctx context.Context, f Fact) error {
	h, ok := a.handlers[f.Kind]
	if !ok {
		a.logger.Warn("unknown fact dropped", zap.String("kind", string(f.Kind)), zap.Int64("seq", f.Seq))
		return fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}

	fx := &effects{}
	a.mu.Lock()
	err := h(ctx, fx, f.Payload)
	close(a.changed)
	a.changed = make(chan struct{})
	battleID := a.phase.BattleID()
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("fact rejected",
			zap.String("kind", string(f.Kind)),
			zap.Int64("seq", f.Seq),
			zap.String("battle_id", battleID),
			zap.Error(err))
	}
	for _, run := range fx.after {
		run(ctx)
	}
	a.logFact(ctx, f)
	return err
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func (a *Arena) logFact(ctx context.Context, f Fact) {
	if a.cache == nil {
		return
	}
	body, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := a.cache.LPush(ctx, KeyEvents, string(body)); err != nil {
		a.logger.Debug("event log push failed", zap.Error(err))
		return
	}
	_ = a.cache.LTrim(ctx, KeyEvents, 0, eventLogLength-1)
}

func (a *Arena) count(ctx context.Context, counter string) {
	if a.cache == nil {
		return
	}
	if _, err := a.cache.HIncrBy(ctx, KeyStats, counter, 1); err != nil {
		a.logger.Debug("stats counter failed", zap.String("counter", counter), zap.Error(err))
	}
}

// formOf reports how id is commanded, if at all.
func (a *Arena) formOf(id string) (decision.Form, bool) {
	switch {
	case strings.EqualFold(id, a.bot.Name):
		return decision.FormSelf, true
	case strings.EqualFold(id, a.bot.Name+"_clone"):
		return decision.FormClone, true
	}
	for _, c := range a.bot.Controlled {
		if strings.EqualFold(id, c) {
			return decision.FormControlled, true
		}
	}
	return 0, false
}

// waitUntil blocks until pred holds, the timeout passes or ctx ends. pred
// runs under the read lock and is re-checked after every handled fact.
func (a *Arena) waitUntil(ctx context.Context, timeout time.Duration, pred func() bool) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		a.mu.RLock()
		ok := pred()
		changed := a.changed
		a.mu.RUnlock()
		if ok {
			return true
		}
		select {
		case <-changed:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
