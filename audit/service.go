// Package audit records concluded battles: one battle_logs row each,
// written in batches, plus counters and a victory leaderboard in the cache.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/game/arena"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// KeyVictories is the sorted set of victories per participant.
const KeyVictories = "arena:victories"

const (
	queueSize     = 256
	batchSize     = 50
	flushInterval = 2 * time.Second
)

// Standing is one leaderboard row.
type Standing struct {
	ID        string `json:"id"`
	Victories int    `json:"victories"`
}

// Recorder implements the arena's accountant.
type Recorder struct {
	db     *gorm.DB
	cache  cache.Cache
	ch     chan *model.BattleLog
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Recorder and starts its background writer. c may be nil.
func New(db *gorm.DB, c cache.Cache, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		db:     db,
		cache:  c,
		ch:     make(chan *model.BattleLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// RecordBattle queues the battle log and updates the cache counters.
func (r *Recorder) RecordBattle(ctx context.Context, rep arena.BattleReport) {
	combatants, err := json.Marshal(rep.Combatants)
	if err != nil {
		combatants = []byte("[]")
	}
	row := &model.BattleLog{
		BattleID:   rep.BattleID,
		BattleType: string(rep.Type),
		Outcome:    string(rep.Outcome),
		Turns:      rep.Turns,
		Commands:   rep.Commands,
		Combatants: datatypes.JSON(combatants),
		OpenedAt:   rep.OpenedAt,
		EndedAt:    rep.EndedAt,
		DurationMs: rep.Duration().Milliseconds(),
	}
	select {
	case r.ch <- row:
	default:
		r.logger.Warn("battle log queue full, dropping entry",
			zap.String("battle_id", rep.BattleID))
	}

	if r.cache == nil {
		return
	}
	r.incr(ctx, "battles")
	r.incr(ctx, "outcome_"+string(rep.Outcome))
	if rep.Outcome != phase.OutcomeVictory {
		return
	}
	for _, c := range rep.Combatants {
		if c.Category == "monster" || c.Category == "unknown" {
			continue
		}
		prev, err := r.cache.ZScore(ctx, KeyVictories, c.ID)
		if err != nil && !cache.IsNotFound(err) {
			r.logger.Debug("leaderboard read failed", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		if err := r.cache.ZAdd(ctx, KeyVictories, prev+1, c.ID); err != nil {
			r.logger.Debug("leaderboard write failed", zap.String("id", c.ID), zap.Error(err))
		}
	}
}

func (r *Recorder) incr(ctx context.Context, field string) {
	if _, err := r.cache.HIncrBy(ctx, arena.KeyStats, field, 1); err != nil {
		r.logger.Debug("stats counter failed", zap.String("field", field), zap.Error(err))
	}
}

// Stats returns every activity counter.
func (r *Recorder) Stats(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	if r.cache == nil {
		return out, nil
	}
	raw, err := r.cache.HGetAll(ctx, arena.KeyStats)
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Leaderboard returns the top n participants by victories.
func (r *Recorder) Leaderboard(ctx context.Context, n int) ([]Standing, error) {
	out := []Standing{}
	if r.cache == nil || n <= 0 {
		return out, nil
	}
	ids, err := r.cache.ZRevRange(ctx, KeyVictories, 0, int64(n-1))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		score, err := r.cache.ZScore(ctx, KeyVictories, id)
		if err != nil {
			continue
		}
		out = append(out, Standing{ID: id, Victories: int(score)})
	}
	return out, nil
}

// Recent returns the last n battle logs, newest first.
func (r *Recorder) Recent(ctx context.Context, n int) ([]model.BattleLog, error) {
	var logs []model.BattleLog
	err := r.db.WithContext(ctx).Order("ended_at DESC").Order("id DESC").Limit(n).Find(&logs).Error
	return logs, err
}

// Stop flushes queued logs and shuts the writer down. It is safe to call
// more than once.
func (r *Recorder) Stop(_ context.Context) {
	r.once.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.BattleLog, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.db.Create(&batch).Error; err != nil {
			r.logger.Error("battle log batch write failed", zap.Int("rows", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-r.ch:
			batch = append(batch, row)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stopCh:
			for {
				select {
				case row := <-r.ch:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}
