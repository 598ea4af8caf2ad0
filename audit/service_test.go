package audit

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/arenabot/game/arena"
	"github.com/kasuganosora/arenabot/game/phase"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(id string, outcome phase.Outcome) arena.BattleReport {
	opened := time.Now().Add(-90 * time.Second)
	return arena.BattleReport{
		BattleID: id,
		Type:     phase.BattleBoss,
		Outcome:  outcome,
		Turns:    7,
		Commands: 5,
		Bot:      "Hero",
		Combatants: []arena.CombatantSummary{
			{ID: "Hero", Category: "player"},
			{ID: "Alice", Category: "player"},
			{ID: "Gob", Category: "monster"},
		},
		OpenedAt: opened,
		EndedAt:  opened.Add(90 * time.Second),
	}
}

func TestRecordBattle_WritesLog(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := New(db, nil, nil)

	rec.RecordBattle(context.Background(), report("b1", phase.OutcomeVictory))
	rec.Stop(context.Background())

	var logs []model.BattleLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "b1", logs[0].BattleID)
	assert.Equal(t, "boss", logs[0].BattleType)
	assert.Equal(t, "victory", logs[0].Outcome)
	assert.Equal(t, 7, logs[0].Turns)
	assert.Equal(t, int64(90_000), logs[0].DurationMs)
	assert.Contains(t, string(logs[0].Combatants), `"Gob"`)
}

func TestRecordBattle_CountersAndLeaderboard(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	rec := New(db, c, nil)
	defer rec.Stop(context.Background())
	ctx := context.Background()

	rec.RecordBattle(ctx, report("b1", phase.OutcomeVictory))
	rec.RecordBattle(ctx, report("b2", phase.OutcomeDefeat))
	alone := report("b3", phase.OutcomeVictory)
	alone.Combatants = alone.Combatants[:1]
	rec.RecordBattle(ctx, alone)

	stats, err := rec.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats["battles"])
	assert.Equal(t, int64(2), stats["outcome_victory"])
	assert.Equal(t, int64(1), stats["outcome_defeat"])

	board, err := rec.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, Standing{ID: "Hero", Victories: 2}, board[0])
	assert.Equal(t, Standing{ID: "Alice", Victories: 1}, board[1])
}

func TestRecent_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec := New(db, nil, nil)
	for _, id := range []string{"b1", "b2", "b3"} {
		rec.RecordBattle(context.Background(), report(id, phase.OutcomeDraw))
		time.Sleep(2 * time.Millisecond)
	}
	rec.Stop(context.Background())

	logs, err := rec.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "b3", logs[0].BattleID)
	assert.Equal(t, "b2", logs[1].BattleID)
}

func TestStats_WithoutCache(t *testing.T) {
	rec := New(testutil.SetupTestDB(t), nil, nil)
	defer rec.Stop(context.Background())

	stats, err := rec.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
	board, err := rec.Leaderboard(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestStop_Idempotent(t *testing.T) {
	rec := New(testutil.SetupTestDB(t), nil, nil)
	rec.Stop(context.Background())
	rec.Stop(context.Background())
}

func TestRecordBattle_DropsWhenFull(t *testing.T) {
	rec := New(testutil.SetupTestDB(t), nil, nil)
	for i := 0; i < queueSize+20; i++ {
		rec.RecordBattle(context.Background(), report("flood", phase.OutcomeDraw))
	}
	rec.Stop(context.Background())
}
