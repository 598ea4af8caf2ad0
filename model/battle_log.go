package model

import (
	"time"

	"gorm.io/datatypes"
)

// BattleLog records one concluded battle and what the bot did in it.
type BattleLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	BattleID   string         `gorm:"index:idx_battle_log_battle;size:36;not null" json:"battle_id"`
	BattleType string         `gorm:"size:16" json:"battle_type"`
	Outcome    string         `gorm:"size:16;index:idx_battle_log_outcome" json:"outcome"`
	Turns      int            `json:"turns"`
	Commands   int            `json:"commands"`
	Combatants datatypes.JSON `json:"combatants"`
	OpenedAt   time.Time      `json:"opened_at"`
	EndedAt    time.Time      `gorm:"index:idx_battle_log_ended" json:"ended_at"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"autoCreateTime:milli" json:"created_at"`
}
