package model

import (
	"time"

	"gorm.io/datatypes"
)

// WeaponDef is a learned weapon definition. Observed is the bitmask of
// fields that have been seen at least once.
type WeaponDef struct {
	Name       string                      `gorm:"primaryKey;size:64" json:"name"`
	Type       string                      `gorm:"size:32" json:"type"`
	HitsMin    int                         `json:"hits_min"`
	HitsMax    int                         `json:"hits_max"`
	Power      float64                     `json:"power"`
	Element    string                      `gorm:"size:32" json:"element"`
	Techniques datatypes.JSONSlice[string] `json:"techniques"`
	StatusTags datatypes.JSONSlice[string] `json:"status_tags"`
	WellKnown  bool                        `gorm:"index:idx_weapon_known" json:"well_known"`
	Observed   uint16                      `json:"observed"`
	UpdatedAt  time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TechniqueDef is a learned technique definition.
type TechniqueDef struct {
	Name       string                      `gorm:"primaryKey;size:64" json:"name"`
	Target     string                      `gorm:"size:16" json:"target"`
	TPCost     int                         `json:"tp_cost"`
	Power      float64                     `json:"power"`
	Element    string                      `gorm:"size:32" json:"element"`
	Hits       int                         `gorm:"default:1" json:"hits"`
	StatusTags datatypes.JSONSlice[string] `json:"status_tags"`
	Magic      bool                        `json:"magic"`
	WellKnown  bool                        `gorm:"index:idx_tech_known" json:"well_known"`
	Observed   uint16                      `json:"observed"`
	UpdatedAt  time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}
