package model

import (
	"time"

	"gorm.io/datatypes"
)

// Profile is the persisted form of a character profile.
type Profile struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string `gorm:"size:64;index:idx_profile_name" json:"display_name"`
	Category    uint8  `gorm:"default:0" json:"category"`
	Gender      uint8  `gorm:"default:0" json:"gender"`
	Level       int    `gorm:"default:0" json:"level"`

	HP       int `json:"hp"`
	TP       int `json:"tp"`
	STR      int `json:"str"`
	DEF      int `json:"def"`
	INT      int `gorm:"column:intel" json:"int"`
	SPD      int `json:"spd"`
	Ignition int `json:"ignition"`

	Weapons    datatypes.JSONType[map[string]int] `json:"weapons"`
	Techniques datatypes.JSONType[map[string]int] `json:"techniques"`
	Skills     datatypes.JSONType[map[string]int] `json:"skills"`
	Styles     datatypes.JSONType[map[string]int] `json:"styles"`

	EquippedWeapon string `gorm:"size:64" json:"equipped_weapon"`
	CurrentStyle   string `gorm:"size:64" json:"current_style"`

	Resist datatypes.JSONSlice[string] `json:"resist"`
	Weak   datatypes.JSONSlice[string] `json:"weak"`
	Immune datatypes.JSONSlice[string] `json:"immune"`
	Absorb datatypes.JSONSlice[string] `json:"absorb"`

	Rating  int `gorm:"index:idx_profile_rating" json:"rating"`
	Wins    int `json:"wins"`
	Losses  int `json:"losses"`
	Battles int `json:"battles"`

	TauntVulnerable bool `json:"taunt_vulnerable"`
	Analyzed        bool `json:"analyzed"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
