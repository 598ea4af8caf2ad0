// Package db opens the profile and catalog database.
package db

import (
	"fmt"

	"github.com/kasuganosora/arenabot/config"
	dbmysql "github.com/kasuganosora/arenabot/db/mysql"
	dbsqlite "github.com/kasuganosora/arenabot/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite, "":
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
