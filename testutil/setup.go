// Package testutil builds throwaway infrastructure for package tests.
package testutil

import (
	"testing"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
	dbadapter "github.com/kasuganosora/arenabot/db"
	dbsqlite "github.com/kasuganosora/arenabot/db/sqlite"
	"github.com/kasuganosora/arenabot/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory SQLite database and migrates it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: dbsqlite.Memory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates the in-process cache and pub/sub.
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{}
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}
