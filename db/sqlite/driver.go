package sqlite

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Memory is the path that opens a private in-memory database.
const Memory = ":memory:"

// Open creates a GORM *DB backed by SQLite. The parent directory of a file
// path is created when missing.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		path = Memory
	}
	if path != Memory && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Every new connection to :memory: would see an empty database.
	if path == Memory {
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
