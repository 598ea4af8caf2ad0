package mysql

import (
	"strings"

	"github.com/kasuganosora/arenabot/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// withParams appends parseTime and utf8mb4 when the DSN does not set them.
// battle_logs scans DATETIME columns into time.Time.
func withParams(dsn string) string {
	var add []string
	if !strings.Contains(dsn, "parseTime=") {
		add = append(add, "parseTime=true")
	}
	if !strings.Contains(dsn, "charset=") {
		add = append(add, "charset=utf8mb4")
	}
	if len(add) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

// Open creates a GORM *DB backed by MySQL with a connection pool.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(withParams(cfg.MySQLDSN)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MySQLMaxOpen)
	sqlDB.SetMaxIdleConns(cfg.MySQLMaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.MySQLMaxLife)

	return db, nil
}
