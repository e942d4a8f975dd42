package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fuszti/measure/tracker/storage/migrations"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func openDialector(url string) (gorm.Dialector, bool, error) {
	if isPostgres(url) {
		return postgres.Open(url), false, nil
	}

	path := strings.TrimPrefix(url, sqlitePrefix)
	if path == "" {
		return nil, false, fmt.Errorf("empty sqlite database path in '%v'", url)
	}

	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
			return nil, false, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	return sqlite.Open(path), true, nil
}

// OpenDatabase connects to the database at url and brings its schema up to
// date. postgres:// and postgresql:// urls select postgres, anything else is
// treated as a sqlite path with an optional sqlite:// prefix.
func OpenDatabase(url string) (*gorm.DB, error) {
	dialector, isSqlite, err := openDialector(url)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		slog.Error("error opening database connection", "error", err)
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if isSqlite {
		sqlDb, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("error accessing database connection: %w", err)
		}
		// in memory sqlite databases exist per connection, and the pragma below
		// must hold for every statement
		sqlDb.SetMaxOpenConns(1)

		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("error enabling foreign keys: %w", err)
		}
	}

	if err := migrations.Run(db); err != nil {
		slog.Error("database migration failed", "error", err)
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return db, nil
}
