package migrations

import (
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Run(db *gorm.DB) error {
	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			// Placeholder for the schema written by the previous python service,
			// or for an empty database.
			ID:      "0",
			Migrate: func(*gorm.DB) error { return nil },
		},
		{
			ID:      "1",
			Migrate: Migration_1_initial_schema,
			// Rollback is not supported, the legacy conversion is not intended to
			// be reversed.
		},
	})

	if err := migration.Migrate(); err != nil {
		return err
	}

	slog.Info("database schema is up to date")
	return nil
}
