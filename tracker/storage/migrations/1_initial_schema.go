package migrations

import (
	"log/slog"

	"github.com/fuszti/measure/tracker/schema"
	"gorm.io/gorm"
)

/*
 * Databases written by the python service already contain all five tables,
 * but value_definitions has no position column, measurement_values does not
 * record the definition name, and unit names are not unique. Those databases
 * are converted in place. Empty databases get the full schema.
 */
func Migration_1_initial_schema(txn *gorm.DB) error {
	if txn.Migrator().HasTable(&schema.Template{}) {
		slog.Info("legacy schema detected, converting")
		return convertLegacySchema(txn)
	}

	slog.Info("clean database detected, running full schema initialization")
	return txn.AutoMigrate(
		&schema.Unit{}, &schema.Template{}, &schema.ValueDefinition{},
		&schema.Measurement{}, &schema.MeasurementValue{},
	)
}

func convertLegacySchema(txn *gorm.DB) error {
	if err := addDefinitionPositions(txn); err != nil {
		return err
	}
	if err := deduplicateUnits(txn); err != nil {
		return err
	}
	return rebuildMeasurementValues(txn)
}

func addDefinitionPositions(txn *gorm.DB) error {
	type ValueDefinition struct {
		Position int `gorm:"not null;default:0"`
	}

	if txn.Migrator().HasColumn(&ValueDefinition{}, "Position") {
		return nil
	}
	return txn.Migrator().AddColumn(&ValueDefinition{}, "Position")
}

func deduplicateUnits(txn *gorm.DB) error {
	// point every definition at the first unit row carrying its unit name
	err := txn.Exec(`
		UPDATE value_definitions SET unit_id = (
			SELECT MIN(u2.id) FROM units u1 JOIN units u2 ON u1.name = u2.name
			WHERE u1.id = value_definitions.unit_id
		)`).Error
	if err != nil {
		return err
	}

	err = txn.Exec(`DELETE FROM units WHERE id NOT IN (SELECT MIN(id) FROM units GROUP BY name)`).Error
	if err != nil {
		return err
	}

	return txn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_units_name ON units (name)`).Error
}

func rebuildMeasurementValues(txn *gorm.DB) error {
	statements := []string{
		`CREATE TABLE legacy_measurement_values AS SELECT * FROM measurement_values`,
		`DROP TABLE measurement_values`,
	}
	for _, stmt := range statements {
		if err := txn.Exec(stmt).Error; err != nil {
			return err
		}
	}

	// CreateTable instead of AutoMigrate so the legacy parent tables are not
	// touched
	if err := txn.Migrator().CreateTable(&schema.MeasurementValue{}); err != nil {
		return err
	}

	statements = []string{
		`INSERT INTO measurement_values (id, measurement_id, position, definition_id, definition_name, value)
			SELECT mv.id, mv.measurement_id, 0, mv.definition_id, vd.name, mv.value
			FROM legacy_measurement_values mv JOIN value_definitions vd ON vd.id = mv.definition_id`,
		`DROP TABLE legacy_measurement_values`,
	}
	for _, stmt := range statements {
		if err := txn.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
