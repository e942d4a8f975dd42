package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fuszti/measure/tracker/measure"
	"github.com/fuszti/measure/tracker/schema"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SqlRepository struct {
	db *gorm.DB
}

func NewSqlRepository(db *gorm.DB) *SqlRepository {
	return &SqlRepository{db: db}
}

func dbError(err error) error {
	if errors.Is(err, schema.ErrTemplateNotFound) || errors.Is(err, schema.ErrMeasurementNotFound) {
		return err
	}
	var unknown *UnknownValueDefinitionError
	if errors.As(err, &unknown) || errors.Is(err, measure.ErrInvalidTemplate) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return storeError(err)
}

func (r *SqlRepository) ListTemplates(ctx context.Context) ([]measure.Template, error) {
	var rows []schema.Template

	result := r.db.WithContext(ctx).
		Preload("ValueDefinitions", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("ValueDefinitions.Unit").
		Where("is_active = ?", true).
		Order("created_at").Order("id").
		Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing templates", "error", result.Error)
		return nil, storeError(result.Error)
	}

	templates := make([]measure.Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, row.ToTemplate())
	}
	return templates, nil
}

func (r *SqlRepository) GetTemplate(ctx context.Context, templateId string) (measure.Template, error) {
	row, err := schema.GetTemplate(templateId, r.db.WithContext(ctx))
	if err != nil {
		return measure.Template{}, dbError(err)
	}
	return row.ToTemplate(), nil
}

// getOrCreateUnit returns the id of the unit with the given name. Units are
// shared between templates, an existing unit is never modified.
func getOrCreateUnit(txn *gorm.DB, unit measure.Unit) (string, error) {
	row := schema.Unit{}
	result := txn.
		Where(schema.Unit{Name: unit.Name}).
		Attrs(schema.Unit{Id: uuid.New().String(), DisplayName: unit.DisplayName, Description: unit.Description}).
		FirstOrCreate(&row)
	if result.Error != nil {
		slog.Error("sql error resolving unit", "unit", unit.Name, "error", result.Error)
		return "", fmt.Errorf("error resolving unit '%v': %w", unit.Name, result.Error)
	}
	return row.Id, nil
}

func (r *SqlRepository) PutTemplate(ctx context.Context, template measure.Template) (measure.Template, error) {
	if err := template.CheckStructure(); err != nil {
		return measure.Template{}, err
	}

	var stored schema.Template
	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		exists := false
		if template.Id != "" {
			existing, err := schema.GetTemplate(template.Id, txn)
			if err == nil {
				current := existing.ToTemplate()
				prepareTemplate(&template, &current, time.Now())
				exists = true
			} else if !errors.Is(err, schema.ErrTemplateNotFound) {
				return err
			}
		}
		if !exists {
			prepareTemplate(&template, nil, time.Now())
		}

		row := schema.Template{
			Id:          template.Id,
			Name:        template.Name,
			Description: template.Description,
			CreatedAt:   template.CreatedAt,
			UpdatedAt:   template.UpdatedAt,
			IsActive:    template.IsActive,
			OwnerId:     template.OwnerId,
		}

		if exists {
			result := txn.Model(&schema.Template{Id: template.Id}).
				Select("name", "description", "created_at", "updated_at", "is_active", "owner_id").
				Updates(&row)
			if result.Error != nil {
				slog.Error("sql error updating template", "template_id", template.Id, "error", result.Error)
				return result.Error
			}

			if err := detachDefinitions(txn, template.Id); err != nil {
				return err
			}
		} else {
			if result := txn.Omit(clause.Associations).Create(&row); result.Error != nil {
				slog.Error("sql error creating template", "template_id", template.Id, "error", result.Error)
				return result.Error
			}
		}

		defs := make([]schema.ValueDefinition, 0, len(template.ValueDefinitions))
		for i, def := range template.ValueDefinitions {
			unitId, err := getOrCreateUnit(txn, def.Unit)
			if err != nil {
				return err
			}
			defs = append(defs, schema.ValueDefinition{
				Id:          uuid.New().String(),
				TemplateId:  template.Id,
				Position:    i,
				Name:        def.Name,
				DisplayName: def.DisplayName,
				Description: def.Description,
				UnitId:      unitId,
				MinValue:    def.MinValue,
				MaxValue:    def.MaxValue,
			})
		}

		if len(defs) > 0 {
			if result := txn.Omit(clause.Associations).Create(&defs); result.Error != nil {
				slog.Error("sql error creating value definitions", "template_id", template.Id, "error", result.Error)
				return result.Error
			}
		}

		if exists {
			if err := relinkValues(txn, template.Id); err != nil {
				return err
			}
		}

		var err error
		stored, err = schema.GetTemplate(template.Id, txn)
		return err
	})
	if err != nil {
		return measure.Template{}, dbError(err)
	}

	return stored.ToTemplate(), nil
}

// detachDefinitions removes the value definitions of a template. Values that
// referenced them keep their definition name and lose the reference until
// relinkValues restores it.
func detachDefinitions(txn *gorm.DB, templateId string) error {
	result := txn.Model(&schema.MeasurementValue{}).
		Where("definition_id IN (?)", txn.Model(&schema.ValueDefinition{}).Select("id").Where("template_id = ?", templateId)).
		Update("definition_id", nil)
	if result.Error != nil {
		slog.Error("sql error detaching measurement values", "template_id", templateId, "error", result.Error)
		return result.Error
	}

	result = txn.Where("template_id = ?", templateId).Delete(&schema.ValueDefinition{})
	if result.Error != nil {
		slog.Error("sql error deleting value definitions", "template_id", templateId, "error", result.Error)
		return result.Error
	}

	return nil
}

func relinkValues(txn *gorm.DB, templateId string) error {
	result := txn.Exec(`
		UPDATE measurement_values SET definition_id = (
			SELECT vd.id FROM value_definitions vd
			WHERE vd.template_id = ? AND vd.name = measurement_values.definition_name
		)
		WHERE measurement_id IN (SELECT id FROM measurements WHERE template_id = ?)`,
		templateId, templateId,
	)
	if result.Error != nil {
		slog.Error("sql error relinking measurement values", "template_id", templateId, "error", result.Error)
		return result.Error
	}
	return nil
}

func (r *SqlRepository) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]measure.Measurement, error) {
	query := r.db.WithContext(ctx).
		Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("position") })

	if filter.TemplateId != "" {
		query = query.Where("template_id = ?", filter.TemplateId)
	}
	if filter.Start != nil {
		query = query.Where("measured_at >= ?", measure.NormalizeTime(*filter.Start))
	}
	if filter.End != nil {
		query = query.Where("measured_at <= ?", measure.NormalizeTime(*filter.End))
	}

	var rows []schema.Measurement
	if result := query.Order("measured_at DESC").Order("id").Find(&rows); result.Error != nil {
		slog.Error("sql error listing measurements", "template_id", filter.TemplateId, "error", result.Error)
		return nil, storeError(result.Error)
	}

	measurements := make([]measure.Measurement, 0, len(rows))
	for _, row := range rows {
		measurements = append(measurements, row.ToMeasurement())
	}
	return measurements, nil
}

func (r *SqlRepository) GetMeasurement(ctx context.Context, measurementId string) (measure.Measurement, error) {
	row, err := schema.GetMeasurement(measurementId, r.db.WithContext(ctx))
	if err != nil {
		return measure.Measurement{}, dbError(err)
	}
	return row.ToMeasurement(), nil
}

func (r *SqlRepository) PutMeasurement(ctx context.Context, measurement measure.Measurement) (measure.Measurement, error) {
	var stored schema.Measurement
	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		templateRow, err := schema.GetTemplate(measurement.TemplateId, txn)
		if err != nil {
			return err
		}

		if err := checkValueNames(measurement.Values, templateRow.ToTemplate()); err != nil {
			return err
		}

		exists := false
		if measurement.Id != "" {
			existing, err := schema.GetMeasurement(measurement.Id, txn)
			if err == nil {
				current := existing.ToMeasurement()
				prepareMeasurement(&measurement, &current, time.Now())
				exists = true
			} else if !errors.Is(err, schema.ErrMeasurementNotFound) {
				return err
			}
		}
		if !exists {
			prepareMeasurement(&measurement, nil, time.Now())
		}

		if exists {
			if result := txn.Where("measurement_id = ?", measurement.Id).Delete(&schema.MeasurementValue{}); result.Error != nil {
				slog.Error("sql error deleting measurement values", "measurement_id", measurement.Id, "error", result.Error)
				return result.Error
			}
			if result := txn.Delete(&schema.Measurement{Id: measurement.Id}); result.Error != nil {
				slog.Error("sql error deleting measurement", "measurement_id", measurement.Id, "error", result.Error)
				return result.Error
			}
		}

		definitionIds := make(map[string]string, len(templateRow.ValueDefinitions))
		for _, def := range templateRow.ValueDefinitions {
			definitionIds[def.Name] = def.Id
		}

		values := make([]schema.MeasurementValue, 0, len(measurement.Values))
		for i, v := range measurement.Values {
			definitionId := definitionIds[v.DefinitionName]
			values = append(values, schema.MeasurementValue{
				Id:             uuid.New().String(),
				MeasurementId:  measurement.Id,
				Position:       i,
				DefinitionId:   &definitionId,
				DefinitionName: v.DefinitionName,
				Value:          v.Value,
			})
		}

		row := schema.Measurement{
			Id:         measurement.Id,
			TemplateId: measurement.TemplateId,
			MeasuredAt: measurement.MeasuredAt,
			RecordedAt: measurement.RecordedAt,
			Notes:      measurement.Notes,
			UserId:     measurement.UserId,
		}
		if result := txn.Omit(clause.Associations).Create(&row); result.Error != nil {
			slog.Error("sql error creating measurement", "measurement_id", measurement.Id, "error", result.Error)
			return result.Error
		}

		if len(values) > 0 {
			if result := txn.Omit(clause.Associations).Create(&values); result.Error != nil {
				slog.Error("sql error creating measurement values", "measurement_id", measurement.Id, "error", result.Error)
				return result.Error
			}
		}

		stored, err = schema.GetMeasurement(measurement.Id, txn)
		return err
	})
	if err != nil {
		return measure.Measurement{}, dbError(err)
	}

	return stored.ToMeasurement(), nil
}

func (r *SqlRepository) Export(ctx context.Context) (Snapshot, error) {
	var templates []schema.Template
	result := r.db.WithContext(ctx).
		Preload("ValueDefinitions", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("ValueDefinitions.Unit").
		Order("created_at").Order("id").
		Find(&templates)
	if result.Error != nil {
		slog.Error("sql error exporting templates", "error", result.Error)
		return Snapshot{}, storeError(result.Error)
	}

	measurements, err := r.ListMeasurements(ctx, MeasurementFilter{})
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Templates: make([]measure.Template, 0, len(templates)), Measurements: measurements}
	for _, t := range templates {
		snapshot.Templates = append(snapshot.Templates, t.ToTemplate())
	}
	return snapshot, nil
}

func (r *SqlRepository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
