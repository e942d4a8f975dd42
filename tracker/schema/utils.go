package schema

import (
	"errors"
	"log/slog"

	"github.com/fuszti/measure/tracker/measure"
	"gorm.io/gorm"
)

var (
	ErrTemplateNotFound    = errors.New("template not found")
	ErrMeasurementNotFound = errors.New("measurement not found")
	ErrDbAccessFailed      = errors.New("db access failed")
)

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func GetTemplate(templateId string, db *gorm.DB) (Template, error) {
	var template Template

	result := db.
		Preload("ValueDefinitions", byPosition).
		Preload("ValueDefinitions.Unit").
		First(&template, "id = ?", templateId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return template, ErrTemplateNotFound
		}
		slog.Error("sql error in get template", "template_id", templateId, "error", result.Error)
		return template, ErrDbAccessFailed
	}

	return template, nil
}

func GetMeasurement(measurementId string, db *gorm.DB) (Measurement, error) {
	var measurement Measurement

	result := db.Preload("Values", byPosition).First(&measurement, "id = ?", measurementId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return measurement, ErrMeasurementNotFound
		}
		slog.Error("sql error in get measurement", "measurement_id", measurementId, "error", result.Error)
		return measurement, ErrDbAccessFailed
	}

	return measurement, nil
}

func (t *Template) ToTemplate() measure.Template {
	defs := make([]measure.ValueDefinition, 0, len(t.ValueDefinitions))
	for _, def := range t.ValueDefinitions {
		var unit measure.Unit
		if def.Unit != nil {
			unit = measure.Unit{Name: def.Unit.Name, DisplayName: def.Unit.DisplayName, Description: def.Unit.Description}
		}
		defs = append(defs, measure.ValueDefinition{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Unit:        unit,
			MinValue:    def.MinValue,
			MaxValue:    def.MaxValue,
		})
	}

	template := measure.Template{
		Id:               t.Id,
		Name:             t.Name,
		Description:      t.Description,
		ValueDefinitions: defs,
		CreatedAt:        measure.NormalizeTime(t.CreatedAt),
		IsActive:         t.IsActive,
		OwnerId:          t.OwnerId,
	}
	if t.UpdatedAt != nil {
		updated := measure.NormalizeTime(*t.UpdatedAt)
		template.UpdatedAt = &updated
	}
	return template
}

func (m *Measurement) ToMeasurement() measure.Measurement {
	values := make([]measure.MeasurementValue, 0, len(m.Values))
	for _, v := range m.Values {
		values = append(values, measure.MeasurementValue{DefinitionName: v.DefinitionName, Value: v.Value})
	}

	return measure.Measurement{
		Id:         m.Id,
		TemplateId: m.TemplateId,
		Values:     values,
		MeasuredAt: measure.NormalizeTime(m.MeasuredAt),
		RecordedAt: measure.NormalizeTime(m.RecordedAt),
		Notes:      m.Notes,
		UserId:     m.UserId,
	}
}
