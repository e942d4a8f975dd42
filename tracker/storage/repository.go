package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fuszti/measure/tracker/measure"
	"github.com/fuszti/measure/tracker/schema"
)

var (
	ErrTemplateNotFound       = schema.ErrTemplateNotFound
	ErrMeasurementNotFound    = schema.ErrMeasurementNotFound
	ErrUnknownValueDefinition = errors.New("unknown value definition")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrUnknownBackend         = errors.New("unknown storage backend")
)

type UnknownValueDefinitionError struct {
	Name       string
	TemplateId string
}

func (e *UnknownValueDefinitionError) Error() string {
	return fmt.Sprintf("value definition '%v' does not exist in template '%v'", e.Name, e.TemplateId)
}

func (e *UnknownValueDefinitionError) Is(target error) bool {
	return target == ErrUnknownValueDefinition
}

// MeasurementFilter selects measurements for listing. Both bounds are
// inclusive and a nil bound leaves that side of the range open.
type MeasurementFilter struct {
	TemplateId string
	Start      *time.Time
	End        *time.Time
}

func (f MeasurementFilter) Matches(m measure.Measurement) bool {
	if f.TemplateId != "" && m.TemplateId != f.TemplateId {
		return false
	}
	if f.Start != nil && m.MeasuredAt.Before(measure.NormalizeTime(*f.Start)) {
		return false
	}
	if f.End != nil && m.MeasuredAt.After(measure.NormalizeTime(*f.End)) {
		return false
	}
	return true
}

// Snapshot is the complete content of a store, inactive templates included.
type Snapshot struct {
	Templates    []measure.Template    `json:"templates"`
	Measurements []measure.Measurement `json:"measurements"`
}

// Repository persists templates and measurements. Every implementation has the
// same observable behaviour.
//
// PutTemplate and PutMeasurement are upserts: when a record with the same id
// exists it is replaced entirely, including its value definitions or values,
// otherwise a new record is inserted with any missing id and timestamps
// assigned. Both return the record in its stored form.
type Repository interface {
	// ListTemplates returns the active templates, oldest first.
	ListTemplates(ctx context.Context) ([]measure.Template, error)

	// GetTemplate returns the template with the given id, active or not.
	GetTemplate(ctx context.Context, templateId string) (measure.Template, error)

	PutTemplate(ctx context.Context, template measure.Template) (measure.Template, error)

	// ListMeasurements returns the measurements matching the filter, most
	// recently measured first.
	ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]measure.Measurement, error)

	GetMeasurement(ctx context.Context, measurementId string) (measure.Measurement, error)

	PutMeasurement(ctx context.Context, measurement measure.Measurement) (measure.Measurement, error)

	Export(ctx context.Context) (Snapshot, error)

	Close() error
}

const (
	SqlBackend    = "sql"
	FileBackend   = "file"
	BadgerBackend = "badger"
)

type Config struct {
	Backend     string
	DatabaseUrl string
	DataDir     string
}

func Open(cfg Config) (Repository, error) {
	switch cfg.Backend {
	case SqlBackend, "":
		db, err := OpenDatabase(cfg.DatabaseUrl)
		if err != nil {
			return nil, err
		}
		return NewSqlRepository(db), nil
	case FileBackend:
		return NewFileRepository(NewLocalDisk(cfg.DataDir)), nil
	case BadgerBackend:
		return NewBadgerRepository(cfg.DataDir, false)
	default:
		return nil, fmt.Errorf("%w: '%v'", ErrUnknownBackend, cfg.Backend)
	}
}

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func checkValueNames(values []measure.MeasurementValue, template measure.Template) error {
	for _, v := range values {
		if _, ok := template.Definition(v.DefinitionName); !ok {
			return &UnknownValueDefinitionError{Name: v.DefinitionName, TemplateId: template.Id}
		}
	}
	return nil
}

// unitRegistry resolves units by name. A unit is registered the first time its
// name is seen and is never modified afterwards.
type unitRegistry interface {
	lookupUnit(name string) (measure.Unit, bool, error)
	registerUnit(unit measure.Unit) error
}

// shareUnits replaces the unit of every definition with the registered unit of
// the same name, registering units that are new.
func shareUnits(template *measure.Template, units unitRegistry) error {
	defs := make([]measure.ValueDefinition, len(template.ValueDefinitions))
	copy(defs, template.ValueDefinitions)

	for i := range defs {
		unit, ok, err := units.lookupUnit(defs[i].Unit.Name)
		if err != nil {
			return err
		}
		if ok {
			defs[i].Unit = unit
			continue
		}
		if err := units.registerUnit(defs[i].Unit); err != nil {
			return err
		}
	}

	template.ValueDefinitions = defs
	return nil
}

// prepareTemplate assigns the server side fields of a template before it is
// written. stored is the current version of the template, or nil on insert.
func prepareTemplate(template *measure.Template, stored *measure.Template, now time.Time) {
	if stored != nil {
		template.CreatedAt = stored.CreatedAt
		updated := measure.NormalizeTime(now)
		template.UpdatedAt = &updated
	}
	template.AssignDefaults(now)
	if template.ValueDefinitions == nil {
		template.ValueDefinitions = []measure.ValueDefinition{}
	}
}

func prepareMeasurement(measurement *measure.Measurement, stored *measure.Measurement, now time.Time) {
	if stored != nil && measurement.RecordedAt.IsZero() {
		measurement.RecordedAt = stored.RecordedAt
	}
	measurement.AssignDefaults(now)
}

func sortTemplates(templates []measure.Template) {
	sort.SliceStable(templates, func(i, j int) bool {
		if !templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].CreatedAt.Before(templates[j].CreatedAt)
		}
		return templates[i].Id < templates[j].Id
	})
}

func sortMeasurements(measurements []measure.Measurement) {
	sort.SliceStable(measurements, func(i, j int) bool {
		if !measurements[i].MeasuredAt.Equal(measurements[j].MeasuredAt) {
			return measurements[i].MeasuredAt.After(measurements[j].MeasuredAt)
		}
		return measurements[i].Id < measurements[j].Id
	})
}
