package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fuszti/measure/tracker/measure"
)

const (
	templatesFile    = "templates.json"
	measurementsFile = "measurements.json"
	unitsFile        = "units.json"
)

// fileUnits is the unit registry of a FileRepository. Stores written before
// units.json existed have their units taken from the stored templates, the
// first template using a name wins.
type fileUnits struct {
	units []measure.Unit
	index map[string]int
	dirty bool
}

func loadUnits(disk Disk, templates []measure.Template) (*fileUnits, error) {
	stored, err := loadCollection[measure.Unit](disk, unitsFile)
	if err != nil {
		return nil, err
	}

	units := &fileUnits{index: make(map[string]int)}
	for _, unit := range stored {
		units.add(unit)
	}
	for _, t := range templates {
		for _, def := range t.ValueDefinitions {
			if _, ok := units.index[def.Unit.Name]; !ok {
				units.add(def.Unit)
				units.dirty = true
			}
		}
	}
	return units, nil
}

func (u *fileUnits) add(unit measure.Unit) {
	u.index[unit.Name] = len(u.units)
	u.units = append(u.units, unit)
}

func (u *fileUnits) lookupUnit(name string) (measure.Unit, bool, error) {
	i, ok := u.index[name]
	if !ok {
		return measure.Unit{}, false, nil
	}
	return u.units[i], true, nil
}

func (u *fileUnits) registerUnit(unit measure.Unit) error {
	u.add(unit)
	u.dirty = true
	return nil
}

// FileRepository keeps each collection as a JSON array in its own file. Every
// operation reads the files afresh, writes replace a file atomically.
type FileRepository struct {
	disk Disk
	mu   sync.RWMutex
}

func NewFileRepository(disk Disk) *FileRepository {
	return &FileRepository{disk: disk}
}

func loadCollection[T any](disk Disk, path string) ([]T, error) {
	records := make([]T, 0)

	exists, err := disk.Exists(path)
	if err != nil {
		return nil, storeError(err)
	}
	if !exists {
		return records, nil
	}

	file, err := disk.Read(path)
	if err != nil {
		return nil, storeError(err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&records); err != nil {
		slog.Error("error decoding collection", "path", path, "error", err)
		return nil, storeError(fmt.Errorf("error decoding %v: %w", path, err))
	}

	return records, nil
}

func saveCollection[T any](disk Disk, path string, records []T) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		slog.Error("error encoding collection", "path", path, "error", err)
		return storeError(fmt.Errorf("error encoding %v: %w", path, err))
	}

	if err := disk.Write(path, bytes.NewReader(data)); err != nil {
		return storeError(err)
	}
	return nil
}

func (r *FileRepository) ListTemplates(ctx context.Context) ([]measure.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates, err := loadCollection[measure.Template](r.disk, templatesFile)
	if err != nil {
		return nil, err
	}

	active := make([]measure.Template, 0, len(templates))
	for _, t := range templates {
		if t.IsActive {
			active = append(active, t)
		}
	}
	sortTemplates(active)

	return active, nil
}

func (r *FileRepository) findTemplate(templateId string) (measure.Template, error) {
	templates, err := loadCollection[measure.Template](r.disk, templatesFile)
	if err != nil {
		return measure.Template{}, err
	}

	for _, t := range templates {
		if t.Id == templateId {
			return t, nil
		}
	}
	return measure.Template{}, ErrTemplateNotFound
}

func (r *FileRepository) GetTemplate(ctx context.Context, templateId string) (measure.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.findTemplate(templateId)
}

func (r *FileRepository) PutTemplate(ctx context.Context, template measure.Template) (measure.Template, error) {
	if err := template.CheckStructure(); err != nil {
		return measure.Template{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	templates, err := loadCollection[measure.Template](r.disk, templatesFile)
	if err != nil {
		return measure.Template{}, err
	}

	units, err := loadUnits(r.disk, templates)
	if err != nil {
		return measure.Template{}, err
	}
	if err := shareUnits(&template, units); err != nil {
		return measure.Template{}, err
	}

	idx := -1
	for i, t := range templates {
		if template.Id != "" && t.Id == template.Id {
			idx = i
			break
		}
	}

	if idx >= 0 {
		prepareTemplate(&template, &templates[idx], time.Now())
		templates[idx] = template
	} else {
		prepareTemplate(&template, nil, time.Now())
		templates = append(templates, template)
	}

	if units.dirty {
		if err := saveCollection(r.disk, unitsFile, units.units); err != nil {
			return measure.Template{}, err
		}
	}
	if err := saveCollection(r.disk, templatesFile, templates); err != nil {
		return measure.Template{}, err
	}

	return template, nil
}

func (r *FileRepository) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]measure.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	measurements, err := loadCollection[measure.Measurement](r.disk, measurementsFile)
	if err != nil {
		return nil, err
	}

	matching := make([]measure.Measurement, 0, len(measurements))
	for _, m := range measurements {
		if filter.Matches(m) {
			matching = append(matching, m)
		}
	}
	sortMeasurements(matching)

	return matching, nil
}

func (r *FileRepository) GetMeasurement(ctx context.Context, measurementId string) (measure.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	measurements, err := loadCollection[measure.Measurement](r.disk, measurementsFile)
	if err != nil {
		return measure.Measurement{}, err
	}

	for _, m := range measurements {
		if m.Id == measurementId {
			return m, nil
		}
	}
	return measure.Measurement{}, ErrMeasurementNotFound
}

func (r *FileRepository) PutMeasurement(ctx context.Context, measurement measure.Measurement) (measure.Measurement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	template, err := r.findTemplate(measurement.TemplateId)
	if err != nil {
		return measure.Measurement{}, err
	}

	if err := checkValueNames(measurement.Values, template); err != nil {
		return measure.Measurement{}, err
	}

	measurements, err := loadCollection[measure.Measurement](r.disk, measurementsFile)
	if err != nil {
		return measure.Measurement{}, err
	}

	idx := -1
	for i, m := range measurements {
		if measurement.Id != "" && m.Id == measurement.Id {
			idx = i
			break
		}
	}

	if idx >= 0 {
		prepareMeasurement(&measurement, &measurements[idx], time.Now())
		measurements[idx] = measurement
	} else {
		prepareMeasurement(&measurement, nil, time.Now())
		measurements = append(measurements, measurement)
	}

	if err := saveCollection(r.disk, measurementsFile, measurements); err != nil {
		return measure.Measurement{}, err
	}

	return measurement, nil
}

func (r *FileRepository) Export(ctx context.Context) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates, err := loadCollection[measure.Template](r.disk, templatesFile)
	if err != nil {
		return Snapshot{}, err
	}
	measurements, err := loadCollection[measure.Measurement](r.disk, measurementsFile)
	if err != nil {
		return Snapshot{}, err
	}

	sortTemplates(templates)
	sortMeasurements(measurements)

	return Snapshot{Templates: templates, Measurements: measurements}, nil
}

func (r *FileRepository) Close() error {
	return nil
}
