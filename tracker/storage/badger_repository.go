package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/fuszti/measure/tracker/measure"
)

const (
	templatePrefix    = "template/"
	measurementPrefix = "measurement/"
	unitPrefix        = "unit/"
)

var errUnitNotFound = errors.New("unit not found")

// BadgerRepository stores templates and measurements as JSON records in an
// embedded badger database, keyed by template/<id> and measurement/<id>.
// Units are kept under unit/<name>.
type BadgerRepository struct {
	db *badger.DB
}

func NewBadgerRepository(dir string, inMemory bool) (*BadgerRepository, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, fmt.Errorf("error creating badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		slog.Error("error opening badger database", "dir", dir, "error", err)
		return nil, storeError(fmt.Errorf("error opening badger database: %w", err))
	}

	return &BadgerRepository{db: db}, nil
}

func getRecord[T any](txn *badger.Txn, key string, notFound error) (T, error) {
	var record T

	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return record, notFound
		}
		slog.Error("badger error in get", "key", key, "error", err)
		return record, storeError(err)
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		slog.Error("error decoding badger record", "key", key, "error", err)
		return record, storeError(err)
	}

	return record, nil
}

func setRecord(txn *badger.Txn, key string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return storeError(fmt.Errorf("error encoding record %v: %w", key, err))
	}
	if err := txn.Set([]byte(key), data); err != nil {
		slog.Error("badger error in set", "key", key, "error", err)
		return storeError(err)
	}
	return nil
}

func scanRecords[T any](txn *badger.Txn, prefix string, keep func(T) bool) ([]T, error) {
	records := make([]T, 0)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		var record T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
		if err != nil {
			slog.Error("error decoding badger record", "key", string(it.Item().Key()), "error", err)
			return nil, storeError(err)
		}
		if keep == nil || keep(record) {
			records = append(records, record)
		}
	}

	return records, nil
}

type badgerUnits struct {
	txn *badger.Txn
}

func (u badgerUnits) lookupUnit(name string) (measure.Unit, bool, error) {
	unit, err := getRecord[measure.Unit](u.txn, unitPrefix+name, errUnitNotFound)
	if errors.Is(err, errUnitNotFound) {
		return measure.Unit{}, false, nil
	}
	if err != nil {
		return measure.Unit{}, false, err
	}
	return unit, true, nil
}

func (u badgerUnits) registerUnit(unit measure.Unit) error {
	return setRecord(u.txn, unitPrefix+unit.Name, unit)
}

func (r *BadgerRepository) ListTemplates(ctx context.Context) ([]measure.Template, error) {
	var templates []measure.Template
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		templates, err = scanRecords(txn, templatePrefix, func(t measure.Template) bool { return t.IsActive })
		return err
	})
	if err != nil {
		return nil, err
	}

	sortTemplates(templates)
	return templates, nil
}

func (r *BadgerRepository) GetTemplate(ctx context.Context, templateId string) (measure.Template, error) {
	var template measure.Template
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		template, err = getRecord[measure.Template](txn, templatePrefix+templateId, ErrTemplateNotFound)
		return err
	})
	return template, err
}

func (r *BadgerRepository) PutTemplate(ctx context.Context, template measure.Template) (measure.Template, error) {
	if err := template.CheckStructure(); err != nil {
		return measure.Template{}, err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if err := shareUnits(&template, badgerUnits{txn: txn}); err != nil {
			return err
		}

		if template.Id != "" {
			stored, err := getRecord[measure.Template](txn, templatePrefix+template.Id, ErrTemplateNotFound)
			switch {
			case err == nil:
				prepareTemplate(&template, &stored, time.Now())
			case errors.Is(err, ErrTemplateNotFound):
				prepareTemplate(&template, nil, time.Now())
			default:
				return err
			}
		} else {
			prepareTemplate(&template, nil, time.Now())
		}

		return setRecord(txn, templatePrefix+template.Id, template)
	})
	if err != nil {
		return measure.Template{}, err
	}

	return template, nil
}

func (r *BadgerRepository) ListMeasurements(ctx context.Context, filter MeasurementFilter) ([]measure.Measurement, error) {
	var measurements []measure.Measurement
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		measurements, err = scanRecords(txn, measurementPrefix, filter.Matches)
		return err
	})
	if err != nil {
		return nil, err
	}

	sortMeasurements(measurements)
	return measurements, nil
}

func (r *BadgerRepository) GetMeasurement(ctx context.Context, measurementId string) (measure.Measurement, error) {
	var measurement measure.Measurement
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		measurement, err = getRecord[measure.Measurement](txn, measurementPrefix+measurementId, ErrMeasurementNotFound)
		return err
	})
	return measurement, err
}

func (r *BadgerRepository) PutMeasurement(ctx context.Context, measurement measure.Measurement) (measure.Measurement, error) {
	err := r.db.Update(func(txn *badger.Txn) error {
		template, err := getRecord[measure.Template](txn, templatePrefix+measurement.TemplateId, ErrTemplateNotFound)
		if err != nil {
			return err
		}

		if err := checkValueNames(measurement.Values, template); err != nil {
			return err
		}

		if measurement.Id != "" {
			stored, err := getRecord[measure.Measurement](txn, measurementPrefix+measurement.Id, ErrMeasurementNotFound)
			switch {
			case err == nil:
				prepareMeasurement(&measurement, &stored, time.Now())
			case errors.Is(err, ErrMeasurementNotFound):
				prepareMeasurement(&measurement, nil, time.Now())
			default:
				return err
			}
		} else {
			prepareMeasurement(&measurement, nil, time.Now())
		}

		return setRecord(txn, measurementPrefix+measurement.Id, measurement)
	})
	if err != nil {
		return measure.Measurement{}, err
	}

	return measurement, nil
}

func (r *BadgerRepository) Export(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		snapshot.Templates, err = scanRecords[measure.Template](txn, templatePrefix, nil)
		if err != nil {
			return err
		}
		snapshot.Measurements, err = scanRecords[measure.Measurement](txn, measurementPrefix, nil)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}

	sortTemplates(snapshot.Templates)
	sortMeasurements(snapshot.Measurements)
	return snapshot, nil
}

func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
