package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fuszti/measure/tracker/measure"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoFactory func(t *testing.T) storage.Repository

func backends() map[string]repoFactory {
	return map[string]repoFactory{
		"sql": func(t *testing.T) storage.Repository {
			db, err := storage.OpenDatabase("file::memory:")
			require.NoError(t, err)
			return storage.NewSqlRepository(db)
		},
		"file": func(t *testing.T) storage.Repository {
			return storage.NewFileRepository(storage.NewLocalDisk(t.TempDir()))
		},
		"badger": func(t *testing.T) storage.Repository {
			repo, err := storage.NewBadgerRepository("", true)
			require.NoError(t, err)
			return repo
		},
	}
}

func forEachBackend(t *testing.T, test func(t *testing.T, repo storage.Repository)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			repo := factory(t)
			defer repo.Close()
			test(t, repo)
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}

var kg = measure.Unit{Name: "kg", DisplayName: "Kilograms"}

func weightTemplate(id string) measure.Template {
	return measure.Template{
		Id:   id,
		Name: "Weight",
		ValueDefinitions: []measure.ValueDefinition{
			{Name: "weight", DisplayName: "Weight", Unit: kg, MinValue: ptr(0.0)},
		},
		IsActive: true,
	}
}

func bpTemplate(id string) measure.Template {
	mmHg := measure.Unit{Name: "mmHg", DisplayName: "Millimeters of mercury", Description: ptr("pressure")}
	return measure.Template{
		Id:          id,
		Name:        "Blood Pressure",
		Description: ptr("resting blood pressure"),
		ValueDefinitions: []measure.ValueDefinition{
			{Name: "systolic", DisplayName: "Systolic", Unit: mmHg, MinValue: ptr(60.0), MaxValue: ptr(250.0)},
			{Name: "diastolic", DisplayName: "Diastolic", Unit: mmHg, MinValue: ptr(30.0), MaxValue: ptr(150.0)},
		},
		IsActive: true,
		OwnerId:  ptr("admin"),
	}
}

func weighIn(id string, value float64, at time.Time) measure.Measurement {
	return measure.Measurement{
		Id:         id,
		TemplateId: "weight",
		Values:     []measure.MeasurementValue{{DefinitionName: "weight", Value: value}},
		MeasuredAt: at,
		UserId:     "admin",
	}
}

func TestPutAndGetTemplate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		stored, err := repo.PutTemplate(ctx, bpTemplate("bp"))
		require.NoError(t, err)
		assert.Equal(t, "bp", stored.Id)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.Nil(t, stored.UpdatedAt)

		fetched, err := repo.GetTemplate(ctx, "bp")
		require.NoError(t, err)
		assert.Equal(t, stored, fetched)
		assert.Equal(t, []string{"systolic", "diastolic"}, fetched.DefinitionNames())
		assert.Equal(t, "pressure", *fetched.ValueDefinitions[0].Unit.Description)
		assert.Equal(t, 250.0, *fetched.ValueDefinitions[0].MaxValue)
	})
}

func TestPutTemplateAssignsId(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		stored, err := repo.PutTemplate(ctx, weightTemplate(""))
		require.NoError(t, err)
		assert.NotEmpty(t, stored.Id)

		_, err = repo.GetTemplate(ctx, stored.Id)
		assert.NoError(t, err)
	})
}

func TestGetTemplateNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		_, err := repo.GetTemplate(context.Background(), "non-existent-id")
		assert.ErrorIs(t, err, storage.ErrTemplateNotFound)
	})
}

func TestPutTemplateRejectsInvalidStructure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		template := weightTemplate("weight")
		template.ValueDefinitions = append(template.ValueDefinitions, template.ValueDefinitions[0])

		_, err := repo.PutTemplate(context.Background(), template)
		assert.ErrorIs(t, err, measure.ErrInvalidTemplate)
	})
}

func TestPutTemplateReplacesDefinitions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		first, err := repo.PutTemplate(ctx, bpTemplate("bp"))
		require.NoError(t, err)

		replacement := bpTemplate("bp")
		replacement.Name = "Pulse"
		replacement.Description = nil
		replacement.ValueDefinitions = []measure.ValueDefinition{
			{Name: "pulse", DisplayName: "Pulse", Unit: measure.Unit{Name: "bpm", DisplayName: "Beats per minute"}},
		}

		second, err := repo.PutTemplate(ctx, replacement)
		require.NoError(t, err)

		fetched, err := repo.GetTemplate(ctx, "bp")
		require.NoError(t, err)
		assert.Equal(t, "Pulse", fetched.Name)
		assert.Nil(t, fetched.Description)
		assert.Equal(t, []string{"pulse"}, fetched.DefinitionNames())
		assert.Equal(t, first.CreatedAt, fetched.CreatedAt)
		require.NotNil(t, fetched.UpdatedAt)
		assert.Equal(t, second.UpdatedAt, fetched.UpdatedAt)

		templates, err := repo.ListTemplates(ctx)
		require.NoError(t, err)
		assert.Len(t, templates, 1)
	})
}

func TestReplaceTemplateKeepsMeasurements(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("weight"))
		require.NoError(t, err)
		_, err = repo.PutMeasurement(ctx, weighIn("m1", 70, time.Now()))
		require.NoError(t, err)

		template := weightTemplate("weight")
		template.ValueDefinitions[0].DisplayName = "Body weight"
		_, err = repo.PutTemplate(ctx, template)
		require.NoError(t, err)

		m, err := repo.GetMeasurement(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, []measure.MeasurementValue{{DefinitionName: "weight", Value: 70}}, m.Values)

		_, err = repo.PutMeasurement(ctx, weighIn("m2", 71, time.Now()))
		assert.NoError(t, err)
	})
}

func TestListTemplatesHidesInactive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("weight"))
		require.NoError(t, err)

		inactive := bpTemplate("bp")
		inactive.IsActive = false
		_, err = repo.PutTemplate(ctx, inactive)
		require.NoError(t, err)

		templates, err := repo.ListTemplates(ctx)
		require.NoError(t, err)
		require.Len(t, templates, 1)
		assert.Equal(t, "weight", templates[0].Id)

		fetched, err := repo.GetTemplate(ctx, "bp")
		require.NoError(t, err)
		assert.False(t, fetched.IsActive)

		snapshot, err := repo.Export(ctx)
		require.NoError(t, err)
		assert.Len(t, snapshot.Templates, 2)
	})
}

func TestListTemplatesOrderedByCreation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		for i, id := range []string{"c", "a", "b"} {
			template := weightTemplate(id)
			template.CreatedAt = base.Add(time.Duration(i) * time.Hour)
			_, err := repo.PutTemplate(ctx, template)
			require.NoError(t, err)
		}

		templates, err := repo.ListTemplates(ctx)
		require.NoError(t, err)
		require.Len(t, templates, 3)
		assert.Equal(t, "c", templates[0].Id)
		assert.Equal(t, "a", templates[1].Id)
		assert.Equal(t, "b", templates[2].Id)
	})
}

func TestPutMeasurement(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("weight"))
		require.NoError(t, err)

		measuredAt := time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC)
		m := weighIn("", 70.5, measuredAt)
		m.Notes = ptr("after breakfast")

		stored, err := repo.PutMeasurement(ctx, m)
		require.NoError(t, err)
		assert.NotEmpty(t, stored.Id)
		assert.False(t, stored.RecordedAt.IsZero())
		assert.Equal(t, measuredAt, stored.MeasuredAt)

		fetched, err := repo.GetMeasurement(ctx, stored.Id)
		require.NoError(t, err)
		assert.Equal(t, stored, fetched)
		assert.Equal(t, "after breakfast", *fetched.Notes)
	})
}

func TestPutMeasurementUnknownTemplate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		_, err := repo.PutMeasurement(context.Background(), weighIn("m1", 70, time.Now()))
		assert.ErrorIs(t, err, storage.ErrTemplateNotFound)
	})
}

func TestPutMeasurementUnknownValueDefinition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("weight"))
		require.NoError(t, err)

		m := weighIn("m1", 70, time.Now())
		m.Values = append(m.Values, measure.MeasurementValue{DefinitionName: "height", Value: 180})

		_, err = repo.PutMeasurement(ctx, m)
		require.ErrorIs(t, err, storage.ErrUnknownValueDefinition)

		var unknown *storage.UnknownValueDefinitionError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "height", unknown.Name)
		assert.Equal(t, "weight", unknown.TemplateId)

		_, err = repo.GetMeasurement(ctx, "m1")
		assert.ErrorIs(t, err, storage.ErrMeasurementNotFound)
	})
}

func TestPutMeasurementReplacesValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, bpTemplate("bp"))
		require.NoError(t, err)

		first, err := repo.PutMeasurement(ctx, measure.Measurement{
			Id:         "m1",
			TemplateId: "bp",
			Values: []measure.MeasurementValue{
				{DefinitionName: "systolic", Value: 120},
				{DefinitionName: "diastolic", Value: 80},
			},
			UserId: "admin",
		})
		require.NoError(t, err)

		_, err = repo.PutMeasurement(ctx, measure.Measurement{
			Id:         "m1",
			TemplateId: "bp",
			Values:     []measure.MeasurementValue{{DefinitionName: "systolic", Value: 130}},
			MeasuredAt: first.MeasuredAt,
			UserId:     "admin",
		})
		require.NoError(t, err)

		fetched, err := repo.GetMeasurement(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, []measure.MeasurementValue{{DefinitionName: "systolic", Value: 130}}, fetched.Values)
		assert.Equal(t, first.RecordedAt, fetched.RecordedAt)

		all, err := repo.ListMeasurements(ctx, storage.MeasurementFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestGetMeasurementNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		_, err := repo.GetMeasurement(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrMeasurementNotFound)
	})
}

func TestListMeasurementsFilter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("weight"))
		require.NoError(t, err)
		_, err = repo.PutTemplate(ctx, bpTemplate("bp"))
		require.NoError(t, err)

		day := func(d int) time.Time { return time.Date(2024, 1, d, 8, 0, 0, 0, time.UTC) }

		for i, d := range []int{1, 2, 3, 4} {
			_, err := repo.PutMeasurement(ctx, weighIn(string(rune('a'+i)), float64(70+i), day(d)))
			require.NoError(t, err)
		}
		_, err = repo.PutMeasurement(ctx, measure.Measurement{
			Id:         "bp1",
			TemplateId: "bp",
			Values: []measure.MeasurementValue{
				{DefinitionName: "systolic", Value: 120},
				{DefinitionName: "diastolic", Value: 80},
			},
			MeasuredAt: day(2),
			UserId:     "admin",
		})
		require.NoError(t, err)

		all, err := repo.ListMeasurements(ctx, storage.MeasurementFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 5)

		ids := func(ms []measure.Measurement) []string {
			out := make([]string, 0, len(ms))
			for _, m := range ms {
				out = append(out, m.Id)
			}
			return out
		}

		weights, err := repo.ListMeasurements(ctx, storage.MeasurementFilter{TemplateId: "weight"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b", "a"}, ids(weights))

		start, end := day(2), day(3)
		ranged, err := repo.ListMeasurements(ctx, storage.MeasurementFilter{TemplateId: "weight", Start: &start, End: &end})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, ids(ranged))

		sinceThird, err := repo.ListMeasurements(ctx, storage.MeasurementFilter{Start: ptr(day(3))})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c"}, ids(sinceThird))

		untilSecond, err := repo.ListMeasurements(ctx, storage.MeasurementFilter{End: ptr(day(2))})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "bp1", "a"}, ids(untilSecond))
	})
}

func TestExport(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("weight"))
		require.NoError(t, err)
		_, err = repo.PutMeasurement(ctx, weighIn("m1", 70, time.Now()))
		require.NoError(t, err)

		snapshot, err := repo.Export(ctx)
		require.NoError(t, err)
		require.Len(t, snapshot.Templates, 1)
		require.Len(t, snapshot.Measurements, 1)
		assert.Equal(t, "weight", snapshot.Templates[0].Id)
		assert.Equal(t, "m1", snapshot.Measurements[0].Id)
	})
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := storage.Open(storage.Config{Backend: "memcached"})
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)
}

func TestOpenFileBackend(t *testing.T) {
	dir := t.TempDir()
	repo, err := storage.Open(storage.Config{Backend: storage.FileBackend, DataDir: dir})
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.PutTemplate(context.Background(), weightTemplate("weight"))
	require.NoError(t, err)

	reopened := storage.NewFileRepository(storage.NewLocalDisk(dir))
	template, err := reopened.GetTemplate(context.Background(), "weight")
	require.NoError(t, err)
	assert.Equal(t, "Weight", template.Name)
}

func TestUnitsAreSharedByName(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		_, err := repo.PutTemplate(ctx, weightTemplate("a"))
		require.NoError(t, err)

		other := weightTemplate("b")
		other.ValueDefinitions[0].Unit = measure.Unit{Name: "kg", DisplayName: "KILO", Description: ptr("renamed")}
		stored, err := repo.PutTemplate(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, kg, stored.ValueDefinitions[0].Unit)
		assert.Equal(t, "KILO", other.ValueDefinitions[0].Unit.DisplayName)

		fetched, err := repo.GetTemplate(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, kg, fetched.ValueDefinitions[0].Unit)

		// replacing the only template that used a unit does not change the unit
		replacement := weightTemplate("a")
		replacement.ValueDefinitions[0].Unit = measure.Unit{Name: "kg", DisplayName: "Other"}
		stored, err = repo.PutTemplate(ctx, replacement)
		require.NoError(t, err)
		assert.Equal(t, kg, stored.ValueDefinitions[0].Unit)

		pressure := bpTemplate("bp")
		pressure.ValueDefinitions[1].Unit.DisplayName = "mm Hg"
		stored, err = repo.PutTemplate(ctx, pressure)
		require.NoError(t, err)
		assert.Equal(t, stored.ValueDefinitions[0].Unit, stored.ValueDefinitions[1].Unit)
		assert.Equal(t, "Millimeters of mercury", stored.ValueDefinitions[1].Unit.DisplayName)
	})
}

func TestLongIdentifiersAndNames(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo storage.Repository) {
		ctx := context.Background()

		id := strings.Repeat("t", 64)
		template := weightTemplate(id)
		template.Name = strings.Repeat("Weight ", 50)
		template.ValueDefinitions[0].Name = strings.Repeat("w", 150)
		template.ValueDefinitions[0].Unit = measure.Unit{Name: strings.Repeat("u", 150), DisplayName: strings.Repeat("U", 150)}
		template.OwnerId = ptr(strings.Repeat("o", 150))

		stored, err := repo.PutTemplate(ctx, template)
		require.NoError(t, err)
		assert.Equal(t, id, stored.Id)
		assert.Equal(t, template.Name, stored.Name)

		measurement := measure.Measurement{
			Id:         strings.Repeat("m", 64),
			TemplateId: id,
			Values:     []measure.MeasurementValue{{DefinitionName: template.ValueDefinitions[0].Name, Value: 1}},
			UserId:     strings.Repeat("a", 150),
		}
		_, err = repo.PutMeasurement(ctx, measurement)
		require.NoError(t, err)

		fetched, err := repo.GetMeasurement(ctx, measurement.Id)
		require.NoError(t, err)
		assert.Equal(t, measurement.UserId, fetched.UserId)
		assert.Equal(t, measurement.Values, fetched.Values)
	})
}
