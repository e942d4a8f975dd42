package tests

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/fuszti/measure/tracker/measure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightTemplate() map[string]interface{} {
	return map[string]interface{}{
		"name": "Weight",
		"value_definitions": []map[string]interface{}{
			{
				"name":         "weight",
				"display_name": "Weight",
				"unit":         map[string]interface{}{"name": "kg", "display_name": "Kilograms"},
				"min_value":    0,
				"max_value":    500,
			},
		},
	}
}

func bloodPressureTemplate() map[string]interface{} {
	unit := map[string]interface{}{"name": "mmHg", "display_name": "Millimeters of mercury"}
	return map[string]interface{}{
		"name": "Blood Pressure",
		"value_definitions": []map[string]interface{}{
			{"name": "systolic", "display_name": "Systolic", "unit": unit},
			{"name": "diastolic", "display_name": "Diastolic", "unit": unit},
		},
	}
}

func measurementBody(templateId string, measuredAt time.Time, values map[string]float64) map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(values))
	for name, value := range values {
		list = append(list, map[string]interface{}{"definition_name": name, "value": value})
	}
	body := map[string]interface{}{"template_id": templateId, "values": list}
	if !measuredAt.IsZero() {
		body["measured_at"] = measuredAt.Format(time.RFC3339Nano)
	}
	return body
}

func postMeasurement(c client, body map[string]interface{}) (measure.Measurement, error) {
	var res measure.Measurement
	err := c.Post("/measurements").Json(body).Do(&res)
	return res, err
}

func postTemplate(t *testing.T, c client, body map[string]interface{}) measure.Template {
	var res measure.Template
	require.NoError(t, c.Post("/templates").Json(body).Do(&res))
	return res
}

func TestWeightStatistics(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())
	require.NotEmpty(t, template.Id)
	assert.True(t, template.IsActive)

	now := time.Now()
	for i, weight := range []float64{70, 72, 74} {
		_, err := postMeasurement(c, measurementBody(template.Id, now.Add(-time.Duration(i+1)*24*time.Hour), map[string]float64{"weight": weight}))
		require.NoError(t, err)
	}

	var raw map[string]map[string]interface{}
	require.NoError(t, c.Get(fmt.Sprintf("/statistics/%v", template.Id)).Do(&raw))
	assert.Equal(t, map[string]map[string]interface{}{
		"weight": {"count": 3.0, "min": 70.0, "max": 74.0, "avg": 72.0, "unit": "kg"},
	}, raw)
}

func TestStatisticsWithoutMeasurements(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, bloodPressureTemplate())

	var raw map[string]map[string]interface{}
	require.NoError(t, c.Get(fmt.Sprintf("/statistics/%v", template.Id)).Do(&raw))
	assert.Equal(t, map[string]map[string]interface{}{
		"systolic":  {"count": 0.0, "unit": "mmHg"},
		"diastolic": {"count": 0.0, "unit": "mmHg"},
	}, raw)

	_, err = c.statistics("non-existent-id", nil)
	assert.Equal(t, http.StatusNotFound, statusCode(err))
}

func TestStatisticsDateRange(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())

	days := []time.Time{
		time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC),
	}
	for i, day := range days {
		_, err := postMeasurement(c, measurementBody(template.Id, day, map[string]float64{"weight": float64(80 + i)}))
		require.NoError(t, err)
	}

	stats, err := c.statistics(template.Id, url.Values{"start_date": {"2024-01-01"}, "end_date": {"2024-01-31"}})
	require.NoError(t, err)
	require.Equal(t, 2, stats["weight"].Count)
	assert.Equal(t, 80.0, *stats["weight"].Min)
	assert.Equal(t, 81.0, *stats["weight"].Max)

	stats, err = c.statistics(template.Id, url.Values{"end_date": {"2024-02-15"}})
	require.NoError(t, err)
	assert.Equal(t, 2, stats["weight"].Count)

	_, err = c.statistics(template.Id, url.Values{"start_date": {"yesterday"}})
	assert.Equal(t, http.StatusBadRequest, statusCode(err))
}

func TestTemplates(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	weight := postTemplate(t, c, weightTemplate())
	pressure := postTemplate(t, c, bloodPressureTemplate())

	got, err := c.getTemplate(pressure.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"systolic", "diastolic"}, got.DefinitionNames())
	assert.Equal(t, "mmHg", got.ValueDefinitions[1].Unit.Name)

	inactive := weightTemplate()
	inactive["name"] = "Old weight"
	inactive["is_active"] = false
	retired := postTemplate(t, c, inactive)

	templates, err := c.listTemplates()
	require.NoError(t, err)
	ids := make([]string, 0, len(templates))
	for _, template := range templates {
		ids = append(ids, template.Id)
	}
	assert.Equal(t, []string{weight.Id, pressure.Id}, ids)

	got, err = c.getTemplate(retired.Id)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = c.getTemplate("non-existent-id")
	assert.Equal(t, http.StatusNotFound, statusCode(err))
}

func TestTemplateReplace(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())

	replacement := bloodPressureTemplate()
	replacement["id"] = template.Id
	replaced := postTemplate(t, c, replacement)

	assert.Equal(t, template.Id, replaced.Id)
	assert.Equal(t, "Blood Pressure", replaced.Name)
	assert.Equal(t, []string{"systolic", "diastolic"}, replaced.DefinitionNames())
	assert.True(t, template.CreatedAt.Equal(replaced.CreatedAt))
	assert.NotNil(t, replaced.UpdatedAt)
}

func TestInvalidTemplates(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	unnamed := weightTemplate()
	unnamed["name"] = ""

	inverted := weightTemplate()
	inverted["value_definitions"] = []map[string]interface{}{
		{"name": "weight", "display_name": "Weight", "unit": map[string]interface{}{"name": "kg", "display_name": "kg"}, "min_value": 10, "max_value": 1},
	}

	duplicate := bloodPressureTemplate()
	duplicate["value_definitions"] = []map[string]interface{}{
		{"name": "systolic", "display_name": "Systolic", "unit": map[string]interface{}{"name": "mmHg", "display_name": "mmHg"}},
		{"name": "systolic", "display_name": "Systolic", "unit": map[string]interface{}{"name": "mmHg", "display_name": "mmHg"}},
	}

	for _, body := range []map[string]interface{}{unnamed, inverted, duplicate} {
		err := c.Post("/templates").Json(body).Do(nil)
		assert.Equal(t, http.StatusUnprocessableEntity, statusCode(err))
	}

	err = c.Post("/templates").Body(nil).Header("Content-Type", "application/json").Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(err))

	templates, err := c.listTemplates()
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestMeasurementUnknownTemplate(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	_, err = postMeasurement(c, measurementBody("non-existent-id", time.Time{}, nil))
	assert.Equal(t, http.StatusNotFound, statusCode(err))
}

func TestMeasurementMissingValues(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, bloodPressureTemplate())

	_, err = postMeasurement(c, measurementBody(template.Id, time.Time{}, map[string]float64{"systolic": 120}))
	require.Equal(t, http.StatusBadRequest, statusCode(err))
	assert.Equal(t, []interface{}{"diastolic"}, detail(err)["missing"])

	_, err = postMeasurement(c, measurementBody(template.Id, time.Time{}, nil))
	require.Equal(t, http.StatusBadRequest, statusCode(err))
	assert.Equal(t, []interface{}{"diastolic", "systolic"}, detail(err)["missing"])
}

func TestMeasurementExtraValues(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())

	_, err = postMeasurement(c, measurementBody(template.Id, time.Time{}, map[string]float64{"weight": 70, "height": 180}))
	assert.Equal(t, http.StatusUnprocessableEntity, statusCode(err))

	measurements, err := c.listMeasurements(url.Values{"template_id": {template.Id}})
	require.NoError(t, err)
	assert.Empty(t, measurements)
}

func TestMeasurementInactiveTemplate(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	body := weightTemplate()
	body["is_active"] = false
	template := postTemplate(t, c, body)

	_, err = postMeasurement(c, measurementBody(template.Id, time.Time{}, map[string]float64{"weight": 70}))
	assert.Equal(t, http.StatusUnprocessableEntity, statusCode(err))
}

func TestMeasurementOutOfRangeIsStored(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())

	stored, err := postMeasurement(c, measurementBody(template.Id, time.Time{}, map[string]float64{"weight": 900}))
	require.NoError(t, err)
	assert.Equal(t, 900.0, stored.Values[0].Value)
}

func TestMeasurements(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())

	stored, err := postMeasurement(c, measurementBody(template.Id, time.Time{}, map[string]float64{"weight": 70}))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Id)
	assert.Equal(t, adminUsername, stored.UserId)
	assert.True(t, stored.MeasuredAt.Equal(stored.RecordedAt))

	var got measure.Measurement
	require.NoError(t, c.Get(fmt.Sprintf("/measurements/%v", stored.Id)).Do(&got))
	assert.Equal(t, stored.Id, got.Id)
	assert.Equal(t, []measure.MeasurementValue{{DefinitionName: "weight", Value: 70}}, got.Values)

	err = c.Get("/measurements/non-existent-id").Do(nil)
	assert.Equal(t, http.StatusNotFound, statusCode(err))

	body := measurementBody(template.Id, time.Time{}, map[string]float64{"weight": 71})
	body["user_id"] = "someone"
	other, err := postMeasurement(c, body)
	require.NoError(t, err)
	assert.Equal(t, "someone", other.UserId)
}

func TestMeasurementDateFilter(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	weight := postTemplate(t, c, weightTemplate())
	pressure := postTemplate(t, c, bloodPressureTemplate())

	now := time.Now().UTC()
	recent, err := postMeasurement(c, measurementBody(weight.Id, now.Add(-2*24*time.Hour), map[string]float64{"weight": 70}))
	require.NoError(t, err)
	latest, err := postMeasurement(c, measurementBody(weight.Id, now.Add(-time.Hour), map[string]float64{"weight": 71}))
	require.NoError(t, err)
	_, err = postMeasurement(c, measurementBody(weight.Id, now.Add(-60*24*time.Hour), map[string]float64{"weight": 69}))
	require.NoError(t, err)
	_, err = postMeasurement(c, measurementBody(pressure.Id, now.Add(-time.Hour), map[string]float64{"systolic": 120, "diastolic": 80}))
	require.NoError(t, err)

	measurements, err := c.listMeasurements(url.Values{"template_id": {weight.Id}})
	require.NoError(t, err)
	require.Len(t, measurements, 2)
	assert.Equal(t, latest.Id, measurements[0].Id)
	assert.Equal(t, recent.Id, measurements[1].Id)

	measurements, err = c.listMeasurements(nil)
	require.NoError(t, err)
	assert.Len(t, measurements, 3)

	measurements, err = c.listMeasurements(url.Values{
		"template_id": {weight.Id},
		"start_date":  {now.Add(-90 * 24 * time.Hour).Format(time.RFC3339)},
	})
	require.NoError(t, err)
	assert.Len(t, measurements, 3)

	measurements, err = c.listMeasurements(url.Values{
		"template_id": {weight.Id},
		"start_date":  {now.Add(-3 * 24 * time.Hour).Format(time.RFC3339)},
		"end_date":    {now.Add(-24 * time.Hour).Format(time.RFC3339)},
	})
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	assert.Equal(t, recent.Id, measurements[0].Id)
}

func TestDateRangeUnencodedOffset(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())

	early, err := postMeasurement(c, measurementBody(template.Id, time.Date(2024, 1, 19, 23, 0, 0, 0, time.UTC), map[string]float64{"weight": 70}))
	require.NoError(t, err)
	_, err = postMeasurement(c, measurementBody(template.Id, time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC), map[string]float64{"weight": 71}))
	require.NoError(t, err)

	// a raw '+' in a query string arrives as a space
	endpoint := fmt.Sprintf("/measurements?template_id=%v&start_date=2024-01-19T00:00:00+02:00&end_date=2024-01-20T02:00:00+02:00", template.Id)
	var measurements []measure.Measurement
	require.NoError(t, c.Get(endpoint).Do(&measurements))
	require.Len(t, measurements, 1)
	assert.Equal(t, early.Id, measurements[0].Id)

	_, err = c.listMeasurements(url.Values{"start_date": {"19/01/2024"}})
	require.Equal(t, http.StatusBadRequest, statusCode(err))
	assert.Contains(t, detail(err)["detail"], "%2B")
}

func TestStatisticsLargeValues(t *testing.T) {
	env := setupTestEnv(t)
	c, err := env.adminClient()
	require.NoError(t, err)

	template := postTemplate(t, c, weightTemplate())
	for i := 0; i < 2; i++ {
		_, err := postMeasurement(c, measurementBody(template.Id, time.Now().Add(-time.Hour), map[string]float64{"weight": 1.7e308}))
		require.NoError(t, err)
	}

	stats, err := c.statistics(template.Id, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["weight"].Count)
	assert.Equal(t, 1.7e308, *stats["weight"].Avg)
}
