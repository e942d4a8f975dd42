package measure

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTemplate = errors.New("invalid template")

type Unit struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Description *string `json:"description,omitempty"`
}

// ValueDefinition is one numeric slot of a template. The bounds are inclusive
// and advisory, see OutOfRange.
type ValueDefinition struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description *string  `json:"description,omitempty"`
	Unit        Unit     `json:"unit"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
}

type Template struct {
	Id               string            `json:"id"`
	Name             string            `json:"name"`
	Description      *string           `json:"description,omitempty"`
	ValueDefinitions []ValueDefinition `json:"value_definitions"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        *time.Time        `json:"updated_at,omitempty"`
	IsActive         bool              `json:"is_active"`
	OwnerId          *string           `json:"owner_id,omitempty"`
}

// UnmarshalJSON treats a missing is_active as true so that newly submitted
// templates are active unless stated otherwise. Timestamps may omit the zone,
// see ParseTime.
func (t *Template) UnmarshalJSON(data []byte) error {
	type template Template
	raw := struct {
		*template
		IsActive  *bool   `json:"is_active"`
		CreatedAt *string `json:"created_at"`
		UpdatedAt *string `json:"updated_at"`
	}{template: (*template)(t)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.IsActive = raw.IsActive == nil || *raw.IsActive

	t.CreatedAt = time.Time{}
	if raw.CreatedAt != nil {
		created, err := ParseTime(*raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("invalid created_at: %w", err)
		}
		t.CreatedAt = created
	}

	t.UpdatedAt = nil
	if raw.UpdatedAt != nil {
		updated, err := ParseTime(*raw.UpdatedAt)
		if err != nil {
			return fmt.Errorf("invalid updated_at: %w", err)
		}
		t.UpdatedAt = &updated
	}

	return nil
}

func (t *Template) Definition(name string) (ValueDefinition, bool) {
	for _, def := range t.ValueDefinitions {
		if def.Name == name {
			return def, true
		}
	}
	return ValueDefinition{}, false
}

func (t *Template) DefinitionNames() []string {
	names := make([]string, 0, len(t.ValueDefinitions))
	for _, def := range t.ValueDefinitions {
		names = append(names, def.Name)
	}
	return names
}

// CheckStructure verifies the invariants a template must satisfy before it is
// stored: a name, non-empty and unique definition names, a unit on every
// definition, and min <= max where both bounds are given.
func (t *Template) CheckStructure() error {
	if t.Name == "" {
		return fmt.Errorf("%w: template name must not be empty", ErrInvalidTemplate)
	}

	seen := make(map[string]struct{}, len(t.ValueDefinitions))
	for i, def := range t.ValueDefinitions {
		if def.Name == "" {
			return fmt.Errorf("%w: value definition %d has an empty name", ErrInvalidTemplate, i)
		}
		if _, ok := seen[def.Name]; ok {
			return fmt.Errorf("%w: duplicate value definition '%v'", ErrInvalidTemplate, def.Name)
		}
		seen[def.Name] = struct{}{}

		if def.Unit.Name == "" {
			return fmt.Errorf("%w: value definition '%v' has no unit", ErrInvalidTemplate, def.Name)
		}
		if def.MinValue != nil && def.MaxValue != nil && *def.MinValue > *def.MaxValue {
			return fmt.Errorf("%w: value definition '%v' has min_value %v greater than max_value %v", ErrInvalidTemplate, def.Name, *def.MinValue, *def.MaxValue)
		}
	}

	return nil
}

// AssignDefaults fills in the server assigned fields of a template that is
// about to be stored for the first time.
func (t *Template) AssignDefaults(now time.Time) {
	if t.Id == "" {
		t.Id = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = NormalizeTime(t.CreatedAt)
	if t.UpdatedAt != nil {
		updated := NormalizeTime(*t.UpdatedAt)
		t.UpdatedAt = &updated
	}
}

type MeasurementValue struct {
	DefinitionName string  `json:"definition_name"`
	Value          float64 `json:"value"`
}

type Measurement struct {
	Id         string             `json:"id"`
	TemplateId string             `json:"template_id"`
	Values     []MeasurementValue `json:"values"`
	MeasuredAt time.Time          `json:"measured_at"`
	RecordedAt time.Time          `json:"recorded_at"`
	Notes      *string            `json:"notes,omitempty"`
	UserId     string             `json:"user_id"`
}

func (m *Measurement) UnmarshalJSON(data []byte) error {
	type measurement Measurement
	raw := struct {
		*measurement
		MeasuredAt *string `json:"measured_at"`
		RecordedAt *string `json:"recorded_at"`
	}{measurement: (*measurement)(m)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.MeasuredAt, m.RecordedAt = time.Time{}, time.Time{}
	if raw.MeasuredAt != nil {
		measured, err := ParseTime(*raw.MeasuredAt)
		if err != nil {
			return fmt.Errorf("invalid measured_at: %w", err)
		}
		m.MeasuredAt = measured
	}
	if raw.RecordedAt != nil {
		recorded, err := ParseTime(*raw.RecordedAt)
		if err != nil {
			return fmt.Errorf("invalid recorded_at: %w", err)
		}
		m.RecordedAt = recorded
	}

	return nil
}

// AssignDefaults fills in the id and recorded_at of a new submission. A
// measurement without measured_at is taken to have been measured when it was
// recorded.
func (m *Measurement) AssignDefaults(now time.Time) {
	if m.Id == "" {
		m.Id = uuid.New().String()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = now
	}
	if m.MeasuredAt.IsZero() {
		m.MeasuredAt = m.RecordedAt
	}
	m.RecordedAt = NormalizeTime(m.RecordedAt)
	m.MeasuredAt = NormalizeTime(m.MeasuredAt)
	if m.Values == nil {
		m.Values = []MeasurementValue{}
	}
}

// NormalizeTime converts t to the representation every store keeps: UTC with
// microsecond precision, which is the finest resolution postgres retains.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps as well as timestamps and dates
// without a zone, which are read as UTC.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp '%v'", value)
}
