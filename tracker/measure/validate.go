package measure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrMissingRequiredValues = errors.New("missing required values")

type MissingValuesError struct {
	Names []string
}

func (e *MissingValuesError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMissingRequiredValues, strings.Join(e.Names, ", "))
}

func (e *MissingValuesError) Is(target error) bool {
	return target == ErrMissingRequiredValues
}

// Validate checks that values supplies every value definition of the template.
// Names the template does not define are not rejected here, and neither are
// values outside the declared bounds.
func Validate(values []MeasurementValue, template Template) error {
	supplied := make(map[string]struct{}, len(values))
	for _, v := range values {
		supplied[v.DefinitionName] = struct{}{}
	}

	missing := make([]string, 0)
	for _, def := range template.ValueDefinitions {
		if _, ok := supplied[def.Name]; !ok {
			missing = append(missing, def.Name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingValuesError{Names: missing}
	}

	return nil
}

type RangeViolation struct {
	DefinitionName string
	Value          float64
	MinValue       *float64
	MaxValue       *float64
}

// OutOfRange lists the values lying outside the bounds declared by their
// definitions. Values without a matching definition are ignored.
func OutOfRange(values []MeasurementValue, template Template) []RangeViolation {
	violations := make([]RangeViolation, 0)
	for _, v := range values {
		def, ok := template.Definition(v.DefinitionName)
		if !ok {
			continue
		}
		if (def.MinValue != nil && v.Value < *def.MinValue) || (def.MaxValue != nil && v.Value > *def.MaxValue) {
			violations = append(violations, RangeViolation{
				DefinitionName: v.DefinitionName,
				Value:          v.Value,
				MinValue:       def.MinValue,
				MaxValue:       def.MaxValue,
			})
		}
	}
	return violations
}
