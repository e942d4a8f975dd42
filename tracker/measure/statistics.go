package measure

import "math"

// Stats summarizes the values recorded for one value definition. Min, Max and
// Avg are nil, and therefore omitted from the JSON, when Count is zero.
type Stats struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Avg   *float64 `json:"avg,omitempty"`
	Unit  string   `json:"unit"`
}

// ComputeStatistics aggregates the values of the given measurements for every
// value definition of the template. The measurements are expected to be
// filtered by the caller already.
func ComputeStatistics(template Template, measurements []Measurement) map[string]Stats {
	stats := make(map[string]Stats, len(template.ValueDefinitions))

	for _, def := range template.ValueDefinitions {
		s := Stats{Unit: def.Unit.Name}

		var sum, min, max float64
		var values []float64
		for _, m := range measurements {
			for _, v := range m.Values {
				if v.DefinitionName != def.Name {
					continue
				}
				if s.Count == 0 || v.Value < min {
					min = v.Value
				}
				if s.Count == 0 || v.Value > max {
					max = v.Value
				}
				sum += v.Value
				values = append(values, v.Value)
				s.Count++
			}
		}

		if s.Count > 0 {
			avg := mean(sum, values)
			s.Min, s.Max, s.Avg = &min, &max, &avg
		}

		stats[def.Name] = s
	}

	return stats
}

// mean divides sum by the number of values. When the sum has overflowed the
// values are scaled down before they are added.
func mean(sum float64, values []float64) float64 {
	n := float64(len(values))
	if !math.IsInf(sum, 0) {
		return sum / n
	}

	avg := 0.0
	for _, v := range values {
		avg += v / n
	}
	return avg
}
