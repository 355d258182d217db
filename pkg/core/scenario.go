// pkg/core/scenario.go
package core

// Scenario is a named simulation session with a nominal duration.
//
// Vehicles is derived: backends fill it from the live vehicle set on every read.
// The value written through UpdateScenario is stored but never reported back.
type Scenario struct {
	ID       uint
	Name     string
	Time     float64 // seconds, metadata only
	Vehicles int
}

// ScenarioInput carries the fields for a new scenario.
type ScenarioInput struct {
	Name string
	Time *float64
}

// Validate returns a ValidationError naming the first missing field.
func (in ScenarioInput) Validate() error {
	if in.Name == "" {
		return &ValidationError{Field: "name"}
	}
	if in.Time == nil {
		return &ValidationError{Field: "time"}
	}
	return nil
}

// ScenarioUpdate holds the editable fields of a scenario.
type ScenarioUpdate struct {
	Name     string
	Time     float64
	Vehicles int
}

// CountByScenario tallies vehicles per scenario name.
func CountByScenario(vehicles []Vehicle) map[string]int {
	counts := make(map[string]int)
	for _, v := range vehicles {
		counts[v.Scenario]++
	}
	return counts
}

// WithDerivedCounts returns a copy of scenarios whose Vehicles field is replaced
// by the live count for the scenario's name.
func WithDerivedCounts(scenarios []Scenario, counts map[string]int) []Scenario {
	out := make([]Scenario, len(scenarios))
	for i, s := range scenarios {
		s.Vehicles = counts[s.Name]
		out[i] = s
	}
	return out
}
