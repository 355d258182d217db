// Package convert provides functions to convert GORM models to core models
package convert

import (
	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/pkg/core"
)

// ScenarioToCore converts a GORM Scenario to a core.Scenario.
// The stored vehicle count is carried as-is; callers overwrite it with the derived count.
func ScenarioToCore(s model.Scenario) core.Scenario {
	return core.Scenario{
		ID:       s.ID,
		Name:     s.Name,
		Time:     s.Time,
		Vehicles: s.VehicleCount,
	}
}

// ScenariosToCore converts a slice of GORM Scenarios, preserving order.
func ScenariosToCore(rows []model.Scenario) []core.Scenario {
	out := make([]core.Scenario, len(rows))
	for i, r := range rows {
		out[i] = ScenarioToCore(r)
	}
	return out
}

// VehicleToCore converts a GORM Vehicle to a core.Vehicle.
func VehicleToCore(v model.Vehicle) core.Vehicle {
	return core.Vehicle{
		ID:        v.ID,
		Scenario:  v.Scenario,
		Name:      v.VehicleName,
		Speed:     v.Speed,
		PositionX: v.PositionX,
		PositionY: v.PositionY,
		Direction: core.Direction(v.Direction),
	}
}

// VehiclesToCore converts a slice of GORM Vehicles, preserving order.
func VehiclesToCore(rows []model.Vehicle) []core.Vehicle {
	out := make([]core.Vehicle, len(rows))
	for i, r := range rows {
		out[i] = VehicleToCore(r)
	}
	return out
}
