// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/pkg/core"
)

// CoreToScenario converts a core.Scenario to a GORM Scenario.
func CoreToScenario(s core.Scenario) model.Scenario {
	return model.Scenario{
		ID:           s.ID,
		Name:         s.Name,
		Time:         s.Time,
		VehicleCount: s.Vehicles,
	}
}

// CoreToVehicle converts a core.Vehicle to a GORM Vehicle.
func CoreToVehicle(v core.Vehicle) model.Vehicle {
	return model.Vehicle{
		ID:          v.ID,
		Scenario:    v.Scenario,
		VehicleName: v.Name,
		Speed:       v.Speed,
		PositionX:   v.PositionX,
		PositionY:   v.PositionY,
		Direction:   string(v.Direction),
	}
}

// VehicleUpdateColumns maps a core.VehicleUpdate to column values for an UPDATE.
// A map is used so that zero values are written rather than skipped by GORM.
func VehicleUpdateColumns(u core.VehicleUpdate) map[string]any {
	return map[string]any{
		"vehicle_name": u.Name,
		"position_x":   u.PositionX,
		"position_y":   u.PositionY,
		"speed":        u.Speed,
		"direction":    string(u.Direction),
	}
}

// ScenarioUpdateColumns maps a core.ScenarioUpdate to column values for an UPDATE.
func ScenarioUpdateColumns(u core.ScenarioUpdate) map[string]any {
	return map[string]any{
		"name":     u.Name,
		"time":     u.Time,
		"vehicles": u.Vehicles,
	}
}
