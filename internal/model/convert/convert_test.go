package convert

import (
	"testing"

	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestScenarioToCore(t *testing.T) {
	row := model.Scenario{ID: 3, Name: "Rush hour", Time: 120, VehicleCount: 4}

	s := ScenarioToCore(row)

	assert.Equal(t, uint(3), s.ID)
	assert.Equal(t, "Rush hour", s.Name)
	assert.Equal(t, 120.0, s.Time)
	assert.Equal(t, 4, s.Vehicles)
}

func TestVehicleToCore(t *testing.T) {
	row := model.Vehicle{
		ID:          9,
		Scenario:    "Rush hour",
		VehicleName: "Bus",
		Speed:       12.5,
		PositionX:   40,
		PositionY:   80,
		Direction:   "upwards",
	}

	v := VehicleToCore(row)

	assert.Equal(t, uint(9), v.ID)
	assert.Equal(t, "Rush hour", v.Scenario)
	assert.Equal(t, "Bus", v.Name)
	assert.Equal(t, 12.5, v.Speed)
	assert.Equal(t, 40.0, v.PositionX)
	assert.Equal(t, 80.0, v.PositionY)
	assert.Equal(t, core.DirectionUpwards, v.Direction)
}

func TestVehicleRoundTrip(t *testing.T) {
	v := core.Vehicle{ID: 1, Scenario: "S", Name: "V", Speed: 3, PositionX: 1, PositionY: 2, Direction: core.DirectionBackwards}
	assert.Equal(t, v, VehicleToCore(CoreToVehicle(v)))
}

func TestVehiclesToCore_PreservesOrder(t *testing.T) {
	rows := []model.Vehicle{{ID: 2}, {ID: 1}, {ID: 5}}

	got := VehiclesToCore(rows)

	assert.Equal(t, []uint{2, 1, 5}, []uint{got[0].ID, got[1].ID, got[2].ID})
}

func TestVehicleUpdateColumns_KeepsZeroValues(t *testing.T) {
	cols := VehicleUpdateColumns(core.VehicleUpdate{Name: "V", Direction: core.DirectionTowards})

	assert.Equal(t, 0.0, cols["speed"])
	assert.Equal(t, 0.0, cols["position_x"])
	assert.Equal(t, 0.0, cols["position_y"])
	assert.Equal(t, "towards", cols["direction"])
}

func TestScenarioUpdateColumns(t *testing.T) {
	cols := ScenarioUpdateColumns(core.ScenarioUpdate{Name: "S2", Time: 30, Vehicles: 7})

	assert.Equal(t, map[string]any{"name": "S2", "time": 30.0, "vehicles": 7}, cols)
}
