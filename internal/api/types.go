package api

import (
	"time"

	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/internal/model/convert"
	"github.com/scenariosim/scenariosim/pkg/core"
)

// Response messages, kept identical to the routes' historical text.
const (
	msgScenarioAdded       = "Scenario added successfully"
	msgScenarioUpdated     = "Scenario updated successfully"
	msgScenarioDeleted     = "Scenario deleted successfully"
	msgAllScenariosDeleted = "All scenarios deleted successfully"
	msgVehicleAdded        = "Vehicle added successfully"
	msgVehicleUpdated      = "Vehicle updated successfully"
	msgVehicleDeleted      = "Vehicle deleted successfully"
	msgSimulationStopped   = "Simulation stopped successfully"

	errAddScenario     = "Error adding scenario. Please try again later."
	errUpdateScenario  = "Error updating scenario. Please try again later."
	errFetchScenarios  = "Error fetching scenarios. Please try again later."
	errDeleteAll       = "Error deleting all scenarios. Please try again later."
	errDeleteScenario  = "Error deleting scenario. Please try again later."
	errAddVehicle      = "Error adding vehicle. Please try again later."
	errFetchVehicles   = "Error fetching vehicles. Please try again later."
	errUpdateVehicle   = "Error updating vehicle"
	errDeleteVehicle   = "Error deleting vehicle"
	errStartSimulation = "Error starting simulation"
	errStopSimulation  = "Error stopping simulation"
	errFetchSimulation = "Error fetching simulation"
)

// MessageResponse is the body of a 201 response.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateScenarioRequest is the body of POST /api/scenarios.
type CreateScenarioRequest struct {
	Name string   `json:"name"`
	Time *float64 `json:"time"`
}

// UpdateScenarioRequest is the body of PUT /api/scenarios/:id.
type UpdateScenarioRequest struct {
	Name     string  `json:"name"`
	Time     float64 `json:"time"`
	Vehicles int     `json:"vehicles"`
}

// CreateVehicleRequest is the body of POST /api/vehicles.
type CreateVehicleRequest struct {
	Scenario    string   `json:"scenario"`
	VehicleName string   `json:"vehicleName"`
	Speed       *float64 `json:"speed"`
	PositionX   *float64 `json:"positionX"`
	PositionY   *float64 `json:"positionY"`
	Direction   string   `json:"direction"`
}

// UpdateVehicleRequest is the body of PUT /api/vehicles/:id.
type UpdateVehicleRequest struct {
	VehicleName string  `json:"vehicle_name"`
	PositionX   float64 `json:"position_x"`
	PositionY   float64 `json:"position_y"`
	Speed       float64 `json:"speed"`
	Direction   string  `json:"direction"`
}

// SimVehicle is a vehicle in a snapshot: the stored row plus its display color.
type SimVehicle struct {
	model.Vehicle
	Color string `json:"color"`
}

// Snapshot is the JSON form of a simulation tick.
type Snapshot struct {
	SessionID string       `json:"sessionId"`
	Scenario  string       `json:"scenario"`
	Tick      uint64       `json:"tick"`
	At        time.Time    `json:"at"`
	Vehicles  []SimVehicle `json:"vehicles"`
}

func (r CreateScenarioRequest) input() core.ScenarioInput {
	return core.ScenarioInput{Name: r.Name, Time: r.Time}
}

func (r UpdateScenarioRequest) update() core.ScenarioUpdate {
	return core.ScenarioUpdate{Name: r.Name, Time: r.Time, Vehicles: r.Vehicles}
}

func (r CreateVehicleRequest) input() core.VehicleInput {
	return core.VehicleInput{
		Scenario:  r.Scenario,
		Name:      r.VehicleName,
		Speed:     r.Speed,
		PositionX: r.PositionX,
		PositionY: r.PositionY,
		Direction: core.Direction(r.Direction),
	}
}

func (r UpdateVehicleRequest) update() core.VehicleUpdate {
	return core.VehicleUpdate{
		Name:      r.VehicleName,
		PositionX: r.PositionX,
		PositionY: r.PositionY,
		Speed:     r.Speed,
		Direction: core.Direction(r.Direction),
	}
}

func scenariosJSON(in []core.Scenario) []model.Scenario {
	out := make([]model.Scenario, len(in))
	for i, s := range in {
		out[i] = convert.CoreToScenario(s)
	}
	return out
}

func vehiclesJSON(in []core.Vehicle) []model.Vehicle {
	out := make([]model.Vehicle, len(in))
	for i, v := range in {
		out[i] = convert.CoreToVehicle(v)
	}
	return out
}

// SnapshotJSON converts a core snapshot to its wire form.
func SnapshotJSON(s core.Snapshot) Snapshot {
	vehicles := make([]SimVehicle, len(s.Vehicles))
	for i, v := range s.Vehicles {
		vehicles[i] = SimVehicle{Vehicle: convert.CoreToVehicle(v.Vehicle), Color: v.Color}
	}
	return Snapshot{
		SessionID: s.SessionID,
		Scenario:  s.Scenario,
		Tick:      s.Tick,
		At:        s.At,
		Vehicles:  vehicles,
	}
}
