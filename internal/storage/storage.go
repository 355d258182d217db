// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/scenariosim/scenariosim/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
//
// Every write touches a single row and commits on its own. Updates and deletes
// that match no row return a core.NotFoundError; driver failures are wrapped in
// core.StoreUnavailableError.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Scenarios
	CreateScenario(ctx context.Context, in core.ScenarioInput) (core.Scenario, error)
	GetScenario(ctx context.Context, id uint) (core.Scenario, error)
	ListScenarios(ctx context.Context) ([]core.Scenario, error)
	UpdateScenario(ctx context.Context, id uint, u core.ScenarioUpdate) error
	DeleteScenario(ctx context.Context, id uint) error
	DeleteAllScenarios(ctx context.Context) error

	// Vehicles
	CreateVehicle(ctx context.Context, in core.VehicleInput) (core.Vehicle, error)
	ListVehiclesByScenario(ctx context.Context, scenario string) ([]core.Vehicle, error)
	CountVehiclesByScenario(ctx context.Context, scenarios ...string) (map[string]int, error)
	UpdateVehicle(ctx context.Context, id uint, u core.VehicleUpdate) error
	DeleteVehicle(ctx context.Context, id uint) error
}

// Dumpable is an optional interface for backends that can snapshot themselves to a file.
type Dumpable interface {
	Dump(path string) error
}
