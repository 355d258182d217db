// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/scenariosim/scenariosim/pkg/core"
)

// Backend keeps scenarios and vehicles in maps. Nothing survives Close.
type Backend struct {
	scenarios map[uint]core.Scenario // Vehicles field holds the stored, untrusted count
	vehicles  map[uint]core.Vehicle

	scenarioSeq uint
	vehicleSeq  uint
	mu          sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		scenarios: make(map[uint]core.Scenario),
		vehicles:  make(map[uint]core.Vehicle),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenarios = make(map[uint]core.Scenario)
	b.vehicles = make(map[uint]core.Vehicle)
	return nil
}

// CreateScenario stores a new scenario with a stored vehicle count of zero.
func (b *Backend) CreateScenario(_ context.Context, in core.ScenarioInput) (core.Scenario, error) {
	if err := in.Validate(); err != nil {
		return core.Scenario{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.scenarioSeq++
	s := core.Scenario{ID: b.scenarioSeq, Name: in.Name, Time: *in.Time}
	b.scenarios[s.ID] = s
	return s, nil
}

// GetScenario returns one scenario with its derived vehicle count.
func (b *Backend) GetScenario(_ context.Context, id uint) (core.Scenario, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.scenarios[id]
	if !ok {
		return core.Scenario{}, &core.NotFoundError{Kind: "scenario", ID: id}
	}
	s.Vehicles = b.countLocked(s.Name)
	return s, nil
}

// ListScenarios returns every scenario in ID order with derived vehicle counts.
func (b *Backend) ListScenarios(_ context.Context) ([]core.Scenario, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Scenario, 0, len(b.scenarios))
	for _, s := range b.scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	counts := make(map[string]int)
	for _, v := range b.vehicles {
		counts[v.Scenario]++
	}
	return core.WithDerivedCounts(out, counts), nil
}

// UpdateScenario overwrites name, time and the stored vehicle count.
func (b *Backend) UpdateScenario(_ context.Context, id uint, u core.ScenarioUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.scenarios[id]; !ok {
		return &core.NotFoundError{Kind: "scenario", ID: id}
	}
	b.scenarios[id] = core.Scenario{ID: id, Name: u.Name, Time: u.Time, Vehicles: u.Vehicles}
	return nil
}

// DeleteScenario removes one scenario. Its vehicles are left in place.
func (b *Backend) DeleteScenario(_ context.Context, id uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.scenarios[id]; !ok {
		return &core.NotFoundError{Kind: "scenario", ID: id}
	}
	delete(b.scenarios, id)
	return nil
}

// DeleteAllScenarios removes every scenario. Vehicles are left in place.
func (b *Backend) DeleteAllScenarios(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.scenarios = make(map[uint]core.Scenario)
	return nil
}

// CreateVehicle stores a new vehicle. The scenario name is not checked.
func (b *Backend) CreateVehicle(_ context.Context, in core.VehicleInput) (core.Vehicle, error) {
	if err := in.Validate(); err != nil {
		return core.Vehicle{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.vehicleSeq++
	v := in.Vehicle()
	v.ID = b.vehicleSeq
	b.vehicles[v.ID] = v
	return v, nil
}

// ListVehiclesByScenario returns vehicles whose scenario name matches exactly, in ID order.
func (b *Backend) ListVehiclesByScenario(_ context.Context, scenario string) ([]core.Vehicle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Vehicle, 0)
	for _, v := range b.vehicles {
		if v.Scenario == scenario {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountVehiclesByScenario returns the live count for each requested name.
func (b *Backend) CountVehiclesByScenario(_ context.Context, scenarios ...string) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[string]int, len(scenarios))
	for _, name := range scenarios {
		counts[name] = b.countLocked(name)
	}
	return counts, nil
}

// UpdateVehicle overwrites the editable fields of a vehicle.
func (b *Backend) UpdateVehicle(_ context.Context, id uint, u core.VehicleUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.vehicles[id]
	if !ok {
		return &core.NotFoundError{Kind: "vehicle", ID: id}
	}
	v.Name = u.Name
	v.PositionX = u.PositionX
	v.PositionY = u.PositionY
	v.Speed = u.Speed
	v.Direction = u.Direction
	b.vehicles[id] = v
	return nil
}

// DeleteVehicle removes one vehicle.
func (b *Backend) DeleteVehicle(_ context.Context, id uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.vehicles[id]; !ok {
		return &core.NotFoundError{Kind: "vehicle", ID: id}
	}
	delete(b.vehicles, id)
	return nil
}

func (b *Backend) countLocked(scenario string) int {
	n := 0
	for _, v := range b.vehicles {
		if v.Scenario == scenario {
			n++
		}
	}
	return n
}
