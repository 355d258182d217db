package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/scenariosim/scenariosim/pkg/core"
)

// VehicleSource loads the vehicles a session starts from.
type VehicleSource interface {
	ListVehiclesByScenario(ctx context.Context, scenario string) ([]core.Vehicle, error)
}

// Publisher receives every tick snapshot.
type Publisher interface {
	Publish(core.Snapshot) int
	CloseScenario(scenario string)
}

// SessionObserver is notified when sessions start and stop.
type SessionObserver interface {
	SessionStarted(snap core.Snapshot)
	SessionStopped(stats SessionStats)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	TickInterval time.Duration
	Clock        clockwork.Clock
	Publisher    Publisher
	Observer     SessionObserver
	Logger       *slog.Logger
}

// Manager runs at most one engine per scenario name. Simulated positions are
// never written back to the store.
type Manager struct {
	source VehicleSource
	opts   ManagerOptions

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a Manager reading vehicles from source.
func NewManager(source VehicleSource, opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		source:  source,
		opts:    opts,
		engines: make(map[string]*Engine),
	}
}

// Start loads the scenario's vehicles and starts its engine. The store is
// read before the manager lock is taken so a slow fetch does not stall
// other scenarios.
func (m *Manager) Start(ctx context.Context, scenario string) (core.Snapshot, error) {
	if m.Running(scenario) {
		return core.Snapshot{}, fmt.Errorf("scenario %q: %w", scenario, ErrAlreadyRunning)
	}

	vehicles, err := m.source.ListVehiclesByScenario(ctx, scenario)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("failed to load vehicles for %q: %w", scenario, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.engines[scenario]
	if ok && e.State() == Running {
		return core.Snapshot{}, fmt.Errorf("scenario %q: %w", scenario, ErrAlreadyRunning)
	}
	if !ok {
		e, err = NewEngine(Options{
			Scenario:     scenario,
			TickInterval: m.opts.TickInterval,
			Clock:        m.opts.Clock,
			OnTick:       m.publish,
			Logger:       m.opts.Logger,
		})
		if err != nil {
			return core.Snapshot{}, err
		}
		m.engines[scenario] = e
	}

	// The engine publishes the tick-0 snapshot itself before its loop starts.
	snap, err := e.Start(vehicles)
	if err != nil {
		return core.Snapshot{}, err
	}
	if m.opts.Observer != nil {
		m.opts.Observer.SessionStarted(snap)
	}
	return snap, nil
}

// Stop stops the scenario's engine and closes its subscribers.
func (m *Manager) Stop(scenario string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(scenario)
}

func (m *Manager) stopLocked(scenario string) error {
	e, ok := m.engines[scenario]
	if !ok {
		return fmt.Errorf("scenario %q: %w", scenario, ErrNotRunning)
	}
	if err := e.Stop(); err != nil {
		return fmt.Errorf("scenario %q: %w", scenario, err)
	}
	if m.opts.Publisher != nil {
		m.opts.Publisher.CloseScenario(scenario)
	}
	if m.opts.Observer != nil {
		m.opts.Observer.SessionStopped(e.LastSession())
	}
	return nil
}

// Snapshot returns the running session's current state.
func (m *Manager) Snapshot(scenario string) (core.Snapshot, error) {
	m.mu.Lock()
	e, ok := m.engines[scenario]
	m.mu.Unlock()
	if !ok {
		return core.Snapshot{}, fmt.Errorf("scenario %q: %w", scenario, ErrNotRunning)
	}
	snap, running := e.Snapshot()
	if !running {
		return core.Snapshot{}, fmt.Errorf("scenario %q: %w", scenario, ErrNotRunning)
	}
	return snap, nil
}

// Running reports whether a session for scenario is active.
func (m *Manager) Running(scenario string) bool {
	m.mu.Lock()
	e, ok := m.engines[scenario]
	m.mu.Unlock()
	return ok && e.State() == Running
}

// Active returns the number of running sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.engines {
		if e.State() == Running {
			n++
		}
	}
	return n
}

// StopAll stops every running session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for scenario, e := range m.engines {
		if e.State() != Running {
			continue
		}
		if err := m.stopLocked(scenario); err != nil {
			m.opts.Logger.Error("Failed to stop simulation", "scenario", scenario, "error", err)
		}
	}
}

func (m *Manager) publish(snap core.Snapshot) {
	if m.opts.Publisher != nil {
		m.opts.Publisher.Publish(snap)
	}
}
