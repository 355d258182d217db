// Package simulation advances scenario vehicles on the grid at a fixed tick rate.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/scenariosim/scenariosim/pkg/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTickInterval is the wall-clock period between ticks.
const DefaultTickInterval = time.Second

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")
)

// State of an engine.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Options configures an Engine.
type Options struct {
	Scenario     string
	TickInterval time.Duration
	Clock        clockwork.Clock
	// OnTick receives the tick-0 snapshot from Start, then every snapshot the
	// ticker loop produces, in tick order. It must not call back into the engine.
	OnTick func(core.Snapshot)
	// Color returns a display color; defaults to a random #RRGGBB.
	Color  func() string
	Logger *slog.Logger
}

// SessionStats summarizes a finished session.
type SessionStats struct {
	SessionID string
	Scenario  string
	Ticks     uint64
	Vehicles  int
	StartedAt time.Time
	Duration  time.Duration
}

// Engine steps one scenario's vehicles. The zero value is not usable; use NewEngine.
type Engine struct {
	opts Options

	// lifeMu serializes Start and Stop
	lifeMu sync.Mutex

	mu        sync.Mutex
	state     State
	sessionID string
	startedAt time.Time
	tick      uint64
	vehicles  []core.SimVehicle
	last      SessionStats

	ticker clockwork.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	ticks        metric.Int64Counter
	active       metric.Int64UpDownCounter
	tickDuration metric.Float64Histogram
	attrs        metric.MeasurementOption
}

// NewEngine creates a stopped engine.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewEngine(opts Options) (*Engine, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Color == nil {
		opts.Color = RandomColor
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("scenario", opts.Scenario)

	e := &Engine{
		opts:  opts,
		attrs: metric.WithAttributes(attribute.String("scenario", opts.Scenario)),
	}

	m := meter()
	var err error

	e.ticks, err = m.Int64Counter(
		"simulation.ticks",
		metric.WithDescription("Total simulation ticks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	e.active, err = m.Int64UpDownCounter(
		"simulation.sessions.active",
		metric.WithDescription("Currently running simulation sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	e.tickDuration, err = m.Float64Histogram(
		"simulation.tick.duration",
		metric.WithDescription("Time spent advancing all vehicles in one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	return e, nil
}

// RandomColor returns a random color as #RRGGBB.
func RandomColor() string {
	return fmt.Sprintf("#%06X", rand.IntN(0x1000000))
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start copies vehicles into a fresh working set, assigns colors and arms the ticker.
// The returned snapshot is tick 0; OnTick sees it before any later tick.
func (e *Engine) Start(vehicles []core.Vehicle) (core.Snapshot, error) {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	if e.state == Running {
		e.mu.Unlock()
		return core.Snapshot{}, ErrAlreadyRunning
	}

	working := make([]core.SimVehicle, len(vehicles))
	for i, v := range vehicles {
		working[i] = core.SimVehicle{Vehicle: v, Color: e.opts.Color()}
	}

	e.state = Running
	e.sessionID = uuid.NewString()
	e.startedAt = e.opts.Clock.Now()
	e.tick = 0
	e.vehicles = working
	e.done = make(chan struct{})
	e.ticker = e.opts.Clock.NewTicker(e.opts.TickInterval)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.active.Add(context.Background(), 1, e.attrs)
	e.opts.Logger.Info("Simulation started", "session", snap.SessionID, "vehicles", len(working), "interval", e.opts.TickInterval)

	if e.opts.OnTick != nil {
		e.opts.OnTick(snap)
	}

	e.wg.Add(1)
	go e.loop(e.ticker, e.done)

	return snap, nil
}

// Stop halts the ticker and waits for the loop to exit. No tick is applied and
// no OnTick call is made once Stop returns. The working copy is discarded.
func (e *Engine) Stop() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.state = Stopped
	close(e.done)
	e.ticker.Stop()
	e.mu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	e.last = SessionStats{
		SessionID: e.sessionID,
		Scenario:  e.opts.Scenario,
		Ticks:     e.tick,
		Vehicles:  len(e.vehicles),
		StartedAt: e.startedAt,
		Duration:  e.opts.Clock.Now().Sub(e.startedAt),
	}
	e.vehicles = nil
	e.ticker = nil
	stats := e.last
	e.mu.Unlock()

	e.active.Add(context.Background(), -1, e.attrs)
	e.opts.Logger.Info("Simulation stopped", "session", stats.SessionID, "ticks", stats.Ticks, "duration", stats.Duration)
	return nil
}

// LastSession returns the stats of the most recently stopped session.
func (e *Engine) LastSession() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Tick advances every vehicle exactly once and returns the resulting snapshot.
// The ticker loop calls it; tests and headless runs may call it directly.
func (e *Engine) Tick() (core.Snapshot, error) {
	start := time.Now()

	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return core.Snapshot{}, ErrNotRunning
	}
	for i := range e.vehicles {
		e.vehicles[i].Vehicle = e.safeStep(e.vehicles[i].Vehicle)
	}
	e.tick++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.ticks.Add(context.Background(), 1, e.attrs)
	e.tickDuration.Record(context.Background(), float64(time.Since(start).Microseconds())/1000, e.attrs)
	return snap, nil
}

// Snapshot returns the current working copy, or false when stopped.
func (e *Engine) Snapshot() (core.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return core.Snapshot{}, false
	}
	return e.snapshotLocked(), true
}

func (e *Engine) loop(t clockwork.Ticker, done <-chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-t.Chan():
			// Stop may have closed done while the tick was pending
			select {
			case <-done:
				return
			default:
			}
			snap, err := e.Tick()
			if err != nil {
				return
			}
			if e.opts.OnTick != nil {
				e.opts.OnTick(snap)
			}
		}
	}
}

// safeStep isolates one vehicle's failure from the rest of the tick.
func (e *Engine) safeStep(v core.Vehicle) (out core.Vehicle) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Error("Vehicle step failed", "vehicle", v.ID, "panic", r)
			out = v
		}
	}()
	return Step(v)
}

func (e *Engine) snapshotLocked() core.Snapshot {
	visible := make([]core.SimVehicle, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		if Visible(v.Vehicle) {
			visible = append(visible, v)
		}
	}
	return core.Snapshot{
		SessionID: e.sessionID,
		Scenario:  e.opts.Scenario,
		Tick:      e.tick,
		At:        e.opts.Clock.Now(),
		Vehicles:  visible,
	}
}
