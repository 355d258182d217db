package core

import "time"

// SimVehicle is a vehicle inside a running simulation, tagged with a display color.
type SimVehicle struct {
	Vehicle
	Color string
}

// Snapshot is the state of one simulation session after a tick.
// Tick 0 is the state captured at session start.
type Snapshot struct {
	SessionID string
	Scenario  string
	Tick      uint64
	At        time.Time
	Vehicles  []SimVehicle
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Vehicles = make([]SimVehicle, len(s.Vehicles))
	copy(out.Vehicles, s.Vehicles)
	return out
}
