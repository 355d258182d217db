// pkg/core/vehicle.go
package core

// Direction is the heading of a vehicle on the grid. Only the four axis-aligned
// values are meaningful; anything else is carried through untouched and never moves.
type Direction string

const (
	DirectionTowards   Direction = "towards"
	DirectionBackwards Direction = "backwards"
	DirectionUpwards   Direction = "upwards"
	DirectionDownwards Direction = "downwards"
)

// Directions lists the recognized directions in display order.
var Directions = []Direction{
	DirectionTowards,
	DirectionBackwards,
	DirectionUpwards,
	DirectionDownwards,
}

// Valid reports whether d is one of the four recognized directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionTowards, DirectionBackwards, DirectionUpwards, DirectionDownwards:
		return true
	}
	return false
}

// Vehicle is a point entity on the grid.
// Scenario holds the owning scenario's name, not its ID. It is a lookup key only:
// renaming or deleting the scenario leaves it dangling.
type Vehicle struct {
	ID        uint
	Scenario  string
	Name      string
	Speed     float64 // distance per tick
	PositionX float64
	PositionY float64
	Direction Direction
}

// VehicleInput carries the fields for a new vehicle. Numeric fields are pointers
// so that an explicit zero is distinguishable from an omitted value.
type VehicleInput struct {
	Scenario  string
	Name      string
	Speed     *float64
	PositionX *float64
	PositionY *float64
	Direction Direction
}

// Validate returns a ValidationError naming the first missing field.
func (in VehicleInput) Validate() error {
	switch {
	case in.Scenario == "":
		return &ValidationError{Field: "scenario"}
	case in.Name == "":
		return &ValidationError{Field: "vehicleName"}
	case in.Speed == nil:
		return &ValidationError{Field: "speed"}
	case in.PositionX == nil:
		return &ValidationError{Field: "positionX"}
	case in.PositionY == nil:
		return &ValidationError{Field: "positionY"}
	case in.Direction == "":
		return &ValidationError{Field: "direction"}
	}
	return nil
}

// Vehicle builds the vehicle described by a validated input. The ID is left zero.
func (in VehicleInput) Vehicle() Vehicle {
	v := Vehicle{
		Scenario:  in.Scenario,
		Name:      in.Name,
		Direction: in.Direction,
	}
	if in.Speed != nil {
		v.Speed = *in.Speed
	}
	if in.PositionX != nil {
		v.PositionX = *in.PositionX
	}
	if in.PositionY != nil {
		v.PositionY = *in.PositionY
	}
	return v
}

// VehicleUpdate holds the editable fields of a vehicle. The owning scenario
// cannot be changed through an update.
type VehicleUpdate struct {
	Name      string
	PositionX float64
	PositionY float64
	Speed     float64
	Direction Direction
}
