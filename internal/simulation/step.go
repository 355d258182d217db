package simulation

import (
	"math"

	"github.com/scenariosim/scenariosim/pkg/core"
)

// Step advances v by one tick: its speed along the axis and sign given by its
// direction, then saturated to the grid. Unknown directions and NaN speeds do
// not move the vehicle, but the result is still clamped.
func Step(v core.Vehicle) core.Vehicle {
	s := v.Speed
	if math.IsNaN(s) {
		s = 0
	}

	switch v.Direction {
	case core.DirectionTowards:
		v.PositionX += s
	case core.DirectionBackwards:
		v.PositionX -= s
	case core.DirectionUpwards:
		v.PositionY += s
	case core.DirectionDownwards:
		v.PositionY -= s
	}

	v.PositionX, v.PositionY = core.ClampPosition(v.PositionX, v.PositionY)
	return v
}

// Visible reports whether v may be drawn.
func Visible(v core.Vehicle) bool {
	return core.InBounds(v.PositionX, v.PositionY)
}
