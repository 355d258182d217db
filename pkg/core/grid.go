// pkg/core/grid.go
package core

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Grid bounds. Every vehicle at rest lies inside [MinX, MaxX] × [MinY, MaxY].
const (
	MinX = 0.0
	MaxX = 915.0
	MinY = 0.0
	MaxY = 375.0
)

// Bounds is the closed grid rectangle.
var Bounds = mustEnvelope(geom.XY{X: MinX, Y: MinY}, geom.XY{X: MaxX, Y: MaxY})

func mustEnvelope(xys ...geom.XY) geom.Envelope {
	env, err := geom.NewEnvelope(xys)
	if err != nil {
		panic("core: invalid grid bounds: " + err.Error())
	}
	return env
}

// Clamp saturates v to [lo, hi]. NaN saturates to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}

// ClampPosition saturates a point to the grid.
func ClampPosition(x, y float64) (float64, float64) {
	return Clamp(x, MinX, MaxX), Clamp(y, MinY, MaxY)
}

// InBounds reports whether the point lies on the grid, edges included.
func InBounds(x, y float64) bool {
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	return Bounds.Contains(geom.XY{X: x, Y: y})
}
