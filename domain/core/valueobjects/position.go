package valueobjects

import (
	"math"

	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// Position is a point on the canvas.
type Position struct {
	x float64
	y float64
}

// NewPosition rejects NaN and infinite coordinates.
func NewPosition(x, y float64) (Position, error) {
	if !isFinite(x) || !isFinite(y) {
		return Position{}, pkgerrors.NewValidationError("invalid coordinates: must be finite numbers")
	}
	return Position{x: x, y: y}, nil
}

func (p Position) X() float64 {
	return p.x
}

func (p Position) Y() float64 {
	return p.y
}

// Equals compares with a small tolerance.
func (p Position) Equals(other Position) bool {
	const epsilon = 1e-9
	return math.Abs(p.x-other.x) < epsilon && math.Abs(p.y-other.y) < epsilon
}

// Translate moves the position by the given offsets.
func (p Position) Translate(dx, dy float64) (Position, error) {
	return NewPosition(p.x+dx, p.y+dy)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
