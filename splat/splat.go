// Package splat defines the oriented, radius-bearing surface sample that
// flows through the rest of this module.
package splat

import (
	"github.com/golang/geo/r3"
)

// Splat is a single oriented surface sample: a position, a radius that
// defines an axis-aligned bounding cube of side 2*Radius centred on the
// position, and an oriented normal. The bounding cube, not the position
// alone, is what every spatial index in this module keys off of.
type Splat struct {
	Position r3.Vector
	Radius   float32
	Normal   r3.Vector
}

// New returns a Splat with the given position, radius and normal.
func New(position r3.Vector, radius float32, normal r3.Vector) Splat {
	return Splat{Position: position, Radius: radius, Normal: normal}
}

// BoundingCube returns the lower and upper corners of the axis-aligned
// cube of side 2*Radius centred at Position.
//
// Radius must be positive; this is a precondition enforced by callers
// that construct Splats (e.g. a SplatSource), not re-validated here on
// every call.
func (s Splat) BoundingCube() (lo, hi r3.Vector) {
	r := float64(s.Radius)
	offset := r3.Vector{X: r, Y: r, Z: r}
	return s.Position.Sub(offset), s.Position.Add(offset)
}

// Volume returns the volume of the splat's bounding cube, 8*Radius^3.
func (s Splat) Volume() float64 {
	r := float64(s.Radius)
	return 8 * r * r * r
}
