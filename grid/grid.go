// Package grid implements the axis-aligned regular lattice that every
// other component of this module is defined relative to: splats are
// bucketed and indexed in grid-cell coordinates, not world coordinates.
package grid

import (
	"github.com/golang/geo/r3"

	"github.com/mlsgpu-go/splatindex/bucketerr"
)

// Grid is an axis-aligned regular lattice with a world-space reference
// point, a uniform cell spacing, and per-axis integer extents expressed
// in cell units relative to the reference point. It is an immutable value
// object: every method returns a derived value rather than mutating the
// receiver.
type Grid struct {
	reference r3.Vector
	spacing   float32
	lower     [3]int32
	upper     [3]int32 // exclusive
}

// New constructs a Grid. spacing must be positive and lower[axis] must be
// strictly less than upper[axis] on every axis.
func New(reference r3.Vector, spacing float32, lower, upper [3]int32) (Grid, error) {
	if spacing <= 0 {
		return Grid{}, &bucketerr.OutOfRangeError{Reason: "grid: spacing must be positive"}
	}
	for axis := 0; axis < 3; axis++ {
		if lower[axis] >= upper[axis] {
			return Grid{}, &bucketerr.OutOfRangeError{Reason: "grid: axis has empty or inverted extent"}
		}
	}
	return Grid{reference: reference, spacing: spacing, lower: lower, upper: upper}, nil
}

// Reference returns the grid's world-space reference point.
func (g Grid) Reference() r3.Vector { return g.reference }

// Spacing returns the uniform cell spacing.
func (g Grid) Spacing() float32 { return g.spacing }

// Extent returns the inclusive-lower, exclusive-upper extent of axis, in
// cell units relative to the reference point.
func (g Grid) Extent(axis int) (lower, upper int32) {
	return g.lower[axis], g.upper[axis]
}

// NumCells returns the number of cells along axis.
func (g Grid) NumCells(axis int) int32 {
	return g.upper[axis] - g.lower[axis]
}

// NumVertices returns the number of lattice vertices along axis, one more
// than the number of cells.
func (g Grid) NumVertices(axis int) int32 {
	return g.NumCells(axis) + 1
}

// WorldToVertex maps a world-space point to fractional vertex
// coordinates: component-wise (p - reference) / spacing.
func (g Grid) WorldToVertex(p r3.Vector) r3.Vector {
	inv := 1 / float64(g.spacing)
	return p.Sub(g.reference).Mul(inv)
}

// Vertex returns the world-space position of lattice vertex (i, j, k),
// the inverse of WorldToVertex.
func (g Grid) Vertex(i, j, k int32) r3.Vector {
	step := float64(g.spacing)
	return r3.Vector{
		X: g.reference.X + float64(i)*step,
		Y: g.reference.Y + float64(j)*step,
		Z: g.reference.Z + float64(k)*step,
	}
}

// Sub returns the sub-grid of g with the given per-axis extents. The new
// extents need not lie within g's own extents; callers that require
// containment (e.g. the bucketer, which always derives sub-regions from
// g) are responsible for that invariant.
func (g Grid) Sub(lower, upper [3]int32) (Grid, error) {
	return New(g.reference, g.spacing, lower, upper)
}

// ClampedTo returns the intersection of g's extents with limit's extents
// on every axis, following the same "clip to limit" rule the original
// octree Node.toCells applies when a region extends past the enclosing
// bounding grid.
func (g Grid) ClampedTo(limit Grid) (Grid, error) {
	var lower, upper [3]int32
	for axis := 0; axis < 3; axis++ {
		lo, hi := g.lower[axis], g.upper[axis]
		llo, lhi := limit.lower[axis], limit.upper[axis]
		if llo > lo {
			lo = llo
		}
		if lhi < hi {
			hi = lhi
		}
		lower[axis], upper[axis] = lo, hi
	}
	return New(g.reference, g.spacing, lower, upper)
}
