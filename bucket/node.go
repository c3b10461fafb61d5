package bucket

import (
	"github.com/mlsgpu-go/splatindex/bucketerr"
)

// maxLevelBits bounds the number of octree levels forEachNode will ever
// build a root for; it exists only to catch the obviously-invalid inputs
// (e.g. asking for a hundred levels), not to express a tight domain limit.
const maxLevelBits = 30

// Node addresses one cell of the micro-cell octree used by the bucketer's
// histogram pass: a triple of cell coordinates and a level in
// 0..=maxLevel, where level 0 is a single micro-cell and each increment
// doubles the side length.
type Node struct {
	Coords [3]uint32
	Level  uint32
}

// NewNode constructs a Node from explicit coordinates and a level.
func NewNode(x, y, z, level uint32) Node {
	return Node{Coords: [3]uint32{x, y, z}, Level: level}
}

// Size returns the node's side length in micro-cells, 1<<Level.
func (n Node) Size() uint32 {
	return 1 << n.Level
}

// Child returns the k'th of the node's eight sub-octants (k in 0..8),
// where bit 0 of k selects the x half, bit 1 the y half and bit 2 the z
// half. Valid only when Level >= 1.
func (n Node) Child(k int) (Node, error) {
	if n.Level < 1 {
		return Node{}, &bucketerr.InvalidArgumentError{Reason: "Child called on a level-0 node"}
	}
	if k < 0 || k >= 8 {
		return Node{}, &bucketerr.InvalidArgumentError{Reason: "child index must be in 0..8"}
	}
	var coords [3]uint32
	for axis := 0; axis < 3; axis++ {
		bit := uint32(k>>axis) & 1
		coords[axis] = n.Coords[axis]*2 + bit
	}
	return Node{Coords: coords, Level: n.Level - 1}, nil
}

// Micro returns the node's lower (inclusive) and upper (exclusive) bounds
// in micro-cell coordinates.
func (n Node) Micro() (lower, upper [3]uint32) {
	size := n.Size()
	for axis := 0; axis < 3; axis++ {
		lower[axis] = n.Coords[axis] * size
		upper[axis] = (n.Coords[axis] + 1) * size
	}
	return lower, upper
}

// Cells returns the node's lower and upper bounds in world-grid cell
// units, given the number of world-grid cells per micro-cell.
func (n Node) Cells(cellsPerMicro uint32) (lower, upper [3]uint32) {
	lo, hi := n.Micro()
	for axis := 0; axis < 3; axis++ {
		lower[axis] = lo[axis] * cellsPerMicro
		upper[axis] = hi[axis] * cellsPerMicro
	}
	return lower, upper
}

// ForEachNode visits, in depth-first pre-order with children considered
// in Morton order (x bit, then y, then z), every octree node covering
// dims starting from a single root at the given number of levels (the
// root sits at level levels-1). visit is called with each considered
// node and returns whether to descend into its children; a node whose
// micro-cell lower bound is >= dims on any axis is skipped without being
// visited at all, since it cannot contain anything.
//
// levels must be in 1..=maxLevelBits+1 and 1<<(levels-1) must be >= the
// largest entry of dims, or ForEachNode returns an InvalidArgumentError.
func ForEachNode(dims [3]uint32, levels uint32, visit func(Node) bool) error {
	if levels == 0 || levels > maxLevelBits+1 {
		return &bucketerr.InvalidArgumentError{Reason: "levels out of range"}
	}
	maxLevel := levels - 1
	size := uint32(1) << maxLevel
	maxDim := dims[0]
	if dims[1] > maxDim {
		maxDim = dims[1]
	}
	if dims[2] > maxDim {
		maxDim = dims[2]
	}
	if size < maxDim {
		return &bucketerr.InvalidArgumentError{Reason: "levels too small to cover dims"}
	}
	root := Node{Coords: [3]uint32{0, 0, 0}, Level: maxLevel}
	forEachNodeRecurse(root, dims, visit)
	return nil
}

func forEachNodeRecurse(n Node, dims [3]uint32, visit func(Node) bool) {
	if !visit(n) {
		return
	}
	if n.Level == 0 {
		return
	}
	for k := 0; k < 8; k++ {
		child, err := n.Child(k)
		if err != nil {
			panic(err) // unreachable: n.Level >= 1 here
		}
		lower, _ := child.Micro()
		skip := false
		for axis := 0; axis < 3; axis++ {
			if lower[axis] >= dims[axis] {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		forEachNodeRecurse(child, dims, visit)
	}
}
