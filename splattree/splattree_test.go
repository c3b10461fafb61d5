package splattree

import (
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/grid"
	"github.com/mlsgpu-go/splatindex/splat"
)

func TestNewRejectsEmptyInput(t *testing.T) {
	g, err := grid.New(r3.Vector{}, 1, [3]int32{0, 0, 0}, [3]int32{8, 8, 8})
	test.That(t, err, test.ShouldBeNil)

	_, err = New(nil, g)
	_, ok := err.(*bucketerr.EmptyInputError)
	test.That(t, ok, test.ShouldBeTrue)
}

// spanningMortons lists, in ascending Morton order, the eight finest-level
// cells (x,y,z in {3,4}) a splat at (4,4,4) with radius 0.5 on an 8x8x8
// grid straddles: its bounding cube runs from vertex 3.5 to 4.5 on every
// axis, landing it in cell 3 on one side and cell 4 on the other, on
// every axis at once.
func spanningMortons() []uint32 {
	var mortons []uint32
	for _, x := range [2]uint32{3, 4} {
		for _, y := range [2]uint32{3, 4} {
			for _, z := range [2]uint32{3, 4} {
				mortons = append(mortons, mortonEncode(x, y, z))
			}
		}
	}
	sort.Slice(mortons, func(i, j int) bool { return mortons[i] < mortons[j] })
	return mortons
}

func TestNewSplatSpanningMultipleCells(t *testing.T) {
	g, err := grid.New(r3.Vector{}, 1, [3]int32{0, 0, 0}, [3]int32{8, 8, 8})
	test.That(t, err, test.ShouldBeNil)

	splats := []splat.Splat{splat.New(r3.Vector{X: 4, Y: 4, Z: 4}, 0.5, r3.Vector{Z: 1})}
	tree, err := New(splats, g)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, tree.MaxLevel, test.ShouldEqual, uint32(3))
	test.That(t, tree.LevelStart, test.ShouldResemble, []uint32{0, 1, 9, 73, 585})

	mortons := spanningMortons()
	spanning := map[uint32]bool{}
	for _, m := range mortons {
		spanning[m] = true
		test.That(t, tree.Cell(tree.MaxLevel, m), test.ShouldResemble, []uint32{0})
	}

	// Every other cell at every other level is empty.
	for level := uint32(0); level <= tree.MaxLevel; level++ {
		cells := cellsAtLevel(level)
		for m := uint32(0); m < cells; m++ {
			if level == tree.MaxLevel && spanning[m] {
				continue
			}
			test.That(t, len(tree.Cell(level, m)), test.ShouldEqual, 0)
		}
	}
}

func TestToCommandsSkipsEmptyCells(t *testing.T) {
	g, err := grid.New(r3.Vector{}, 1, [3]int32{0, 0, 0}, [3]int32{8, 8, 8})
	test.That(t, err, test.ShouldBeNil)
	splats := []splat.Splat{splat.New(r3.Vector{X: 4, Y: 4, Z: 4}, 0.5, r3.Vector{Z: 1})}
	tree, err := New(splats, g)
	test.That(t, err, test.ShouldBeNil)

	mortons := spanningMortons()
	commands := tree.ToCommands()
	test.That(t, len(commands), test.ShouldEqual, len(mortons))
	for i, m := range mortons {
		test.That(t, commands[i], test.ShouldResemble, GPUCommand{Level: tree.MaxLevel, Morton: m, Start: uint32(i), Count: 1})
	}
}

func TestNewManySplatsPreservesCount(t *testing.T) {
	g, err := grid.New(r3.Vector{}, 1, [3]int32{0, 0, 0}, [3]int32{8, 8, 8})
	test.That(t, err, test.ShouldBeNil)

	var splats []splat.Splat
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			for k := 0; k < 8; k++ {
				pos := r3.Vector{X: float64(i) + 0.5, Y: float64(j) + 0.5, Z: float64(k) + 0.5}
				splats = append(splats, splat.New(pos, 0.1, r3.Vector{Z: 1}))
			}
		}
	}
	tree, err := New(splats, g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(tree.IDs), test.ShouldEqual, len(splats))

	// None of these bounding cubes reach a cell boundary, so each one
	// is placed in exactly the single cell containing it.
	seen := make([]bool, len(splats))
	for _, id := range tree.IDs {
		test.That(t, seen[id], test.ShouldBeFalse)
		seen[id] = true
	}
}
