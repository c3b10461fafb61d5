// Package splattree builds the static, flat sparse octree a single
// bucket's splats are indexed by: a GPU-consumable structure of a
// prefix-summed start array and a concatenated id array, with no pointer
// chasing required to walk it.
package splattree

import (
	"math"
	"sort"

	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/grid"
	"github.com/mlsgpu-go/splatindex/splat"
)

// Tree is a static sparse octree over one bucket's splats. Cells are
// addressed by (level, morton), level 0 being the single root cell
// covering the whole grid and level MaxLevel being the finest level the
// grid's cell extents require. LevelStart[level] is the flat index of
// that level's first cell; Start is a prefix sum over flat cell index
// such that the IDs belonging to flat cell c are IDs[Start[c]:Start[c+1]].
type Tree struct {
	MaxLevel   uint32
	LevelStart []uint32
	Start      []uint32
	IDs        []uint32

	grid grid.Grid
}

// New builds a Tree by placing each splat at the finest level at which
// its bounding cube touches at most two cells along every axis, recording
// it in each of those (up to eight) cells, then sorting splat ids into
// contiguous per-cell runs.
func New(splats []splat.Splat, g grid.Grid) (*Tree, error) {
	if len(splats) == 0 {
		return nil, &bucketerr.EmptyInputError{}
	}

	var size uint32
	for axis := 0; axis < 3; axis++ {
		if n := uint32(g.NumCells(axis)); n > size {
			size = n
		}
	}
	if size == 0 {
		size = 1
	}
	maxLevel := uint32(0)
	for uint32(1)<<maxLevel < size {
		maxLevel++
	}

	levelStart := make([]uint32, maxLevel+2)
	for l := uint32(0); l <= maxLevel; l++ {
		levelStart[l+1] = levelStart[l] + cellsAtLevel(l)
	}
	total := levelStart[maxLevel+1]

	type entry struct {
		pos uint32
		id  uint32
	}
	entries := make([]entry, 0, len(splats))

	// WorldToVertex is relative to g's reference point, while tree cell
	// indices are relative to g's own lower extent.
	var base [3]float64
	for axis := 0; axis < 3; axis++ {
		lower, _ := g.Extent(axis)
		base[axis] = float64(lower)
	}

	for id, sp := range splats {
		lo, hi := sp.BoundingCube()
		vlo := g.WorldToVertex(lo)
		vhi := g.WorldToVertex(hi)
		vlo.X, vlo.Y, vlo.Z = vlo.X-base[0], vlo.Y-base[1], vlo.Z-base[2]
		vhi.X, vhi.Y, vhi.Z = vhi.X-base[0], vhi.Y-base[1], vhi.Z-base[2]
		// ilo is the cell holding the bounding cube's lower corner and
		// ihi the cell holding its upper corner: the cube overlaps
		// every cell in between, never fewer, so a lookup against any
		// overlapping cell always finds it. ihi is ceil(vhi)-1, not
		// ceil(vhi): a vertex coordinate of exactly size is one past
		// the last valid cell index, and even a non-integer vhi has
		// ceil(vhi)-1 == floor(vhi), the cell vhi actually falls in.
		maxCell := int64(size) - 1
		ilo := [3]int64{
			clampInt64(int64(math.Floor(vlo.X)), 0, maxCell),
			clampInt64(int64(math.Floor(vlo.Y)), 0, maxCell),
			clampInt64(int64(math.Floor(vlo.Z)), 0, maxCell),
		}
		ihi := [3]int64{
			clampInt64(int64(math.Ceil(vhi.X))-1, 0, maxCell),
			clampInt64(int64(math.Ceil(vhi.Y))-1, 0, maxCell),
			clampInt64(int64(math.Ceil(vhi.Z))-1, 0, maxCell),
		}

		shift := uint32(0)
		for shift < maxLevel {
			fits := true
			for axis := 0; axis < 3; axis++ {
				if (ihi[axis]>>shift)-(ilo[axis]>>shift) > 1 {
					fits = false
					break
				}
			}
			if fits {
				break
			}
			shift++
		}

		level := maxLevel - shift
		var lo3, hi3 [3]uint32
		for axis := 0; axis < 3; axis++ {
			lo3[axis] = uint32(ilo[axis] >> shift)
			hi3[axis] = uint32(ihi[axis] >> shift)
		}
		for z := lo3[2]; z <= hi3[2]; z++ {
			for y := lo3[1]; y <= hi3[1]; y++ {
				for x := lo3[0]; x <= hi3[0]; x++ {
					pos := levelStart[level] + mortonEncode(x, y, z)
					entries = append(entries, entry{pos: pos, id: uint32(id)})
				}
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	counts := make([]uint32, total)
	for _, e := range entries {
		counts[e.pos]++
	}
	start := make([]uint32, total+1)
	for i := uint32(0); i < total; i++ {
		start[i+1] = start[i] + counts[i]
	}
	ids := make([]uint32, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}

	return &Tree{MaxLevel: maxLevel, LevelStart: levelStart, Start: start, IDs: ids, grid: g}, nil
}

// Cell returns the splat ids (indices into the splats slice New was
// built from) stored at (level, morton).
func (t *Tree) Cell(level, morton uint32) []uint32 {
	idx := t.LevelStart[level] + morton
	return t.IDs[t.Start[idx]:t.Start[idx+1]]
}

// Grid returns the region the tree indexes.
func (t *Tree) Grid() grid.Grid { return t.grid }

func cellsAtLevel(level uint32) uint32 {
	return uint32(1) << (3 * level)
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mortonEncode interleaves the low 10 bits of each of x, y and z into a
// 30-bit Morton code, x occupying bit 0 of every triple, y bit 1 and z
// bit 2, matching the child-ordering convention bucket.Node.Child uses.
func mortonEncode(x, y, z uint32) uint32 {
	return spreadBits3(x) | (spreadBits3(y) << 1) | (spreadBits3(z) << 2)
}

func spreadBits3(v uint32) uint32 {
	v &= 0x3FF
	v = (v | (v << 16)) & 0xFF0000FF
	v = (v | (v << 8)) & 0x0300F00F
	v = (v | (v << 4)) & 0x030C30C3
	v = (v | (v << 2)) & 0x09249249
	return v
}
