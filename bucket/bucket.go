// Package bucket implements the recursive spatial partitioner: it splits
// a grid-aligned region of splats into sub-regions small enough, in both
// splat count and cell count, to be processed as a single unit
// downstream (typically by building a splattree.Tree over each one).
package bucket

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/grid"
	"github.com/mlsgpu-go/splatindex/splat"
)

// SplatSource supplies splats on demand, scan by scan. A scan is a
// contiguous run of splats sharing one source of provenance (typically
// one input file); Read must return exactly end-start splats, in index
// order, for any 0 <= start <= end <= ScanSize(scan).
type SplatSource interface {
	NumScans() int
	ScanSize(scan int) uint64
	Read(ctx context.Context, scan int, start, end uint64) ([]splat.Splat, error)
}

// BucketOptions bounds the size of the sub-regions Bucket will emit.
type BucketOptions struct {
	// MaxSplats is the most splats a single emitted bucket may contain.
	MaxSplats uint64
	// MaxCells is the most grid cells a single emitted bucket's region
	// may span along each axis (checked per axis, not as a product).
	MaxCells uint32
	// MaxSplit paces subdivision: a node whose splat count exceeds
	// MaxSplats is only forced to descend further if that count also
	// exceeds max(1, totalSplats/MaxSplit). It does not bound the total
	// number of splits across a run, only how eagerly a single split
	// step descends on splat count alone (a node that is over MaxCells
	// always descends, regardless of MaxSplit).
	MaxSplit int
	// LeafCells is the side length, in grid cells, of the micro-cells
	// that both the density check and the histogram-driven subdivision
	// work in; DensityError is detected per micro-cell. Zero is treated
	// as 1.
	LeafCells uint32
}

// Recursion reports bucketing progress in units of grid cells: CellsDone
// cells have been assigned to an emitted bucket (or to a child region
// skipped because no splat overlaps it) out of CellsTotal in the run.
type Recursion struct {
	CellsDone  uint64
	CellsTotal uint64
}

// Sink receives one bucket: the splats it contains, the source-index
// Ranges covering exactly those splats, the grid region they were drawn
// from, and the run's progress so far.
type Sink func(ctx context.Context, splats []splat.Splat, ranges []Range, g grid.Grid, rec Recursion) error

// splatRef is a splat's provenance: which scan it came from and its
// index within that scan.
type splatRef struct {
	scan  uint32
	index uint64
}

// Bucket reads every splat out of src, then recursively partitions bbox
// until every emitted sub-region satisfies opts.MaxSplats and
// opts.MaxCells, calling sink once per emitted region. It returns
// bucketerr.EmptyInputError if src has no splats at all, and
// bucketerr.DensityError if a single micro-cell (opts.LeafCells wide) is
// covered by more splats than opts.MaxSplats allows, since no amount of
// further splitting can fix that.
func Bucket(ctx context.Context, src SplatSource, bbox grid.Grid, opts BucketOptions, sink Sink) error {
	splats, refs, err := readAllSplats(ctx, src)
	if err != nil {
		return err
	}
	if len(splats) == 0 {
		return &bucketerr.EmptyInputError{}
	}
	rec := &Recursion{CellsTotal: totalCells(bbox)}
	return bucketRegion(ctx, bbox, splats, refs, opts, rec, sink)
}

func readAllSplats(ctx context.Context, src SplatSource) ([]splat.Splat, []splatRef, error) {
	var splats []splat.Splat
	var refs []splatRef
	for s := 0; s < src.NumScans(); s++ {
		size := src.ScanSize(s)
		if size == 0 {
			continue
		}
		batch, err := src.Read(ctx, s, 0, size)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "bucket: reading scan %d", s)
		}
		if uint64(len(batch)) != size {
			return nil, nil, &bucketerr.InvalidArgumentError{
				Reason: "SplatSource.Read returned a different number of splats than ScanSize promised",
			}
		}
		for i, sp := range batch {
			splats = append(splats, sp)
			refs = append(refs, splatRef{scan: uint32(s), index: uint64(i)})
		}
	}
	return splats, refs, nil
}

func bucketRegion(
	ctx context.Context,
	g grid.Grid,
	splats []splat.Splat,
	refs []splatRef,
	opts BucketOptions,
	rec *Recursion,
	sink Sink,
) error {
	if err := densityCheck(splats, g, opts); err != nil {
		return err
	}

	numCells := totalCells(g)
	fits := uint64(len(splats)) <= opts.MaxSplats && fitsMaxCells(g, opts.MaxCells)
	if fits || numCells <= 1 {
		ranges := collectRanges(refs)
		rec.CellsDone += numCells
		return sink(ctx, splats, ranges, g, *rec)
	}

	children, err := splitRegion(g, splats, opts)
	if err != nil {
		return err
	}
	if len(children) == 1 && sameExtent(children[0], g) {
		// The histogram pass made no progress (only possible with a
		// pathologically small MaxSplit): fall back to a plain
		// midpoint bisection so recursion still shrinks the region.
		children, err = bisectGrid(g)
		if err != nil {
			return err
		}
	}
	for _, childGrid := range children {
		childSplats, childRefs := filterSplats(splats, refs, childGrid)
		if len(childSplats) == 0 {
			rec.CellsDone += totalCells(childGrid)
			continue
		}
		if err := bucketRegion(ctx, childGrid, childSplats, childRefs, opts, rec, sink); err != nil {
			return err
		}
	}
	return nil
}

// fitsMaxCells reports whether g's cell count is within opts.MaxCells on
// every axis independently, not as a product across axes: a long, thin
// region with few cells on two axes and many on the third is not made
// any easier to process downstream by the other two axes being small.
func fitsMaxCells(g grid.Grid, maxCells uint32) bool {
	for axis := 0; axis < 3; axis++ {
		if uint32(g.NumCells(axis)) > maxCells {
			return false
		}
	}
	return true
}

// splitRegion walks g's micro-cell octree (cells of side opts.LeafCells,
// or 1 if zero) with ForEachNode, selecting the coarsest nodes that
// satisfy both size bounds: a node descends into its children whenever
// its cell count exceeds opts.MaxCells on any single axis, or its splat
// count exceeds both opts.MaxSplats and the pacing threshold
// max(1, totalSplats/MaxSplit); otherwise it is emitted as a sub-region.
// A micro-cell (level 0) is always emitted even if it still violates a
// bound, since it cannot be split any further; densityCheck is what
// actually guarantees a micro-cell's splat count never exceeds
// opts.MaxSplats.
func splitRegion(g grid.Grid, splats []splat.Splat, opts BucketOptions) ([]grid.Grid, error) {
	leaf := opts.LeafCells
	if leaf == 0 {
		leaf = 1
	}
	dims := microDims(g, leaf)
	levels := levelsForDims(dims)

	threshold := uint64(1)
	if opts.MaxSplit > 0 {
		if t := uint64(len(splats)) / uint64(opts.MaxSplit); t > threshold {
			threshold = t
		}
	}

	var regions []grid.Grid
	var splitErr error
	err := ForEachNode(dims, levels, func(n Node) bool {
		lo, hi, ok := nodeExtent(n, leaf, g)
		if !ok {
			return false
		}
		overCells := false
		for axis := 0; axis < 3; axis++ {
			if uint32(hi[axis]-lo[axis]) > opts.MaxCells {
				overCells = true
				break
			}
		}
		if overCells && n.Level > 0 {
			return true
		}
		count := countIntersecting(splats, g, lo, hi)
		overSplats := count > opts.MaxSplats && count > threshold
		if overSplats && n.Level > 0 {
			return true
		}
		sub, err := g.Sub(lo, hi)
		if err != nil {
			splitErr = err
			return false
		}
		regions = append(regions, sub)
		return false
	})
	if err != nil {
		return nil, err
	}
	if splitErr != nil {
		return nil, splitErr
	}
	return regions, nil
}

// bisectGrid divides g into up to eight children at the midpoint of each
// splittable axis (an axis with only one cell cannot be split further
// and is carried through whole), in the same x/y/z bit order Node.Child
// uses, with duplicate children collapsed. It exists only as
// splitRegion's non-progress fallback.
func bisectGrid(g grid.Grid) ([]grid.Grid, error) {
	var mid [3]int32
	var splittable [3]bool
	for axis := 0; axis < 3; axis++ {
		lo, hi := g.Extent(axis)
		if hi-lo > 1 {
			mid[axis] = lo + (hi-lo)/2
			splittable[axis] = true
		}
	}

	type extent struct{ lower, upper [3]int32 }
	seen := map[extent]bool{}
	var children []grid.Grid
	for k := 0; k < 8; k++ {
		var e extent
		for axis := 0; axis < 3; axis++ {
			lo, hi := g.Extent(axis)
			if !splittable[axis] {
				e.lower[axis], e.upper[axis] = lo, hi
			} else if (k>>axis)&1 == 1 {
				e.lower[axis], e.upper[axis] = mid[axis], hi
			} else {
				e.lower[axis], e.upper[axis] = lo, mid[axis]
			}
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		cg, err := g.Sub(e.lower, e.upper)
		if err != nil {
			continue
		}
		children = append(children, cg)
	}
	return children, nil
}

func sameExtent(a, b grid.Grid) bool {
	for axis := 0; axis < 3; axis++ {
		alo, ahi := a.Extent(axis)
		blo, bhi := b.Extent(axis)
		if alo != blo || ahi != bhi {
			return false
		}
	}
	return true
}

// microDims returns, for a grid split into opts.LeafCells-wide
// micro-cells, the number of whole or partial micro-cells along each
// axis.
func microDims(g grid.Grid, leaf uint32) [3]uint32 {
	var dims [3]uint32
	for axis := 0; axis < 3; axis++ {
		nc := uint32(g.NumCells(axis))
		dims[axis] = (nc + leaf - 1) / leaf
		if dims[axis] == 0 {
			dims[axis] = 1
		}
	}
	return dims
}

// nodeExtent converts a micro-cell octree node into the absolute,
// grid-cell-unit extent it covers, clipped to g's own cell extent via
// Grid.ClampedTo (dims need not be an exact multiple of leaf, and the
// octree rounds up to the next power of two on top of that). ok is false
// if the node's extent lies entirely outside g, in which case lo/hi are
// meaningless.
func nodeExtent(n Node, leaf uint32, g grid.Grid) (lo, hi [3]int32, ok bool) {
	lower, upper := n.Cells(leaf)
	var absLower, absUpper [3]int32
	for axis := 0; axis < 3; axis++ {
		base, _ := g.Extent(axis)
		absLower[axis] = base + int32(lower[axis])
		absUpper[axis] = base + int32(upper[axis])
	}
	sub, err := g.Sub(absLower, absUpper)
	if err != nil {
		return lo, hi, false
	}
	clamped, err := sub.ClampedTo(g)
	if err != nil {
		return lo, hi, false
	}
	for axis := 0; axis < 3; axis++ {
		lo[axis], hi[axis] = clamped.Extent(axis)
	}
	return lo, hi, true
}

// countIntersecting counts the splats whose bounding cube overlaps the
// grid-cell-unit extent [lo, hi), treating lo/hi as vertex coordinates
// in g's own reference frame (the two coincide, since a cell c occupies
// vertex interval [c, c+1)).
func countIntersecting(splats []splat.Splat, g grid.Grid, lo, hi [3]int32) uint64 {
	var count uint64
	for _, sp := range splats {
		bLo, bHi := sp.BoundingCube()
		vLo := g.WorldToVertex(bLo)
		vHi := g.WorldToVertex(bHi)
		vloArr := [3]float64{vLo.X, vLo.Y, vLo.Z}
		vhiArr := [3]float64{vHi.X, vHi.Y, vHi.Z}
		intersects := true
		for axis := 0; axis < 3; axis++ {
			if vloArr[axis] >= float64(hi[axis]) || vhiArr[axis] <= float64(lo[axis]) {
				intersects = false
				break
			}
		}
		if intersects {
			count++
		}
	}
	return count
}

// filterSplats returns the splats (and their provenance) among splats
// whose bounding cube overlaps g at all. A splat whose cube straddles a
// split boundary is returned for every child region it overlaps, the
// same "place it everywhere it could apply" rule splattree.New uses when
// a splat straddles a cell boundary.
func filterSplats(splats []splat.Splat, refs []splatRef, g grid.Grid) ([]splat.Splat, []splatRef) {
	var lo, hi [3]int32
	for axis := 0; axis < 3; axis++ {
		lo[axis], hi[axis] = g.Extent(axis)
	}
	var outSplats []splat.Splat
	var outRefs []splatRef
	for i, sp := range splats {
		bLo, bHi := sp.BoundingCube()
		vLo := g.WorldToVertex(bLo)
		vHi := g.WorldToVertex(bHi)
		vloArr := [3]float64{vLo.X, vLo.Y, vLo.Z}
		vhiArr := [3]float64{vHi.X, vHi.Y, vHi.Z}
		intersects := true
		for axis := 0; axis < 3; axis++ {
			if vloArr[axis] >= float64(hi[axis]) || vhiArr[axis] <= float64(lo[axis]) {
				intersects = false
				break
			}
		}
		if intersects {
			outSplats = append(outSplats, sp)
			outRefs = append(outRefs, refs[i])
		}
	}
	return outSplats, outRefs
}

func collectRanges(refs []splatRef) []Range {
	var ranges []Range
	collector := NewRangeCollector(func(r Range) { ranges = append(ranges, r) })
	for _, ref := range refs {
		collector.Append(ref.scan, ref.index)
	}
	collector.Flush()
	return ranges
}

func totalCells(g grid.Grid) uint64 {
	total := uint64(1)
	for axis := 0; axis < 3; axis++ {
		total *= uint64(g.NumCells(axis))
	}
	return total
}

// densityCheck raises DensityError if any single LeafCells-wide
// micro-cell of g is overlapped by more splat bounding cubes than
// opts.MaxSplats allows — not by more splat centres, since a splat
// whose cube overlaps a micro-cell it isn't centred in still has to
// live in that micro-cell's bucket. It walks the micro-cell octree with
// ForEachNode, which is the same traversal the rest of this package
// uses for octree-shaped work.
func densityCheck(splats []splat.Splat, g grid.Grid, opts BucketOptions) error {
	leaf := opts.LeafCells
	if leaf == 0 {
		leaf = 1
	}
	dims := microDims(g, leaf)
	levels := levelsForDims(dims)

	var densityErr error
	err := ForEachNode(dims, levels, func(n Node) bool {
		if n.Level > 0 {
			return true
		}
		lo, hi, ok := nodeExtent(n, leaf, g)
		if !ok {
			return false
		}
		if c := countIntersecting(splats, g, lo, hi); c > opts.MaxSplats {
			densityErr = &bucketerr.DensityError{CellSplats: c}
		}
		return false
	})
	if err != nil {
		return err
	}
	return densityErr
}

func levelsForDims(dims [3]uint32) uint32 {
	maxDim := dims[0]
	if dims[1] > maxDim {
		maxDim = dims[1]
	}
	if dims[2] > maxDim {
		maxDim = dims[2]
	}
	if maxDim == 0 {
		maxDim = 1
	}
	level := uint32(0)
	for uint32(1)<<level < maxDim {
		level++
	}
	return level + 1
}

// ForEachSplat reads every splat covered by ranges from src, in range
// order, and calls visit with each splat's provenance and value. It
// stops at the first error returned by Read or visit.
func ForEachSplat(
	ctx context.Context,
	src SplatSource,
	ranges []Range,
	visit func(scan uint32, index uint64, s splat.Splat) error,
) error {
	for _, r := range ranges {
		if r.Size == 0 {
			continue
		}
		batch, err := src.Read(ctx, int(r.Scan), r.Start, r.Start+uint64(r.Size))
		if err != nil {
			return errors.Wrapf(err, "bucket: reading scan %d range [%d, %d)", r.Scan, r.Start, r.Start+uint64(r.Size))
		}
		for i, sp := range batch {
			if err := visit(r.Scan, r.Start+uint64(i), sp); err != nil {
				return err
			}
		}
	}
	return nil
}
