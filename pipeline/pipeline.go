// Package pipeline wires the grid, bucket and splattree packages
// together into the single synchronous pass a caller actually runs:
// compute a bounding grid, partition it into buckets, build a splat tree
// over each bucket, and hand the result to a caller-supplied downstream
// function.
package pipeline

import (
	"context"
	"io"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/mlsgpu-go/splatindex/bucket"
	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/grid"
	"github.com/mlsgpu-go/splatindex/splat"
	"github.com/mlsgpu-go/splatindex/splattree"
)

// Options configures a single Driver.Run pass.
type Options struct {
	// CellSize is the world-space side length of one grid cell.
	CellSize float32
	// Bucket bounds the size of each emitted bucket.
	Bucket bucket.BucketOptions
}

// BucketResult is everything downstream gets for one emitted bucket.
type BucketResult struct {
	Splats    []splat.Splat
	Tree      *splattree.Tree
	Grid      grid.Grid
	Recursion bucket.Recursion
}

// Downstream is called once per emitted bucket, in bucketing order.
type Downstream func(ctx context.Context, result BucketResult) error

// Driver runs the grid/bucket/splattree pipeline against a SplatSource.
type Driver struct {
	logger golog.Logger
}

// NewDriver returns a Driver that logs through logger, or through
// golog.Global() if logger is nil.
func NewDriver(logger golog.Logger) *Driver {
	if logger == nil {
		logger = golog.Global()
	}
	return &Driver{logger: logger}
}

// Run computes a grid covering every splat in src, partitions it into
// buckets with bucket.Bucket, builds a splattree.Tree over each bucket,
// and calls downstream once per bucket. If src implements io.Closer, Run
// closes it before returning, combining any close error with whatever
// Run itself returned.
func (d *Driver) Run(ctx context.Context, src bucket.SplatSource, opts Options, downstream Downstream) (err error) {
	if c, ok := src.(io.Closer); ok {
		defer func() {
			err = multierr.Combine(err, c.Close())
		}()
	}

	g, err := MakeGrid(ctx, src, opts.CellSize)
	if err != nil {
		return errors.Wrap(err, "pipeline: computing bounding grid")
	}
	d.logger.Debugw("bounding grid computed", "spacing", g.Spacing())

	bucketCount := 0
	err = bucket.Bucket(ctx, src, g, opts.Bucket, func(ctx context.Context, splats []splat.Splat, ranges []bucket.Range, bg grid.Grid, rec bucket.Recursion) error {
		tree, err := splattree.New(splats, bg)
		if err != nil {
			return errors.Wrap(err, "pipeline: building splat tree for bucket")
		}
		bucketCount++
		d.logger.Debugw("bucket emitted",
			"bucket", bucketCount, "splats", len(splats), "ranges", len(ranges),
			"cellsDone", rec.CellsDone, "cellsTotal", rec.CellsTotal)
		return downstream(ctx, BucketResult{Splats: splats, Tree: tree, Grid: bg, Recursion: rec})
	})
	if err != nil {
		return errors.Wrap(err, "pipeline: bucketing")
	}
	d.logger.Debugf("bucketing complete: %d buckets emitted", bucketCount)
	return nil
}

// MakeGrid computes the smallest grid, at the given world-space cell
// size, whose cells cover every splat's position in src. Radii are
// deliberately excluded: the enclosing grid is sized from sample points
// alone, not the splats' influence regions.
func MakeGrid(ctx context.Context, src bucket.SplatSource, cellSize float32) (grid.Grid, error) {
	if cellSize <= 0 {
		return grid.Grid{}, &bucketerr.InvalidArgumentError{Reason: "cell size must be positive"}
	}

	var lo, hi r3.Vector
	seen := false
	for s := 0; s < src.NumScans(); s++ {
		size := src.ScanSize(s)
		if size == 0 {
			continue
		}
		batch, err := src.Read(ctx, s, 0, size)
		if err != nil {
			return grid.Grid{}, errors.Wrapf(err, "pipeline: reading scan %d", s)
		}
		for _, sp := range batch {
			if !seen {
				lo, hi = sp.Position, sp.Position
				seen = true
				continue
			}
			lo = r3.Vector{X: math.Min(lo.X, sp.Position.X), Y: math.Min(lo.Y, sp.Position.Y), Z: math.Min(lo.Z, sp.Position.Z)}
			hi = r3.Vector{X: math.Max(hi.X, sp.Position.X), Y: math.Max(hi.Y, sp.Position.Y), Z: math.Max(hi.Z, sp.Position.Z)}
		}
	}
	if !seen {
		return grid.Grid{}, &bucketerr.EmptyInputError{}
	}

	loArr := [3]float64{lo.X, lo.Y, lo.Z}
	hiArr := [3]float64{hi.X, hi.Y, hi.Z}
	var lower, upper [3]int32
	for axis := 0; axis < 3; axis++ {
		lower[axis] = int32(math.Floor(loArr[axis] / float64(cellSize)))
		upper[axis] = int32(math.Ceil(hiArr[axis] / float64(cellSize)))
		if upper[axis] <= lower[axis] {
			upper[axis] = lower[axis] + 1
		}
	}
	return grid.New(r3.Vector{}, cellSize, lower, upper)
}
