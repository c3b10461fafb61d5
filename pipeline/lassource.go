package pipeline

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/splat"
)

// LASSource is a bucket.SplatSource that reads its splats from a single
// LAS point cloud file, lazily on every Read. LAS carries bare positions,
// not the radius/normal a splat needs, so every point is given the same
// Radius and Normal supplied to NewLASSource.
type LASSource struct {
	lf     *lidario.LasFile
	radius float64
	normal r3.Vector
	logger golog.Logger
}

// NewLASSource opens fn as a LAS file and returns a SplatSource over its
// points. Close must be called once the source is no longer needed;
// pipeline.Driver.Run does this automatically when src implements
// io.Closer.
func NewLASSource(fn string, radius float64, normal r3.Vector, logger golog.Logger) (*LASSource, error) {
	if logger == nil {
		logger = golog.Global()
	}
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline: opening LAS file %q", fn)
	}
	if lf.Header.NumberPoints == 0 {
		defer utils.UncheckedErrorFunc(lf.Close)
		return nil, &bucketerr.EmptyInputError{}
	}
	return &LASSource{lf: lf, radius: radius, normal: normal, logger: logger}, nil
}

// NumScans implements bucket.SplatSource. A LAS file is a single scan.
func (s *LASSource) NumScans() int {
	return 1
}

// ScanSize implements bucket.SplatSource.
func (s *LASSource) ScanSize(scan int) uint64 {
	return uint64(s.lf.Header.NumberPoints)
}

// Read implements bucket.SplatSource, converting LAS points [start, end)
// into splats with the radius and normal fixed at construction time.
func (s *LASSource) Read(ctx context.Context, scan int, start, end uint64) ([]splat.Splat, error) {
	if scan != 0 {
		return nil, &bucketerr.OutOfRangeError{Reason: "LASSource has exactly one scan"}
	}
	total := uint64(s.lf.Header.NumberPoints)
	if start > end || end > total {
		return nil, &bucketerr.OutOfRangeError{Reason: "read range out of bounds for LAS file"}
	}
	out := make([]splat.Splat, 0, end-start)
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.lf.LasPoint(int(i))
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline: reading LAS point %d", i)
		}
		data := p.PointData()
		pos := r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		out = append(out, splat.New(pos, float32(s.radius), s.normal))
	}
	return out, nil
}

// Close releases the underlying LAS file handle.
func (s *LASSource) Close() error {
	return s.lf.Close()
}
