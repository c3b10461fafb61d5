package pipeline

import (
	"context"

	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/splat"
)

// InMemorySource is a bucket.SplatSource backed by splats already held
// in memory, one slice per scan. It is the source implementation used by
// tests and by callers with no file-backed input of their own.
type InMemorySource struct {
	scans [][]splat.Splat
}

// NewInMemorySource returns a SplatSource over scans, where scans[i] is
// the i'th scan's splats in index order.
func NewInMemorySource(scans [][]splat.Splat) *InMemorySource {
	return &InMemorySource{scans: scans}
}

// NumScans implements bucket.SplatSource.
func (s *InMemorySource) NumScans() int {
	return len(s.scans)
}

// ScanSize implements bucket.SplatSource.
func (s *InMemorySource) ScanSize(scan int) uint64 {
	return uint64(len(s.scans[scan]))
}

// Read implements bucket.SplatSource.
func (s *InMemorySource) Read(ctx context.Context, scan int, start, end uint64) ([]splat.Splat, error) {
	if scan < 0 || scan >= len(s.scans) {
		return nil, &bucketerr.OutOfRangeError{Reason: "scan index out of range"}
	}
	data := s.scans[scan]
	if start > end || end > uint64(len(data)) {
		return nil, &bucketerr.OutOfRangeError{Reason: "read range out of bounds for scan"}
	}
	out := make([]splat.Splat, end-start)
	copy(out, data[start:end])
	return out, nil
}
