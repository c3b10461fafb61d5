package bucket

import (
	"math"

	"github.com/mlsgpu-go/splatindex/bucketerr"
)

// Range is a run of Size consecutive splat indices, starting at Start,
// all drawn from the same source scan. A zero-value Range is empty
// (Size == 0) and carries no scan.
//
// Invariant: Start + Size - 1 does not overflow a 64-bit index. This is
// maintained by NewRangeN and by Append.
type Range struct {
	Scan  uint32
	Start uint64
	Size  uint32
}

// NewRange constructs a single-splat Range at (scan, index).
func NewRange(scan uint32, index uint64) Range {
	return Range{Scan: scan, Start: index, Size: 1}
}

// NewRangeN constructs a Range of size splats starting at start. It
// fails if start+size-1 would overflow a 64-bit index.
func NewRangeN(scan uint32, start uint64, size uint32) (Range, error) {
	if size > 0 && start > math.MaxUint64-uint64(size-1) {
		return Range{}, &bucketerr.OutOfRangeError{Reason: "range end overflows a 64-bit index"}
	}
	return Range{Scan: scan, Start: start, Size: size}, nil
}

// Append attempts to fold a new splat (scan, index) into r and reports
// whether it did so. An empty Range adopts (scan, index) as its first
// element. A non-empty Range accepts any index already inside its
// [Start, Start+Size) run as a no-op success, extends by one when index
// is exactly Start+Size, and otherwise refuses: a different scan, a gap
// beyond the run's end, or an extension that would overflow Size past
// math.MaxUint32 all return false without modifying r.
func (r *Range) Append(scan uint32, index uint64) bool {
	if r.Size == 0 {
		r.Scan = scan
		r.Start = index
		r.Size = 1
		return true
	}
	if scan != r.Scan {
		return false
	}
	if index >= r.Start && index < r.Start+uint64(r.Size) {
		return true
	}
	if index == r.Start+uint64(r.Size) {
		if r.Size == math.MaxUint32 {
			return false
		}
		r.Size++
		return true
	}
	return false
}

// RangeCollector accumulates appended (scan, index) splat references
// into the fewest possible Ranges and emits each completed Range to sink
// as soon as a newly appended splat can no longer fold into it. Flush
// must be called once the caller is done appending, to emit the final
// in-progress Range; Flush is idempotent.
type RangeCollector struct {
	current Range
	sink    func(Range)
}

// NewRangeCollector returns a RangeCollector that emits completed Ranges
// to sink.
func NewRangeCollector(sink func(Range)) *RangeCollector {
	return &RangeCollector{sink: sink}
}

// Append adds (scan, index) to the collector, emitting and replacing the
// current Range if it could not absorb the new element.
func (c *RangeCollector) Append(scan uint32, index uint64) {
	if c.current.Append(scan, index) {
		return
	}
	c.sink(c.current)
	c.current = NewRange(scan, index)
}

// Flush emits the in-progress Range, if any, and resets the collector to
// empty.
func (c *RangeCollector) Flush() {
	if c.current.Size == 0 {
		return
	}
	c.sink(c.current)
	c.current = Range{}
}

// RangeCounter mirrors RangeCollector's coalescing logic but only tallies
// how many Ranges and splats would result, without materialising or
// emitting any of them. It is used to pre-size the backing storage for a
// RangeCollector's sink before the real pass runs.
type RangeCounter struct {
	current Range
	ranges  uint64
	splats  uint64
}

// Append adds (scan, index) to the counter's running tally.
func (c *RangeCounter) Append(scan uint32, index uint64) {
	if c.current.Append(scan, index) {
		return
	}
	c.ranges++
	c.splats += uint64(c.current.Size)
	c.current = NewRange(scan, index)
}

// Flush finalises the in-progress Range into the tally. Counts is only
// accurate once Flush has been called for every splat that will be
// appended.
func (c *RangeCounter) Flush() {
	if c.current.Size == 0 {
		return
	}
	c.ranges++
	c.splats += uint64(c.current.Size)
	c.current = Range{}
}

// Counts returns the number of Ranges and splats tallied so far.
func (c *RangeCounter) Counts() (ranges, splats uint64) {
	return c.ranges, c.splats
}
