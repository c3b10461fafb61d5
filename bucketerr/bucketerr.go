// Package bucketerr defines the error taxonomy shared by the bucket,
// splattree and pipeline packages. Every error type here is returned as a
// plain pointer value at its raise site, so callers can recover the typed
// value with errors.As even after a caller has added its own context
// with errors.Wrap.
package bucketerr

import "fmt"

// DensityError is raised when a single micro-cell is covered by more
// splats than a bucketing run's splat budget allows, making the
// partitioning infeasible for that region.
type DensityError struct {
	// CellSplats is the number of splats covering the offending cell.
	CellSplats uint64
}

func (e *DensityError) Error() string {
	return fmt.Sprintf("bucketerr: %d splats cover one micro-cell, exceeding the splat limit", e.CellSplats)
}

// EmptyInputError is raised when a grid, a bucketing run, a splat tree or
// a LAS source is requested from zero splats.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "bucketerr: no splats to build a grid from"
}

// OutOfRangeError is raised by Range construction overflow, a grid with
// non-positive spacing or an empty or inverted extent, and SplatSource
// reads outside a scan's bounds.
type OutOfRangeError struct {
	Reason string
}

func (e *OutOfRangeError) Error() string {
	return "bucketerr: out of range: " + e.Reason
}

// InvalidArgumentError is raised when a precondition on an exported
// function (forEachNode's level bounds, Node.Child on a level-0 node or
// with an out-of-range child index, ...) is violated.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "bucketerr: invalid argument: " + e.Reason
}
