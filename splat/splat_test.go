package splat

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBoundingCube(t *testing.T) {
	s := New(r3.Vector{X: 1, Y: 2, Z: 3}, 0.5, r3.Vector{Z: 1})
	lo, hi := s.BoundingCube()
	test.That(t, lo, test.ShouldResemble, r3.Vector{X: 0.5, Y: 1.5, Z: 2.5})
	test.That(t, hi, test.ShouldResemble, r3.Vector{X: 1.5, Y: 2.5, Z: 3.5})
}

func TestVolume(t *testing.T) {
	s := New(r3.Vector{}, 2, r3.Vector{Z: 1})
	test.That(t, s.Volume(), test.ShouldAlmostEqual, 64.0)
}
