package pipeline

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewLASSourceMissingFile(t *testing.T) {
	_, err := NewLASSource("/nonexistent/does-not-exist.las", 0.1, r3.Vector{Z: 1}, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
