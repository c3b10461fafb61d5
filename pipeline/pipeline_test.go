package pipeline

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/mlsgpu-go/splatindex/bucket"
	"github.com/mlsgpu-go/splatindex/bucketerr"
	"github.com/mlsgpu-go/splatindex/splat"
)

func testSplats() []splat.Splat {
	var splats []splat.Splat
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				pos := r3.Vector{X: float64(i)*2 + 0.5, Y: float64(j)*2 + 0.5, Z: float64(k)*2 + 0.5}
				splats = append(splats, splat.New(pos, 0.1, r3.Vector{Z: 1}))
			}
		}
	}
	return splats
}

func TestMakeGridCoversSplats(t *testing.T) {
	src := NewInMemorySource([][]splat.Splat{testSplats()})
	g, err := MakeGrid(context.Background(), src, 1)
	test.That(t, err, test.ShouldBeNil)

	for axis := 0; axis < 3; axis++ {
		lower, upper := g.Extent(axis)
		test.That(t, lower <= 0, test.ShouldBeTrue)
		test.That(t, upper >= 3, test.ShouldBeTrue)
	}
}

func TestMakeGridEmptySource(t *testing.T) {
	src := NewInMemorySource(nil)
	_, err := MakeGrid(context.Background(), src, 1)
	_, ok := err.(*bucketerr.EmptyInputError)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestDriverRunEmitsTreesCoveringEverySplat(t *testing.T) {
	src := NewInMemorySource([][]splat.Splat{testSplats()})
	driver := NewDriver(golog.NewTestLogger(t))

	opts := Options{
		CellSize: 1,
		Bucket:   bucket.BucketOptions{MaxSplats: 8, MaxCells: 64, MaxSplit: 100, LeafCells: 1},
	}

	var results []BucketResult
	err := driver.Run(context.Background(), src, opts, func(ctx context.Context, result BucketResult) error {
		results = append(results, result)
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(results), test.ShouldBeGreaterThan, 0)

	total := 0
	for _, r := range results {
		test.That(t, r.Tree, test.ShouldNotBeNil)
		test.That(t, len(r.Tree.IDs), test.ShouldEqual, len(r.Splats))
		total += len(r.Splats)
	}
	test.That(t, total, test.ShouldEqual, len(testSplats()))
}

func TestInMemorySourceReadOutOfRange(t *testing.T) {
	src := NewInMemorySource([][]splat.Splat{testSplats()})
	_, err := src.Read(context.Background(), 0, 0, uint64(len(testSplats())+1))
	_, ok := err.(*bucketerr.OutOfRangeError)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = src.Read(context.Background(), 5, 0, 0)
	_, ok = err.(*bucketerr.OutOfRangeError)
	test.That(t, ok, test.ShouldBeTrue)
}
