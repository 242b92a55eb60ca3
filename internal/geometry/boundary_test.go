package geometry

import (
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSideOf_Horizontal(t *testing.T) {
	b := Horizontal(100)

	assert.Equal(t, SideTop, b.SideOf(r2.Point{X: 5, Y: 50}))
	assert.Equal(t, SideBottom, b.SideOf(r2.Point{X: 5, Y: 150}))
	// On the line counts as bottom
	assert.Equal(t, SideBottom, b.SideOf(r2.Point{X: 5, Y: 100}))
}

func TestSideOf_Vertical(t *testing.T) {
	b := Vertical(320)

	assert.Equal(t, SideLeft, b.SideOf(r2.Point{X: 10, Y: 0}))
	assert.Equal(t, SideRight, b.SideOf(r2.Point{X: 400, Y: 0}))
	assert.Equal(t, SideRight, b.SideOf(r2.Point{X: 320, Y: 999}))
}

func TestSideOf_Segment(t *testing.T) {
	b, err := Segment(r2.Point{X: 0, Y: 0}, r2.Point{X: 10, Y: 0})
	require.NoError(t, err)

	above := b.SideOf(r2.Point{X: 5, Y: 5})
	below := b.SideOf(r2.Point{X: 5, Y: -5})

	assert.NotEqual(t, above, below)
	assert.Equal(t, SideLeft, above)
	assert.Equal(t, SideRight, below)
	assert.Equal(t, SideRight, b.SideOf(r2.Point{X: 20, Y: 0}), "collinear points are right")
}

func TestSideOf_SegmentReversedSwapsSides(t *testing.T) {
	fwd, err := Segment(r2.Point{X: 100, Y: 50}, r2.Point{X: 500, Y: 400})
	require.NoError(t, err)
	rev, err := Segment(r2.Point{X: 500, Y: 400}, r2.Point{X: 100, Y: 50})
	require.NoError(t, err)

	for _, p := range []r2.Point{{X: 0, Y: 300}, {X: 600, Y: 0}, {X: 321, Y: 17}} {
		assert.NotEqual(t, fwd.SideOf(p), rev.SideOf(p), "point %v", p)
	}
}

func TestSegment_Degenerate(t *testing.T) {
	_, err := Segment(r2.Point{X: 3, Y: 3}, r2.Point{X: 3, Y: 3})
	assert.True(t, errors.Is(err, ErrInvalidBoundary))
}

func TestSideOf_Unset(t *testing.T) {
	var b Boundary
	assert.True(t, b.IsZero())
	assert.Equal(t, SideNone, SideOf(r2.Point{}, b))
}

func TestDefaultBoundary(t *testing.T) {
	b := DefaultBoundary(481)
	assert.Equal(t, BoundaryHorizontal, b.Type())
	assert.Equal(t, 240.0, b.Position())
}

func TestBoxCentroid(t *testing.T) {
	c := Box{X1: 10, Y1: 20, X2: 30, Y2: 60}.Centroid()
	assert.Equal(t, r2.Point{X: 20, Y: 40}, c)
}
