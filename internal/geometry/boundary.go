// Package geometry classifies image-space points against a counting boundary.
package geometry

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
)

// ErrInvalidBoundary is returned when a boundary configuration is incomplete or degenerate
var ErrInvalidBoundary = errors.New("invalid boundary")

// Side is the discrete side of a boundary a point lies on
type Side string

const (
	SideNone   Side = ""
	SideTop    Side = "top"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
	SideRight  Side = "right"
)

// BoundaryType identifies the boundary variant
type BoundaryType string

const (
	BoundaryHorizontal BoundaryType = "horizontal"
	BoundaryVertical   BoundaryType = "vertical"
	BoundarySegment    BoundaryType = "custom"
)

// Boundary is an immutable counting line. Build one with Horizontal, Vertical,
// Segment or BoundaryConfig.Build.
type Boundary struct {
	kind BoundaryType
	pos  float64
	p1   r2.Point
	p2   r2.Point
}

// Horizontal returns a boundary at a fixed y
func Horizontal(y float64) Boundary {
	return Boundary{kind: BoundaryHorizontal, pos: y}
}

// Vertical returns a boundary at a fixed x
func Vertical(x float64) Boundary {
	return Boundary{kind: BoundaryVertical, pos: x}
}

// Segment returns an oriented boundary from p1 to p2. The two points must differ.
func Segment(p1, p2 r2.Point) (Boundary, error) {
	if p1 == p2 {
		return Boundary{}, fmt.Errorf("%w: segment endpoints coincide at %v", ErrInvalidBoundary, p1)
	}
	return Boundary{kind: BoundarySegment, p1: p1, p2: p2}, nil
}

// DefaultBoundary is used when a session has no boundary configuration:
// a horizontal line through the middle of the frame.
func DefaultBoundary(frameHeight int) Boundary {
	return Horizontal(float64(frameHeight / 2))
}

// Type returns the boundary variant
func (b Boundary) Type() BoundaryType {
	return b.kind
}

// IsZero reports whether b was never configured
func (b Boundary) IsZero() bool {
	return b.kind == ""
}

// Position returns the fixed coordinate of an axis-aligned boundary
func (b Boundary) Position() float64 {
	return b.pos
}

// Endpoints returns the segment endpoints. Axis-aligned boundaries return zero points.
func (b Boundary) Endpoints() (r2.Point, r2.Point) {
	return b.p1, b.p2
}

// SideOf classifies p against the boundary.
//
// For a segment the label comes from the sign of (p2-p1) x (p-p1): strictly
// positive is SideLeft, anything else (including points on the line) is
// SideRight. In image coordinates, where y grows downward, a positive cross
// product means p lies clockwise of the segment direction. Crossing counters
// treat left->right as OUT, so swapping p1 and p2 swaps IN and OUT.
func (b Boundary) SideOf(p r2.Point) Side {
	switch b.kind {
	case BoundaryHorizontal:
		if p.Y < b.pos {
			return SideTop
		}
		return SideBottom
	case BoundaryVertical:
		if p.X < b.pos {
			return SideLeft
		}
		return SideRight
	case BoundarySegment:
		if b.p2.Sub(b.p1).Cross(p.Sub(b.p1)) > 0 {
			return SideLeft
		}
		return SideRight
	default:
		return SideNone
	}
}

// SideOf classifies p against b
func SideOf(p r2.Point, b Boundary) Side {
	return b.SideOf(p)
}

func (b Boundary) String() string {
	switch b.kind {
	case BoundaryHorizontal:
		return fmt.Sprintf("horizontal(y=%g)", b.pos)
	case BoundaryVertical:
		return fmt.Sprintf("vertical(x=%g)", b.pos)
	case BoundarySegment:
		return fmt.Sprintf("segment(%g,%g -> %g,%g)", b.p1.X, b.p1.Y, b.p2.X, b.p2.Y)
	default:
		return "unset"
	}
}

// Box is an axis-aligned bounding box in pixel coordinates
type Box struct {
	X1 float64 `json:"x1"` // Left
	Y1 float64 `json:"y1"` // Top
	X2 float64 `json:"x2"` // Right
	Y2 float64 `json:"y2"` // Bottom
}

// Centroid returns the center of the box
func (b Box) Centroid() r2.Point {
	return r2.Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}
