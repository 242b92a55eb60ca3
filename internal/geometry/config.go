package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/golang/geo/r2"
)

// BoundaryConfig is the on-disk / API form of a boundary:
//
//	{"type": "horizontal", "y": 240}
//	{"type": "vertical", "x": 320}
//	{"type": "custom", "line_points": [[100, 50], [500, 400]]}
type BoundaryConfig struct {
	Type       BoundaryType `json:"type"`
	X          *float64     `json:"x,omitempty"`
	Y          *float64     `json:"y,omitempty"`
	LinePoints [][]float64  `json:"line_points,omitempty"`
}

// Build validates the configuration and returns the boundary it describes.
// A missing type is accepted when line_points are present.
func (c BoundaryConfig) Build() (Boundary, error) {
	kind := c.Type
	if kind == "" && len(c.LinePoints) > 0 {
		kind = BoundarySegment
	}

	switch kind {
	case BoundaryHorizontal:
		if c.Y == nil {
			return Boundary{}, fmt.Errorf("%w: horizontal boundary requires y", ErrInvalidBoundary)
		}
		return Horizontal(*c.Y), nil

	case BoundaryVertical:
		if c.X == nil {
			return Boundary{}, fmt.Errorf("%w: vertical boundary requires x", ErrInvalidBoundary)
		}
		return Vertical(*c.X), nil

	case BoundarySegment:
		if len(c.LinePoints) != 2 {
			return Boundary{}, fmt.Errorf("%w: custom boundary requires exactly 2 line_points, got %d",
				ErrInvalidBoundary, len(c.LinePoints))
		}
		pts := make([]r2.Point, 2)
		for i, lp := range c.LinePoints {
			if len(lp) != 2 {
				return Boundary{}, fmt.Errorf("%w: line_points[%d] must be [x, y]", ErrInvalidBoundary, i)
			}
			pts[i] = r2.Point{X: lp[0], Y: lp[1]}
		}
		return Segment(pts[0], pts[1])

	case "":
		return Boundary{}, fmt.Errorf("%w: missing type", ErrInvalidBoundary)

	default:
		return Boundary{}, fmt.Errorf("%w: unknown type %q", ErrInvalidBoundary, kind)
	}
}

// ParseBoundary decodes a JSON boundary configuration and builds it
func ParseBoundary(data []byte) (Boundary, error) {
	var cfg BoundaryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Boundary{}, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
	}
	return cfg.Build()
}

// Config returns the configuration form of b, suitable for JSON encoding
func (b Boundary) Config() BoundaryConfig {
	switch b.kind {
	case BoundaryHorizontal:
		y := b.pos
		return BoundaryConfig{Type: BoundaryHorizontal, Y: &y}
	case BoundaryVertical:
		x := b.pos
		return BoundaryConfig{Type: BoundaryVertical, X: &x}
	case BoundarySegment:
		return BoundaryConfig{
			Type:       BoundarySegment,
			LinePoints: [][]float64{{b.p1.X, b.p1.Y}, {b.p2.X, b.p2.Y}},
		}
	default:
		return BoundaryConfig{}
	}
}
