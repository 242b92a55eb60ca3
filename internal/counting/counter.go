// Package counting turns per-track side observations into one-shot IN/OUT
// crossing counts
package counting

import (
	"github.com/golang/geo/r2"

	"crosswatch/internal/geometry"
	"crosswatch/internal/tracking"
)

// Direction of a counted crossing
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Crossing is emitted once per track, the first frame its side differs from
// the side it was first seen on
type Crossing struct {
	TrackID   int           `json:"track_id"`
	Direction Direction     `json:"direction"`
	From      geometry.Side `json:"from"`
	To        geometry.Side `json:"to"`
	Centroid  r2.Point      `json:"centroid"`
}

// Counter accumulates IN and OUT totals. Totals never decrease.
type Counter struct {
	in  int
	out int
}

// New returns a counter at zero
func New() *Counter {
	return &Counter{}
}

// In returns the number of inward crossings so far
func (c *Counter) In() int { return c.in }

// Out returns the number of outward crossings so far
func (c *Counter) Out() int { return c.out }

// Observe classifies every track against the boundary and counts the ones
// that have left their starting side. Tracks seen for the first time only
// record their baseline side. Crossings are returned in track order.
func (c *Counter) Observe(tracks []*tracking.Track, b geometry.Boundary) []Crossing {
	var crossings []Crossing
	for _, tr := range tracks {
		side := b.SideOf(tr.Centroid)
		if side == geometry.SideNone {
			continue
		}

		if tr.StartSide == geometry.SideNone {
			tr.StartSide = side
			continue
		}
		if tr.Counted || side == tr.StartSide {
			continue
		}

		dir, ok := Classify(tr.StartSide, side)
		if !ok {
			continue
		}
		if dir == DirectionOut {
			c.out++
		} else {
			c.in++
		}
		tr.Counted = true
		crossings = append(crossings, Crossing{
			TrackID:   tr.ID,
			Direction: dir,
			From:      tr.StartSide,
			To:        side,
			Centroid:  tr.Centroid,
		})
	}
	return crossings
}

// Classify maps a side transition to a direction: left to right and top to
// bottom are OUT, the reverse transitions are IN
func Classify(from, to geometry.Side) (Direction, bool) {
	switch {
	case from == geometry.SideLeft && to == geometry.SideRight,
		from == geometry.SideTop && to == geometry.SideBottom:
		return DirectionOut, true
	case from == geometry.SideRight && to == geometry.SideLeft,
		from == geometry.SideBottom && to == geometry.SideTop:
		return DirectionIn, true
	default:
		return "", false
	}
}
