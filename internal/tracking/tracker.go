// Package tracking assigns stable integer identities to detections across
// frames by nearest-centroid association.
//
// Association is greedy: the globally closest (track, detection) pair is bound
// first, then the next closest among the remaining, and so on. This is not an
// optimal assignment and two objects whose paths cross can swap IDs.
package tracking

import (
	"errors"
	"fmt"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"crosswatch/internal/geometry"
)

// DefaultMaxDisappeared is the number of consecutive missed frames a track survives
const DefaultMaxDisappeared = 30

// ErrInvalidConfig is returned for an unusable tracker configuration
var ErrInvalidConfig = errors.New("invalid tracker config")

// Track is one active identity
type Track struct {
	ID          int
	Centroid    r2.Point
	Disappeared int // Frames since last association

	// Crossing state, owned by the crossing counter
	StartSide geometry.Side // Side at first observation, SideNone until then
	Counted   bool          // Set once a crossing has been attributed to this track
}

// Tracker is the per-session track store. It is not safe for concurrent use;
// a single frame loop owns it.
type Tracker struct {
	maxDisappeared int
	nextID         int
	tracks         map[int]*Track
}

// New creates a tracker that drops a track once it has gone unmatched for
// more than maxDisappeared consecutive frames
func New(maxDisappeared int) (*Tracker, error) {
	if maxDisappeared < 0 {
		return nil, fmt.Errorf("%w: max disappeared must be >= 0, got %d", ErrInvalidConfig, maxDisappeared)
	}
	return &Tracker{
		maxDisappeared: maxDisappeared,
		tracks:         make(map[int]*Track),
	}, nil
}

// MaxDisappeared returns the configured disappearance limit
func (t *Tracker) MaxDisappeared() int {
	return t.maxDisappeared
}

// Len returns the number of active tracks
func (t *Tracker) Len() int {
	return len(t.tracks)
}

// Get returns the active track with the given ID
func (t *Tracker) Get(id int) (*Track, bool) {
	tr, ok := t.tracks[id]
	return tr, ok
}

// Update associates this frame's boxes with the active tracks and returns the
// centroid of every track still alive afterwards
func (t *Tracker) Update(boxes []geometry.Box) map[int]r2.Point {
	if len(boxes) == 0 {
		for _, id := range t.ids() {
			t.age(id)
		}
		return t.Objects()
	}

	centroids := make([]r2.Point, len(boxes))
	for i, b := range boxes {
		centroids[i] = b.Centroid()
	}

	if len(t.tracks) == 0 {
		for _, c := range centroids {
			t.register(c)
		}
		return t.Objects()
	}

	ids := t.ids()
	dist := t.distances(ids, centroids)

	usedRows := make(map[int]bool, len(ids))
	usedCols := make(map[int]bool, len(centroids))
	for _, m := range greedyMatch(dist) {
		tr := t.tracks[ids[m.row]]
		tr.Centroid = centroids[m.col]
		tr.Disappeared = 0
		usedRows[m.row] = true
		usedCols[m.col] = true
	}

	for row, id := range ids {
		if !usedRows[row] {
			t.age(id)
		}
	}
	for col, c := range centroids {
		if !usedCols[col] {
			t.register(c)
		}
	}

	return t.Objects()
}

// Objects returns a copy of the current track ID -> centroid mapping
func (t *Tracker) Objects() map[int]r2.Point {
	out := make(map[int]r2.Point, len(t.tracks))
	for id, tr := range t.tracks {
		out[id] = tr.Centroid
	}
	return out
}

// Active returns the live tracks in ascending ID order. The pointers stay
// owned by the tracker and are valid until the next Update.
func (t *Tracker) Active() []*Track {
	ids := t.ids()
	out := make([]*Track, len(ids))
	for i, id := range ids {
		out[i] = t.tracks[id]
	}
	return out
}

func (t *Tracker) register(c r2.Point) {
	t.tracks[t.nextID] = &Track{ID: t.nextID, Centroid: c}
	t.nextID++
}

func (t *Tracker) age(id int) {
	tr := t.tracks[id]
	tr.Disappeared++
	if tr.Disappeared > t.maxDisappeared {
		delete(t.tracks, id)
	}
}

func (t *Tracker) ids() []int {
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// distances builds the track x detection Euclidean distance matrix
func (t *Tracker) distances(ids []int, centroids []r2.Point) *mat.Dense {
	d := mat.NewDense(len(ids), len(centroids), nil)
	for i, id := range ids {
		from := t.tracks[id].Centroid
		for j, to := range centroids {
			d.Set(i, j, from.Sub(to).Norm())
		}
	}
	return d
}

type match struct {
	row, col int
}

// greedyMatch binds the globally smallest remaining distance until rows or
// columns run out. Equal distances resolve in row-major order.
func greedyMatch(d *mat.Dense) []match {
	rows, cols := d.Dims()

	type cell struct {
		row, col int
		dist     float64
	}
	cells := make([]cell, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			cells = append(cells, cell{row: i, col: j, dist: d.At(i, j)})
		}
	}
	sort.SliceStable(cells, func(a, b int) bool {
		return cells[a].dist < cells[b].dist
	})

	limit := min(rows, cols)
	usedRows := make([]bool, rows)
	usedCols := make([]bool, cols)
	matches := make([]match, 0, limit)
	for _, c := range cells {
		if len(matches) == limit {
			break
		}
		if usedRows[c.row] || usedCols[c.col] {
			continue
		}
		usedRows[c.row] = true
		usedCols[c.col] = true
		matches = append(matches, match{row: c.row, col: c.col})
	}
	return matches
}
