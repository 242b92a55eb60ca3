package session

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/golang/geo/r2"

	"crosswatch/internal/alert"
	"crosswatch/internal/geometry"
)

// TrackView is the read-only view of a track in a snapshot
type TrackView struct {
	Centroid    r2.Point      `json:"centroid"`
	Disappeared int           `json:"disappeared"`
	StartSide   geometry.Side `json:"start_side,omitempty"`
	Counted     bool          `json:"counted"`
}

// Snapshot is the latest published state of a session
type Snapshot struct {
	SessionID    string                  `json:"session_id"`
	Status       Status                  `json:"status"`
	FPS          float64                 `json:"fps"`
	Frame        []byte                  `json:"-"`
	Width        int                     `json:"width"`
	Height       int                     `json:"height"`
	FrameIndex   uint64                  `json:"frame_index"`
	Frames       uint64                  `json:"frames"`
	Tracks       map[int]TrackView       `json:"tracks"`
	In           int                     `json:"in"`
	Out          int                     `json:"out"`
	Alerts       []alert.Event           `json:"alerts"`
	Recognitions []Recognition           `json:"recognitions"`
	Boundary     geometry.BoundaryConfig `json:"boundary"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// Clone returns a deep copy of s
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Frame = slices.Clone(s.Frame)
	out.Tracks = maps.Clone(s.Tracks)
	if out.Tracks == nil {
		out.Tracks = map[int]TrackView{}
	}
	out.Alerts = slices.Clone(s.Alerts)
	out.Recognitions = slices.Clone(s.Recognitions)
	if s.Boundary.LinePoints != nil {
		out.Boundary.LinePoints = make([][]float64, len(s.Boundary.LinePoints))
		for i, pt := range s.Boundary.LinePoints {
			out.Boundary.LinePoints[i] = slices.Clone(pt)
		}
	}
	return out
}

// Publisher holds the latest snapshot of one session. The frame loop
// publishes; any number of readers take copies.
type Publisher struct {
	mu      sync.RWMutex
	latest  Snapshot
	changed chan struct{}
}

// NewPublisher returns a publisher holding an empty idle snapshot
func NewPublisher() *Publisher {
	return &Publisher{
		latest:  Snapshot{Status: StatusIdle, Tracks: map[int]TrackView{}},
		changed: make(chan struct{}),
	}
}

// Publish replaces the latest snapshot and wakes waiting readers
func (p *Publisher) Publish(s Snapshot) {
	s = s.Clone()
	p.mu.Lock()
	p.latest = s
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// Latest returns a copy of the most recent snapshot
func (p *Publisher) Latest() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest.Clone()
}

// Status returns the status and frame rate without copying the snapshot
func (p *Publisher) Status() (Status, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest.Status, p.latest.FPS
}

// Changed returns a channel closed on the next Publish
func (p *Publisher) Changed() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}

// SetStatus updates the status of the latest snapshot
func (p *Publisher) SetStatus(status Status) {
	p.update(func(s *Snapshot) { s.Status = status })
}

// SetFPS updates the measured frame rate of the latest snapshot
func (p *Publisher) SetFPS(fps float64) {
	p.update(func(s *Snapshot) { s.FPS = fps })
}

func (p *Publisher) update(fn func(*Snapshot)) {
	p.mu.Lock()
	fn(&p.latest)
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}
