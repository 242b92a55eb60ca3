// Package session wires the tracker, crossing counter, alert gate and
// recognition deduplicator together for a single video source.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crosswatch/internal/alert"
	"crosswatch/internal/counting"
	"crosswatch/internal/dedup"
	"crosswatch/internal/geometry"
	"crosswatch/internal/logging"
	"crosswatch/internal/timeutil"
	"crosswatch/internal/tracking"
)

// maxHistory bounds the alert and recognition lists kept for snapshots
const maxHistory = 100

const (
	DefaultTrackClass     = "OUT"
	DefaultViolationClass = "MOBILE"
)

// Config for one session
type Config struct {
	// Boundary to count against. Left zero, it becomes a horizontal line at
	// half the height of the first frame that reports one.
	Boundary       geometry.Boundary
	MaxDisappeared int
	// TrackClass selects the detections that are tracked; empty tracks all
	TrackClass string
	// ViolationClass is the class whose presence drives the alert gate
	ViolationClass string
	Alert          alert.Config
}

// DefaultConfig returns the stock configuration with an unset boundary
func DefaultConfig() Config {
	return Config{
		MaxDisappeared: tracking.DefaultMaxDisappeared,
		TrackClass:     DefaultTrackClass,
		ViolationClass: DefaultViolationClass,
		Alert:          alert.DefaultConfig(),
	}
}

// Session is the per-source processing state. ProcessFrame and Reset must be
// called from a single goroutine; readers use the Publisher.
type Session struct {
	cfg    Config
	clock  timeutil.Clock
	logger logging.Logger

	id       string
	started  time.Time
	frames   uint64
	boundary geometry.Boundary
	tracker  *tracking.Tracker
	counter  *counting.Counter
	gate     *alert.Gate
	names    *dedup.Deduplicator

	alerts       []alert.Event
	recognitions []Recognition

	publisher *Publisher
}

// New validates cfg and returns a fresh session
func New(cfg Config, clock timeutil.Clock, logger logging.Logger) (*Session, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	tracker, err := tracking.New(cfg.MaxDisappeared)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	gate, err := alert.New(cfg.Alert, clock)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		tracker:   tracker,
		counter:   counting.New(),
		gate:      gate,
		names:     dedup.New(),
		publisher: NewPublisher(),
	}
	s.begin()
	return s, nil
}

func (s *Session) begin() {
	s.id = uuid.NewString()
	s.started = s.clock.Now()
	s.boundary = s.cfg.Boundary
	s.publisher.Publish(Snapshot{
		SessionID: s.id,
		Status:    StatusIdle,
		Tracks:    map[int]TrackView{},
		Boundary:  s.boundary.Config(),
		UpdatedAt: s.started,
	})
	s.logger.Infow("session started", "session_id", s.id, "boundary", s.boundary.String())
}

// ID returns the current session ID
func (s *Session) ID() string { return s.id }

// StartedAt returns when the current session began
func (s *Session) StartedAt() time.Time { return s.started }

// Config returns the session configuration
func (s *Session) Config() Config { return s.cfg }

// Boundary returns the boundary in effect, which is zero until resolved
func (s *Session) Boundary() geometry.Boundary { return s.boundary }

// Frames returns the number of frames processed in this session
func (s *Session) Frames() uint64 { return s.frames }

// Counts returns the IN and OUT totals
func (s *Session) Counts() (in, out int) { return s.counter.In(), s.counter.Out() }

// Publisher returns the snapshot publisher shared with readers
func (s *Session) Publisher() *Publisher { return s.publisher }

// ProcessFrame runs one frame through association, counting, alert gating
// and recognition dedup. It performs no I/O.
func (s *Session) ProcessFrame(in FrameInput) Report {
	idx := s.frames
	s.frames++

	now := in.Time
	if now.IsZero() {
		now = s.clock.Now()
	}

	if s.boundary.IsZero() && in.Height > 0 {
		s.boundary = geometry.DefaultBoundary(in.Height)
		s.logger.Infow("using default boundary", "boundary", s.boundary.String())
	}

	var boxes []geometry.Box
	violation := false
	for _, d := range in.Detections {
		if s.cfg.TrackClass == "" || d.Class == s.cfg.TrackClass {
			boxes = append(boxes, d.Box)
		}
		if s.cfg.ViolationClass != "" && d.Class == s.cfg.ViolationClass {
			violation = true
		}
	}

	objects := s.tracker.Update(boxes)
	crossings := s.counter.Observe(s.tracker.Active(), s.boundary)
	for _, c := range crossings {
		s.logger.Infow("crossing counted", "track_id", c.TrackID, "direction", c.Direction,
			"in", s.counter.In(), "out", s.counter.Out())
	}

	report := Report{
		SessionID:        s.id,
		FrameIndex:       idx,
		Time:             now,
		Tracks:           objects,
		In:               s.counter.In(),
		Out:              s.counter.Out(),
		Crossings:        crossings,
		ViolationPresent: violation,
		Frame:            in.Frame,
	}

	if ev, fired := s.gate.Evaluate(violation, idx); fired {
		report.Alert = &ev
		s.alerts = appendBounded(s.alerts, ev)
		s.logger.Warnw("violation alert", "frame", idx, "consecutive", ev.Consecutive)
	}

	for _, f := range in.Faces {
		name := strings.TrimSpace(f.Name)
		if name == "" || name == UnknownFace {
			continue
		}
		if !s.names.NotifyOnce(name) {
			continue
		}
		r := Recognition{Name: name, Confidence: f.Confidence, Box: f.Box, FrameIndex: idx, Time: now}
		report.Recognitions = append(report.Recognitions, r)
		s.recognitions = appendBounded(s.recognitions, r)
		s.logger.Infow("face recognized", "name", name, "frame", idx)
	}

	s.publish(in, report)
	return report
}

func (s *Session) publish(in FrameInput, r Report) {
	tracks := make(map[int]TrackView, len(r.Tracks))
	for _, tr := range s.tracker.Active() {
		tracks[tr.ID] = TrackView{
			Centroid:    tr.Centroid,
			Disappeared: tr.Disappeared,
			StartSide:   tr.StartSide,
			Counted:     tr.Counted,
		}
	}

	status, fps := s.publisher.Status()
	s.publisher.Publish(Snapshot{
		SessionID:    s.id,
		Status:       status,
		FPS:          fps,
		Frame:        in.Frame,
		Width:        in.Width,
		Height:       in.Height,
		FrameIndex:   r.FrameIndex,
		Frames:       s.frames,
		Tracks:       tracks,
		In:           r.In,
		Out:          r.Out,
		Alerts:       s.alerts,
		Recognitions: s.recognitions,
		Boundary:     s.boundary.Config(),
		UpdatedAt:    r.Time,
	})
}

// Reset starts a new session: new ID, no tracks, zero counts, a cleared
// gate and an empty recognition set
func (s *Session) Reset() {
	// Validated in New
	s.tracker, _ = tracking.New(s.cfg.MaxDisappeared)
	s.counter = counting.New()
	s.gate.Reset()
	s.names.Reset()
	s.frames = 0
	s.alerts = nil
	s.recognitions = nil

	status, _ := s.publisher.Status()
	s.begin()
	s.publisher.SetStatus(status)
}

func appendBounded[T any](list []T, v T) []T {
	list = append(list, v)
	if len(list) > maxHistory {
		list = list[len(list)-maxHistory:]
	}
	return list
}
