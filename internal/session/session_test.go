package session

import (
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/alert"
	"crosswatch/internal/counting"
	"crosswatch/internal/geometry"
	"crosswatch/internal/logging"
	"crosswatch/internal/timeutil"
	"crosswatch/internal/tracking"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func person(x, y float64) Detection {
	return Detection{Class: DefaultTrackClass, Confidence: 0.9, Box: geometry.Box{X1: x - 10, Y1: y - 10, X2: x + 10, Y2: y + 10}}
}

func phone() Detection {
	return Detection{Class: DefaultViolationClass, Confidence: 0.8, Box: geometry.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}}
}

func newSession(t *testing.T, cfg Config) (*Session, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	s, err := New(cfg, clock, logging.NewTest(t))
	require.NoError(t, err)
	return s, clock
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDisappeared = -1
	_, err := New(cfg, nil, nil)
	assert.ErrorIs(t, err, tracking.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Alert.FrameThreshold = 0
	_, err = New(cfg, nil, nil)
	assert.ErrorIs(t, err, alert.ErrInvalidConfig)
}

func TestProcessFrame_DefaultBoundaryFromFrameHeight(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())
	assert.True(t, s.Boundary().IsZero())

	s.ProcessFrame(FrameInput{Width: 640, Height: 480})

	assert.Equal(t, geometry.Horizontal(240), s.Boundary())
}

func TestProcessFrame_CountsCrossingOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Boundary = geometry.Horizontal(100)
	s, _ := newSession(t, cfg)

	var crossings []counting.Crossing
	for _, y := range []float64{60, 80, 95, 105, 120, 98, 130} {
		r := s.ProcessFrame(FrameInput{Detections: []Detection{person(50, y)}})
		crossings = append(crossings, r.Crossings...)
	}

	require.Len(t, crossings, 1)
	assert.Equal(t, counting.DirectionOut, crossings[0].Direction)
	in, out := s.Counts()
	assert.Equal(t, 0, in)
	assert.Equal(t, 1, out)
}

func TestProcessFrame_OnlyTrackClassIsTracked(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())

	r := s.ProcessFrame(FrameInput{
		Height:     480,
		Detections: []Detection{person(100, 100), phone(), {Class: "CHAIR", Box: geometry.Box{X2: 4, Y2: 4}}},
	})

	assert.Equal(t, map[int]r2.Point{0: {X: 100, Y: 100}}, r.Tracks)
	assert.True(t, r.ViolationPresent)
}

func TestProcessFrame_EmptyTrackClassTracksEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrackClass = ""
	s, _ := newSession(t, cfg)

	r := s.ProcessFrame(FrameInput{Detections: []Detection{person(100, 100), phone()}})
	assert.Len(t, r.Tracks, 2)
}

func TestProcessFrame_ViolationAlertDebounced(t *testing.T) {
	s, clock := newSession(t, DefaultConfig())

	r := s.ProcessFrame(FrameInput{Detections: []Detection{phone()}})
	assert.Nil(t, r.Alert)

	r = s.ProcessFrame(FrameInput{Detections: []Detection{phone()}})
	require.NotNil(t, r.Alert)
	assert.Equal(t, uint64(1), r.Alert.FrameIndex)

	clock.Advance(time.Second)
	r = s.ProcessFrame(FrameInput{Detections: []Detection{phone()}})
	assert.Nil(t, r.Alert)

	clock.Advance(4 * time.Second)
	r = s.ProcessFrame(FrameInput{Detections: []Detection{phone()}})
	require.NotNil(t, r.Alert)
	assert.Equal(t, epoch.Add(5*time.Second), r.Alert.Time)

	assert.Len(t, s.Publisher().Latest().Alerts, 2)
}

func TestProcessFrame_RecognitionsDeduplicated(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())
	faces := []Face{{Name: "Alice"}, {Name: UnknownFace}, {Name: ""}, {Name: "Bob"}, {Name: "Alice"}}

	r := s.ProcessFrame(FrameInput{Faces: faces})
	var names []string
	for _, rec := range r.Recognitions {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"Alice", "Bob"}, names)

	r = s.ProcessFrame(FrameInput{Faces: faces})
	assert.Empty(t, r.Recognitions)
}

func TestProcessFrame_UsesFrameTimeWhenGiven(t *testing.T) {
	s, _ := newSession(t, DefaultConfig())
	ts := epoch.Add(-time.Hour)

	r := s.ProcessFrame(FrameInput{Time: ts})
	assert.Equal(t, ts, r.Time)

	r = s.ProcessFrame(FrameInput{})
	assert.Equal(t, epoch, r.Time)
	assert.Equal(t, uint64(1), r.FrameIndex)
}

func TestProcessFrame_PublishesSnapshot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Boundary = geometry.Vertical(320)
	s, _ := newSession(t, cfg)
	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}

	r := s.ProcessFrame(FrameInput{
		Detections: []Detection{person(100, 50)},
		Faces:      []Face{{Name: "Alice"}},
		Frame:      frame,
		Width:      640,
		Height:     480,
	})

	want := Snapshot{
		SessionID:    s.ID(),
		Status:       StatusIdle,
		Frame:        frame,
		Width:        640,
		Height:       480,
		FrameIndex:   0,
		Frames:       1,
		Tracks:       map[int]TrackView{0: {Centroid: r2.Point{X: 100, Y: 50}, StartSide: geometry.SideLeft}},
		Recognitions: r.Recognitions,
		Boundary:     geometry.Vertical(320).Config(),
		UpdatedAt:    epoch,
	}
	if diff := cmp.Diff(want, s.Publisher().Latest()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Boundary = geometry.Horizontal(100)
	s, _ := newSession(t, cfg)
	s.Publisher().SetStatus(StatusRunning)

	s.ProcessFrame(FrameInput{Detections: []Detection{person(10, 50), phone()}, Faces: []Face{{Name: "Alice"}}})
	s.ProcessFrame(FrameInput{Detections: []Detection{person(10, 150), phone()}, Faces: []Face{{Name: "Alice"}}})
	oldID := s.ID()
	_, out := s.Counts()
	require.Equal(t, 1, out)

	s.Reset()

	assert.NotEqual(t, oldID, s.ID())
	in, out := s.Counts()
	assert.Zero(t, in)
	assert.Zero(t, out)
	assert.Zero(t, s.Frames())

	snap := s.Publisher().Latest()
	assert.Equal(t, s.ID(), snap.SessionID)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Empty(t, snap.Tracks)
	assert.Empty(t, snap.Alerts)

	r := s.ProcessFrame(FrameInput{Detections: []Detection{person(10, 50), phone()}, Faces: []Face{{Name: "Alice"}}})
	assert.Equal(t, map[int]r2.Point{0: {X: 10, Y: 50}}, r.Tracks, "IDs restart in a new session")
	assert.Len(t, r.Recognitions, 1)
	assert.Nil(t, r.Alert, "gate run length cleared")
}
