package session

import (
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/geometry"
)

func TestPublisher_CopyOnRead(t *testing.T) {
	p := NewPublisher()
	frame := []byte{1, 2, 3}
	p.Publish(Snapshot{
		Frame:    frame,
		Tracks:   map[int]TrackView{1: {Centroid: r2.Point{X: 1}}},
		Boundary: geometry.BoundaryConfig{Type: geometry.BoundarySegment, LinePoints: [][]float64{{0, 0}, {1, 1}}},
	})
	frame[0] = 99

	got := p.Latest()
	require.Equal(t, []byte{1, 2, 3}, got.Frame)

	got.Frame[1] = 42
	got.Tracks[2] = TrackView{}
	got.Boundary.LinePoints[0][0] = 7

	again := p.Latest()
	assert.Equal(t, []byte{1, 2, 3}, again.Frame)
	assert.Len(t, again.Tracks, 1)
	assert.Equal(t, 0.0, again.Boundary.LinePoints[0][0])
}

func TestPublisher_ChangedClosedOnPublish(t *testing.T) {
	p := NewPublisher()
	ch := p.Changed()

	select {
	case <-ch:
		t.Fatal("changed before publish")
	default:
	}

	p.Publish(Snapshot{FrameIndex: 5})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("changed not closed")
	}
	assert.NotEqual(t, ch, p.Changed())
}

func TestPublisher_StatusAndFPS(t *testing.T) {
	p := NewPublisher()
	p.SetStatus(StatusRunning)
	p.SetFPS(12.5)

	status, fps := p.Status()
	assert.Equal(t, StatusRunning, status)
	assert.Equal(t, 12.5, fps)
	assert.Equal(t, StatusRunning, p.Latest().Status)
}

func TestPublisher_ReadersSeeConsistentCounts(t *testing.T) {
	p := NewPublisher()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := p.Latest()
				// Writer keeps In == Out; a torn read would break this
				assert.Equal(t, s.In, s.Out)
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		p.Publish(Snapshot{In: i, Out: i, Frame: []byte{byte(i)}})
	}
	close(stop)
	wg.Wait()
}
