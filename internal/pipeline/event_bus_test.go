package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/session"
)

func TestEventBus_HandlersFilterBySource(t *testing.T) {
	bus := NewEventBus()

	var all, front []string
	unsubAll := bus.Subscribe(ReportHandlerFunc(func(id string, r *session.Report) { all = append(all, id) }))
	bus.SubscribeSource("front", ReportHandlerFunc(func(id string, r *session.Report) { front = append(front, id) }))

	bus.Publish("front", &session.Report{})
	bus.Publish("back", &session.Report{})
	bus.Publish("back", nil)

	assert.Equal(t, []string{"front", "back"}, all)
	assert.Equal(t, []string{"front"}, front)
	assert.Equal(t, 2, bus.SubscriberCount())

	unsubAll()
	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestEventBus_ChannelDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, unsubscribe := bus.SubscribeChannel(1)

	bus.Publish("a", &session.Report{FrameIndex: 1})
	bus.Publish("a", &session.Report{FrameIndex: 2})

	ev := <-ch
	assert.Equal(t, "a", ev.SourceID)
	assert.Equal(t, uint64(1), ev.Report.FrameIndex)

	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	// Second call is a no-op
	unsubscribe()
}

func TestEventBus_CloseReleasesChannels(t *testing.T) {
	bus := NewEventBus()
	ch, _ := bus.SubscribeSourceChannel("a", 0)
	bus.Subscribe(ReportHandlerFunc(func(string, *session.Report) {}))

	bus.Close()

	_, open := <-ch
	require.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())
}

type stopRecorder struct {
	reports int
	stopped []string
}

func (s *stopRecorder) OnReport(string, *session.Report) { s.reports++ }
func (s *stopRecorder) OnSourceStopped(sourceID string) { s.stopped = append(s.stopped, sourceID) }

func TestEventBus_PublishStopped(t *testing.T) {
	bus := NewEventBus()
	all := &stopRecorder{}
	onlyB := &stopRecorder{}
	bus.Subscribe(all)
	bus.SubscribeSource("b", onlyB)
	// Plain handlers and channels are skipped
	bus.Subscribe(ReportHandlerFunc(func(string, *session.Report) {}))
	_, unsubscribe := bus.SubscribeChannel(1)
	defer unsubscribe()

	bus.PublishStopped("a")
	bus.PublishStopped("b")

	assert.Equal(t, []string{"a", "b"}, all.stopped)
	assert.Equal(t, []string{"b"}, onlyB.stopped)
	assert.Zero(t, all.reports)
}
