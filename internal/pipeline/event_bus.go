package pipeline

import (
	"sync"

	"crosswatch/internal/session"
)

// ReportEvent is what channel subscribers receive
type ReportEvent struct {
	SourceID string
	Report   *session.Report
}

// EventBus provides pub/sub for session reports
// Subscribers receive one report per processed frame
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	sourceFilter string // Empty string means receive all sources
	channel      chan ReportEvent
	handler      ReportHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for reports from all sources
// Returns an unsubscribe function
func (b *EventBus) Subscribe(handler ReportHandler) func() {
	return b.add(&eventSubscription{handler: handler})
}

// SubscribeSource registers a handler for reports from a specific source
// Returns an unsubscribe function
func (b *EventBus) SubscribeSource(sourceID string, handler ReportHandler) func() {
	return b.add(&eventSubscription{sourceFilter: sourceID, handler: handler})
}

func (b *EventBus) add(sub *eventSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a channel that receives reports from all sources
// The channel has the specified buffer size
// Returns the channel and an unsubscribe function
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan ReportEvent, func()) {
	return b.SubscribeSourceChannel("", bufferSize)
}

// SubscribeSourceChannel returns a channel that receives reports for a specific source
func (b *EventBus) SubscribeSourceChannel(sourceID string, bufferSize int) (<-chan ReportEvent, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan ReportEvent, bufferSize)
	sub := &eventSubscription{
		sourceFilter: sourceID,
		channel:      ch,
	}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish sends a report to all subscribers
func (b *EventBus) Publish(sourceID string, report *session.Report) {
	if report == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.sourceFilter != "" && sub.sourceFilter != sourceID {
			continue
		}

		// Handlers are called synchronously to preserve frame ordering
		if sub.handler != nil {
			sub.handler.OnReport(sourceID, report)
		} else if sub.channel != nil {
			select {
			case sub.channel <- ReportEvent{SourceID: sourceID, Report: report}:
			default:
				// Channel full, skip this report
			}
		}
	}
}

// PublishStopped tells every handler implementing SourceStopHandler that a
// source will publish no more reports
func (b *EventBus) PublishStopped(sourceID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.sourceFilter != "" && sub.sourceFilter != sourceID {
			continue
		}
		if h, ok := sub.handler.(SourceStopHandler); ok {
			h.OnSourceStopped(sourceID)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
