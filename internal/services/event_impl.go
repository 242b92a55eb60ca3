package services

import (
	"context"
	"time"

	"crosswatch/internal/database"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventStore is the read side of the event database
type EventStore interface {
	ListSessions(sourceID string, limit int) ([]*database.SessionRecord, error)
	ListCrossings(f database.EventFilter) ([]*database.CrossingRecord, error)
	ListAlerts(f database.EventFilter) ([]*database.AlertRecord, error)
	ListRecognitions(f database.EventFilter) ([]*database.RecognitionRecord, error)
}

var _ EventStore = (*database.Database)(nil)

// EventQuery filters persisted events
type EventQuery struct {
	SourceID  string
	SessionID string
	Since     *time.Time
	Limit     int
}

// EventImplementation implements the event history service
type EventImplementation struct {
	store EventStore
}

// NewEventService creates a new event service implementation
func NewEventService(store EventStore) *EventImplementation {
	return &EventImplementation{store: store}
}

// Sessions lists recorded sessions, newest first
func (e *EventImplementation) Sessions(ctx context.Context, q *EventQuery) ([]*database.SessionRecord, error) {
	f := q.filter()
	return orEmpty(e.store.ListSessions(f.SourceID, f.Limit))
}

// Crossings lists recorded line crossings
func (e *EventImplementation) Crossings(ctx context.Context, q *EventQuery) ([]*database.CrossingRecord, error) {
	return orEmpty(e.store.ListCrossings(q.filter()))
}

// Alerts lists recorded violation alerts
func (e *EventImplementation) Alerts(ctx context.Context, q *EventQuery) ([]*database.AlertRecord, error) {
	return orEmpty(e.store.ListAlerts(q.filter()))
}

// Recognitions lists recorded first-time recognitions
func (e *EventImplementation) Recognitions(ctx context.Context, q *EventQuery) ([]*database.RecognitionRecord, error) {
	return orEmpty(e.store.ListRecognitions(q.filter()))
}

func (q *EventQuery) filter() database.EventFilter {
	if q == nil {
		return database.EventFilter{Limit: defaultEventLimit}
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultEventLimit
	case limit > maxEventLimit:
		limit = maxEventLimit
	}
	return database.EventFilter{
		SourceID:  q.SourceID,
		SessionID: q.SessionID,
		Since:     q.Since,
		Limit:     limit,
	}
}

// orEmpty keeps JSON arrays from encoding as null
func orEmpty[T any](items []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
