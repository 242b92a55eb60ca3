package ws

import (
	"sort"
	"time"

	"crosswatch/internal/session"
)

// Message types
const (
	TypeTelemetry   = "telemetry"
	TypeCrossing    = "crossing"
	TypeAlert       = "alert"
	TypeRecognition = "recognition"
)

// TrackPosition is one live track in a telemetry message
type TrackPosition struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// TelemetryMessage carries the per-frame state of a source
type TelemetryMessage struct {
	Type             string          `json:"type"` // "telemetry"
	SourceID         string          `json:"source_id"`
	SessionID        string          `json:"session_id"`
	FrameIndex       uint64          `json:"frame_index"`
	Timestamp        time.Time       `json:"timestamp"`
	In               int             `json:"in"`
	Out              int             `json:"out"`
	Tracks           []TrackPosition `json:"tracks"`
	ViolationPresent bool            `json:"violation_present"`
}

// CrossingMessage announces a counted crossing
type CrossingMessage struct {
	Type      string    `json:"type"` // "crossing"
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
	TrackID   int       `json:"track_id"`
	Direction string    `json:"direction"` // "in" or "out"
	In        int       `json:"in"`
	Out       int       `json:"out"`
}

// AlertMessage announces a fired violation alert
type AlertMessage struct {
	Type        string    `json:"type"` // "alert"
	SourceID    string    `json:"source_id"`
	Timestamp   time.Time `json:"timestamp"`
	FrameIndex  uint64    `json:"frame_index"`
	Consecutive int       `json:"consecutive"`
}

// RecognitionMessage announces the first sighting of a name
type RecognitionMessage struct {
	Type       string    `json:"type"` // "recognition"
	SourceID   string    `json:"source_id"`
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
}

// NewTelemetryMessage summarizes a report, tracks ordered by ID
func NewTelemetryMessage(sourceID string, r *session.Report) *TelemetryMessage {
	tracks := make([]TrackPosition, 0, len(r.Tracks))
	for id, c := range r.Tracks {
		tracks = append(tracks, TrackPosition{ID: id, X: c.X, Y: c.Y})
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })

	return &TelemetryMessage{
		Type:             TypeTelemetry,
		SourceID:         sourceID,
		SessionID:        r.SessionID,
		FrameIndex:       r.FrameIndex,
		Timestamp:        r.Time,
		In:               r.In,
		Out:              r.Out,
		Tracks:           tracks,
		ViolationPresent: r.ViolationPresent,
	}
}

// MessagesFromReport returns the telemetry message followed by one message
// per event in the report
func MessagesFromReport(sourceID string, r *session.Report) []any {
	msgs := []any{NewTelemetryMessage(sourceID, r)}

	for _, c := range r.Crossings {
		msgs = append(msgs, &CrossingMessage{
			Type:      TypeCrossing,
			SourceID:  sourceID,
			Timestamp: r.Time,
			TrackID:   c.TrackID,
			Direction: string(c.Direction),
			In:        r.In,
			Out:       r.Out,
		})
	}
	if r.Alert != nil {
		msgs = append(msgs, &AlertMessage{
			Type:        TypeAlert,
			SourceID:    sourceID,
			Timestamp:   r.Alert.Time,
			FrameIndex:  r.Alert.FrameIndex,
			Consecutive: r.Alert.Consecutive,
		})
	}
	for _, rec := range r.Recognitions {
		msgs = append(msgs, &RecognitionMessage{
			Type:       TypeRecognition,
			SourceID:   sourceID,
			Timestamp:  rec.Time,
			Name:       rec.Name,
			Confidence: rec.Confidence,
		})
	}
	return msgs
}
