package session

import (
	"time"

	"github.com/golang/geo/r2"

	"crosswatch/internal/alert"
	"crosswatch/internal/counting"
	"crosswatch/internal/geometry"
)

// UnknownFace is the name a recognizer reports for an unmatched face
const UnknownFace = "Unknown"

// Detection is one labelled bounding box from the object detector
type Detection struct {
	Class      string       `json:"class"`
	Confidence float64      `json:"confidence"`
	Box        geometry.Box `json:"bbox"`
}

// Face is one recognized (or unknown) face from the face recognizer
type Face struct {
	Name       string       `json:"name"`
	Confidence float64      `json:"confidence"`
	Box        geometry.Box `json:"bbox"`
}

// FrameInput is everything the session needs to know about one frame.
// Frame is the encoded JPEG, kept only for publishing.
type FrameInput struct {
	Time       time.Time
	Detections []Detection
	Faces      []Face
	Frame      []byte
	Width      int
	Height     int
}

// Recognition is the first sighting of a named face in a session
type Recognition struct {
	Name       string       `json:"name"`
	Confidence float64      `json:"confidence"`
	Box        geometry.Box `json:"bbox"`
	FrameIndex uint64       `json:"frame_index"`
	Time       time.Time    `json:"time"`
}

// Report is the outcome of one ProcessFrame call
type Report struct {
	SessionID        string              `json:"session_id"`
	FrameIndex       uint64              `json:"frame_index"`
	Time             time.Time           `json:"time"`
	Tracks           map[int]r2.Point    `json:"tracks"`
	In               int                 `json:"in"`
	Out              int                 `json:"out"`
	Crossings        []counting.Crossing `json:"crossings,omitempty"`
	ViolationPresent bool                `json:"violation_present"`
	Alert            *alert.Event        `json:"alert,omitempty"`
	Recognitions     []Recognition       `json:"recognitions,omitempty"`

	// Frame is the input frame, handed through for side-effect consumers
	Frame []byte `json:"-"`
}

// Status of the source feeding a session
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)
