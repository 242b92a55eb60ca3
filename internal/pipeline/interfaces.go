package pipeline

import (
	"context"

	"crosswatch/internal/session"
)

// Detector is the object detection backend
type Detector interface {
	// Name returns the detector identifier
	Name() string

	// IsHealthy returns true if the detector is operational
	IsHealthy() bool

	// Detect runs detection on a frame and returns labelled boxes
	Detect(ctx context.Context, frame *FrameData) (*DetectionResult, error)

	// Close releases detector resources
	Close() error
}

// FaceRecognizer names the faces in a frame
type FaceRecognizer interface {
	Name() string
	IsHealthy() bool
	Recognize(ctx context.Context, frame *FrameData) (*FaceResult, error)
	Close() error
}

// FrameSubscription represents an active subscription to frame data
type FrameSubscription struct {
	SourceID string
	Channel  chan *FrameData
	Done     chan struct{} // Closed when subscription is cancelled
}

// FrameProvider captures frames from video sources and broadcasts to subscribers
type FrameProvider interface {
	// Start begins capturing frames from the specified source
	Start(sourceID string, device string, fps int, width int, height int) error

	// Stop halts frame capture for a source
	Stop(sourceID string) error

	// Subscribe returns a channel that receives frames for a source
	// Caller must call Unsubscribe when done to prevent resource leaks
	Subscribe(sourceID string, bufferSize int) (*FrameSubscription, error)

	// Unsubscribe removes a frame subscription
	Unsubscribe(sub *FrameSubscription)

	// IsRunning returns true if a source is actively capturing
	IsRunning(sourceID string) bool

	// GetStats returns capture statistics for a source
	GetStats(sourceID string) *CaptureStats
}

// CaptureStats contains frame capture statistics
type CaptureStats struct {
	SourceID          string  `json:"source_id"`
	FramesCaptured    uint64  `json:"frames_captured"`
	FramesDropped     uint64  `json:"frames_dropped"`
	CurrentFPS        float32 `json:"current_fps"`
	LastFrameTime     int64   `json:"last_frame_time"` // Unix timestamp
	ReconnectAttempts uint64  `json:"reconnect_attempts"`
	Finished          bool    `json:"finished"` // Source reached end of input
}

// FaceStrategy decides on which frames face recognition runs
type FaceStrategy interface {
	// Name returns the strategy identifier
	Name() string

	// ShouldRecognize determines if face recognition should run for this frame
	ShouldRecognize(frame *FrameData) bool

	// OnRecognitionComplete is called after recognition completes
	OnRecognitionComplete(result *FaceResult)

	// Reset clears internal state (e.g., on session reset)
	Reset()
}

// ReportHandler receives the per-frame session reports of every source
type ReportHandler interface {
	OnReport(sourceID string, report *session.Report)
}

// SourceStopHandler is optionally implemented by a ReportHandler that needs to
// know when a source has stopped
type SourceStopHandler interface {
	OnSourceStopped(sourceID string)
}

// ReportHandlerFunc adapts a function to ReportHandler
type ReportHandlerFunc func(sourceID string, report *session.Report)

func (f ReportHandlerFunc) OnReport(sourceID string, report *session.Report) {
	f(sourceID, report)
}

// SourceManager orchestrates one independent pipeline per video source
type SourceManager interface {
	// StartSource initializes capture and processing for a source
	// opts can be nil to use global defaults
	StartSource(sourceID string, device string, opts *SourceOptions) error

	// StopSource halts capture and processing for a source
	StopSource(sourceID string) error

	// ResetSession starts a new counting session for a source
	ResetSession(sourceID string) error

	// Publisher returns the snapshot publisher of a source
	Publisher(sourceID string) (*session.Publisher, bool)

	// Sources lists the IDs of running sources
	Sources() []string

	// GetStats returns pipeline statistics
	GetStats(sourceID string) *PipelineStats

	// SubscribeReports registers a handler for per-frame reports
	SubscribeReports(handler ReportHandler) func() // Returns unsubscribe function

	// Close shuts down every source
	Close() error
}
