package pipeline

import (
	"time"

	"crosswatch/internal/geometry"
	"crosswatch/internal/session"
)

// FaceMode defines when face recognition runs for a source
type FaceMode string

const (
	// FaceModeDisabled - never run face recognition
	FaceModeDisabled FaceMode = "disabled"
	// FaceModeContinuous - run face recognition on every frame
	FaceModeContinuous FaceMode = "continuous"
	// FaceModeEveryNth - run on every Nth frame of the source
	FaceModeEveryNth FaceMode = "every_nth"
	// FaceModeScheduled - run at fixed wall-clock intervals
	FaceModeScheduled FaceMode = "scheduled"
)

// FrameData represents a captured video frame
type FrameData struct {
	SourceID  string    // Source identifier
	Data      []byte    // JPEG frame data
	Seq       uint64    // Frame sequence number
	Timestamp time.Time // Capture timestamp
	Width     int       // Frame width (if known)
	Height    int       // Frame height (if known)
}

// DetectionResult is the object detector's output for one frame
type DetectionResult struct {
	SourceID    string              `json:"source_id"`
	FrameSeq    uint64              `json:"frame_seq"`
	Timestamp   time.Time           `json:"timestamp"`
	Detections  []session.Detection `json:"detections"`
	InferenceMs float32             `json:"inference_ms"`
}

// FaceResult is the face recognizer's output for one frame
type FaceResult struct {
	SourceID    string         `json:"source_id"`
	FrameSeq    uint64         `json:"frame_seq"`
	Timestamp   time.Time      `json:"timestamp"`
	Faces       []session.Face `json:"faces"`
	InferenceMs float32        `json:"inference_ms"`
}

// SourceOptions contains per-source configuration.
// Nil/zero values mean "inherit from global config"
type SourceOptions struct {
	FPS          *int                     `json:"fps,omitempty"`
	Width        *int                     `json:"width,omitempty"`
	Height       *int                     `json:"height,omitempty"`
	Boundary     *geometry.BoundaryConfig `json:"boundary,omitempty"`
	FaceMode     *FaceMode                `json:"face_mode,omitempty"`
	FaceEveryN   *int                     `json:"face_every_n,omitempty"`
	FaceInterval *time.Duration           `json:"face_interval,omitempty"`
	TrackClass   *string                  `json:"track_class,omitempty"`
}

// GlobalConfig contains default settings for every source
type GlobalConfig struct {
	FPS          int
	Width        int
	Height       int
	Boundary     geometry.Boundary // Zero means half the frame height
	FaceMode     FaceMode
	FaceEveryN   int
	FaceInterval time.Duration
	Session      session.Config
}

// EffectiveConfig represents the merged configuration for a source
// (source overrides applied to global defaults)
type EffectiveConfig struct {
	SourceID     string
	Device       string
	FPS          int
	Width        int
	Height       int
	FaceMode     FaceMode
	FaceEveryN   int
	FaceInterval time.Duration
	Session      session.Config
}

// DefaultGlobalConfig returns sensible defaults for global source config
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		FPS:          15,
		Width:        640,
		Height:       480,
		FaceMode:     FaceModeEveryNth,
		FaceEveryN:   5,
		FaceInterval: time.Second,
		Session:      session.DefaultConfig(),
	}
}

// MergeWithGlobal merges source-specific options with global defaults
func (o *SourceOptions) MergeWithGlobal(sourceID, device string, global *GlobalConfig) (*EffectiveConfig, error) {
	if global == nil {
		global = DefaultGlobalConfig()
	}

	effective := &EffectiveConfig{
		SourceID:     sourceID,
		Device:       device,
		FPS:          global.FPS,
		Width:        global.Width,
		Height:       global.Height,
		FaceMode:     global.FaceMode,
		FaceEveryN:   global.FaceEveryN,
		FaceInterval: global.FaceInterval,
		Session:      global.Session,
	}
	effective.Session.Boundary = global.Boundary

	if o == nil {
		return effective, nil
	}

	// Apply source-specific overrides
	if o.FPS != nil {
		effective.FPS = *o.FPS
	}
	if o.Width != nil {
		effective.Width = *o.Width
	}
	if o.Height != nil {
		effective.Height = *o.Height
	}
	if o.FaceMode != nil {
		effective.FaceMode = *o.FaceMode
	}
	if o.FaceEveryN != nil {
		effective.FaceEveryN = *o.FaceEveryN
	}
	if o.FaceInterval != nil {
		effective.FaceInterval = *o.FaceInterval
	}
	if o.TrackClass != nil {
		effective.Session.TrackClass = *o.TrackClass
	}
	if o.Boundary != nil {
		b, err := o.Boundary.Build()
		if err != nil {
			return nil, err
		}
		effective.Session.Boundary = b
	}

	return effective, nil
}

// PipelineStats contains per-source pipeline metrics
type PipelineStats struct {
	SourceID        string         `json:"source_id"`
	Device          string         `json:"device"`
	SessionID       string         `json:"session_id"`
	Status          session.Status `json:"status"`
	CaptureStats    *CaptureStats  `json:"capture,omitempty"`
	FramesProcessed uint64         `json:"frames_processed"`
	FramesSkipped   uint64         `json:"frames_skipped"`
	DetectionErrors uint64         `json:"detection_errors"`
	Recognitions    uint64         `json:"recognitions_run"`
	AvgInferenceMs  float32        `json:"avg_inference_ms"`
	ProcessingFPS   float32        `json:"processing_fps"`
	In              int            `json:"in"`
	Out             int            `json:"out"`
	ActiveTracks    int            `json:"active_tracks"`
	FaceStrategy    string         `json:"face_strategy"`
	LastFrameTime   int64          `json:"last_frame_time"`
	StartedAt       time.Time      `json:"started_at"`
}
