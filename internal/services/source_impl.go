package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"crosswatch/internal/alert"
	"crosswatch/internal/geometry"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/session"
)

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// SourceManager is the part of the pipeline manager the API drives
type SourceManager interface {
	StartSource(sourceID, device string, opts *pipeline.SourceOptions) error
	StopSource(sourceID string) error
	ResetSession(sourceID string) error
	Sources() []string
	GetStats(sourceID string) *pipeline.PipelineStats
	GetEffectiveConfig(sourceID string) *pipeline.EffectiveConfig
	Publisher(sourceID string) (*session.Publisher, bool)
}

var _ SourceManager = (*pipeline.SourcePipelineManager)(nil)

// StartPayload starts processing a source
type StartPayload struct {
	ID      string                  `json:"id,omitempty"`
	Device  string                  `json:"device"`
	Options *pipeline.SourceOptions `json:"options,omitempty"`
}

// SourceInfo describes a running source
type SourceInfo struct {
	ID        string                  `json:"id"`
	Device    string                  `json:"device"`
	SessionID string                  `json:"session_id"`
	Status    session.Status          `json:"status"`
	FPS       float64                 `json:"fps"`
	In        int                     `json:"in"`
	Out       int                     `json:"out"`
	Boundary  geometry.BoundaryConfig `json:"boundary"`
	FaceMode  pipeline.FaceMode       `json:"face_mode"`
	StartedAt time.Time               `json:"started_at"`
}

// SourceStats is the live processing state of a source
type SourceStats struct {
	SourceID     string                  `json:"source_id"`
	SessionID    string                  `json:"session_id"`
	Status       session.Status          `json:"status"`
	FrameCount   uint64                  `json:"frame_count"`
	InCount      int                     `json:"in_count"`
	OutCount     int                     `json:"out_count"`
	FPS          float64                 `json:"fps"`
	ActiveTracks int                     `json:"active_tracks"`
	Alerts       int                     `json:"alerts"`
	Recognitions int                     `json:"recognitions"`
	UpdatedAt    time.Time               `json:"updated_at"`
	Pipeline     *pipeline.PipelineStats `json:"pipeline,omitempty"`
}

// ViolationsResult lists the alerts fired in the current session
type ViolationsResult struct {
	Violations []alert.Event `json:"violations"`
	Total      int           `json:"total"`
}

// FacesResult lists the identities recognized in the current session
type FacesResult struct {
	Detections []session.Recognition `json:"detections"`
	Total      int                   `json:"total"`
}

// SourceImplementation implements the source service
type SourceImplementation struct {
	manager SourceManager
}

// NewSourceService creates a new source service implementation
func NewSourceService(manager SourceManager) *SourceImplementation {
	return &SourceImplementation{manager: manager}
}

// List returns every running source
func (s *SourceImplementation) List(ctx context.Context) ([]*SourceInfo, error) {
	ids := s.manager.Sources()
	result := make([]*SourceInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.info(id)
		if err != nil {
			// Stopped between Sources and info
			continue
		}
		result = append(result, info)
	}
	return result, nil
}

// Get returns one running source
func (s *SourceImplementation) Get(ctx context.Context, id string) (*SourceInfo, error) {
	return s.info(id)
}

// Start begins processing a new source. An empty ID is replaced by a UUID.
func (s *SourceImplementation) Start(ctx context.Context, p *StartPayload) (*SourceInfo, error) {
	if p == nil || strings.TrimSpace(p.Device) == "" {
		return nil, &BadRequestError{Message: "device is required"}
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = uuid.New().String()
	}
	if !sourceIDPattern.MatchString(id) {
		return nil, &BadRequestError{Message: "source id must be 1-64 letters, digits, '-' or '_'"}
	}

	if err := s.manager.StartSource(id, strings.TrimSpace(p.Device), p.Options); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrSourceExists):
			return nil, &ConflictError{Message: "source already running", ID: id}
		case errors.Is(err, geometry.ErrInvalidBoundary):
			return nil, badRequest("invalid boundary", err)
		default:
			return nil, badRequest("failed to start source", err)
		}
	}
	return s.info(id)
}

// Stop ends processing of a source
func (s *SourceImplementation) Stop(ctx context.Context, id string) error {
	if err := s.manager.StopSource(id); err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) {
			return &NotFoundError{Message: "source not found", ID: id}
		}
		return err
	}
	return nil
}

// Reset starts a new counting session on a running source
func (s *SourceImplementation) Reset(ctx context.Context, id string) (*SourceInfo, error) {
	if err := s.manager.ResetSession(id); err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) {
			return nil, &NotFoundError{Message: "source not found", ID: id}
		}
		return nil, err
	}
	return s.info(id)
}

// Stats returns the live counters of a source
func (s *SourceImplementation) Stats(ctx context.Context, id string) (*SourceStats, error) {
	snap, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	return &SourceStats{
		SourceID:     id,
		SessionID:    snap.SessionID,
		Status:       snap.Status,
		FrameCount:   snap.Frames,
		InCount:      snap.In,
		OutCount:     snap.Out,
		FPS:          snap.FPS,
		ActiveTracks: len(snap.Tracks),
		Alerts:       len(snap.Alerts),
		Recognitions: len(snap.Recognitions),
		UpdatedAt:    snap.UpdatedAt,
		Pipeline:     s.manager.GetStats(id),
	}, nil
}

// Violations returns the alerts of the current session
func (s *SourceImplementation) Violations(ctx context.Context, id string) (*ViolationsResult, error) {
	snap, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	if snap.Alerts == nil {
		snap.Alerts = []alert.Event{}
	}
	return &ViolationsResult{Violations: snap.Alerts, Total: len(snap.Alerts)}, nil
}

// Faces returns the recognitions of the current session
func (s *SourceImplementation) Faces(ctx context.Context, id string) (*FacesResult, error) {
	snap, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	if snap.Recognitions == nil {
		snap.Recognitions = []session.Recognition{}
	}
	return &FacesResult{Detections: snap.Recognitions, Total: len(snap.Recognitions)}, nil
}

func (s *SourceImplementation) snapshot(id string) (session.Snapshot, error) {
	pub, ok := s.manager.Publisher(id)
	if !ok {
		return session.Snapshot{}, &NotFoundError{Message: "source not found", ID: id}
	}
	return pub.Latest(), nil
}

func (s *SourceImplementation) info(id string) (*SourceInfo, error) {
	cfg := s.manager.GetEffectiveConfig(id)
	pub, ok := s.manager.Publisher(id)
	if cfg == nil || !ok {
		return nil, &NotFoundError{Message: "source not found", ID: id}
	}
	snap := pub.Latest()

	info := &SourceInfo{
		ID:        id,
		Device:    cfg.Device,
		SessionID: snap.SessionID,
		Status:    snap.Status,
		FPS:       snap.FPS,
		In:        snap.In,
		Out:       snap.Out,
		Boundary:  snap.Boundary,
		FaceMode:  cfg.FaceMode,
	}
	if stats := s.manager.GetStats(id); stats != nil {
		info.StartedAt = stats.StartedAt
		if info.SessionID == "" {
			info.SessionID = stats.SessionID
		}
	}
	return info, nil
}
