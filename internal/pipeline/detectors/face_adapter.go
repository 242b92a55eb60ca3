package detectors

import (
	"context"
	"fmt"

	"crosswatch/internal/detection"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/session"
)

// FaceClient is the subset of detection.FaceRecognizer the adapter needs
type FaceClient interface {
	IsHealthy(ctx context.Context) bool
	RecognizeFaces(ctx context.Context, imageData []byte) (*detection.FaceRecognitionResult, error)
}

// FaceAdapter wraps a face recognition client to implement
// pipeline.FaceRecognizer
type FaceAdapter struct {
	recognizer FaceClient
}

// NewFaceAdapter creates a new face recognizer adapter
func NewFaceAdapter(recognizer FaceClient) *FaceAdapter {
	return &FaceAdapter{recognizer: recognizer}
}

func (a *FaceAdapter) Name() string {
	return "face"
}

func (a *FaceAdapter) IsHealthy() bool {
	if a.recognizer == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return a.recognizer.IsHealthy(ctx)
}

func (a *FaceAdapter) Recognize(ctx context.Context, frame *pipeline.FrameData) (*pipeline.FaceResult, error) {
	if a.recognizer == nil {
		return nil, fmt.Errorf("face recognizer not configured")
	}

	result, err := a.recognizer.RecognizeFaces(ctx, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("face recognition failed: %w", err)
	}

	return a.convertResult(frame, result), nil
}

func (a *FaceAdapter) Close() error {
	return nil
}

// convertResult maps recognitions to session faces. Faces the service could
// not identify are named session.UnknownFace.
func (a *FaceAdapter) convertResult(frame *pipeline.FrameData, result *detection.FaceRecognitionResult) *pipeline.FaceResult {
	faces := make([]session.Face, 0, len(result.Recognitions))
	for _, r := range result.Recognitions {
		box, ok := toBox(r.BBox)
		if !ok {
			continue
		}

		name := session.UnknownFace
		if r.IsKnown && r.Identity != nil && *r.Identity != "" {
			name = *r.Identity
		}

		faces = append(faces, session.Face{
			Name:       name,
			Confidence: float64(r.Confidence),
			Box:        box,
		})
	}

	return &pipeline.FaceResult{
		SourceID:    frame.SourceID,
		FrameSeq:    frame.Seq,
		Timestamp:   frame.Timestamp,
		Faces:       faces,
		InferenceMs: result.InferenceTimeMs,
	}
}

// Ensure FaceAdapter implements FaceRecognizer
var _ pipeline.FaceRecognizer = (*FaceAdapter)(nil)
