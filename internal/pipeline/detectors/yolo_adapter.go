// Package detectors adapts the detection service clients to the pipeline's
// Detector and FaceRecognizer interfaces.
package detectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crosswatch/internal/detection"
	"crosswatch/internal/geometry"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/session"
)

// healthTimeout bounds the health probe behind IsHealthy
const healthTimeout = 3 * time.Second

// ObjectClient is the subset of detection.ObjectDetector the adapter needs
type ObjectClient interface {
	IsHealthy(ctx context.Context) bool
	DetectObjects(ctx context.Context, imageData []byte) (*detection.ObjectResult, error)
}

// YOLOAdapter wraps an object detection client to implement pipeline.Detector
type YOLOAdapter struct {
	detector ObjectClient
}

// NewYOLOAdapter creates a new YOLO detector adapter
func NewYOLOAdapter(detector ObjectClient) *YOLOAdapter {
	return &YOLOAdapter{detector: detector}
}

func (a *YOLOAdapter) Name() string {
	return "yolo"
}

func (a *YOLOAdapter) IsHealthy() bool {
	if a.detector == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return a.detector.IsHealthy(ctx)
}

func (a *YOLOAdapter) Detect(ctx context.Context, frame *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	if a.detector == nil {
		return nil, fmt.Errorf("YOLO detector not configured")
	}

	result, err := a.detector.DetectObjects(ctx, frame.Data)
	switch {
	case errors.Is(err, detection.ErrMalformedResponse):
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformedDetections, err)
	case err != nil:
		return nil, fmt.Errorf("YOLO detection failed: %w", err)
	}

	return a.convertResult(frame, result), nil
}

func (a *YOLOAdapter) Close() error {
	// HTTP client based, nothing to release
	return nil
}

// convertResult converts the service response to pipeline.DetectionResult.
// Detections without a full bbox are dropped.
func (a *YOLOAdapter) convertResult(frame *pipeline.FrameData, result *detection.ObjectResult) *pipeline.DetectionResult {
	detections := make([]session.Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		box, ok := toBox(d.BBox)
		if !ok {
			continue
		}
		detections = append(detections, session.Detection{
			Class:      d.Class,
			Confidence: float64(d.Confidence),
			Box:        box,
		})
	}

	return &pipeline.DetectionResult{
		SourceID:    frame.SourceID,
		FrameSeq:    frame.Seq,
		Timestamp:   frame.Timestamp,
		Detections:  detections,
		InferenceMs: result.InferenceTimeMs,
	}
}

// toBox reads an [x1, y1, x2, y2] slice
func toBox(bbox []float32) (geometry.Box, bool) {
	if len(bbox) < 4 {
		return geometry.Box{}, false
	}
	return geometry.Box{
		X1: float64(bbox[0]),
		Y1: float64(bbox[1]),
		X2: float64(bbox[2]),
		Y2: float64(bbox[3]),
	}, true
}

// Ensure YOLOAdapter implements Detector
var _ pipeline.Detector = (*YOLOAdapter)(nil)
