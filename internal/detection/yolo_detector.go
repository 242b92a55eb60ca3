package detection

import (
	"context"
	"fmt"
	"time"

	"crosswatch/internal/timeutil"
)

// ObjectDetector calls a YOLO-style detection service
type ObjectDetector struct {
	svc           *serviceClient
	confThreshold float32
	classesFilter string
}

// ObjectDetection represents a single detection result
type ObjectDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// ObjectResult represents the /detect response
type ObjectResult struct {
	Detections      []ObjectDetection `json:"detections"`
	Count           int               `json:"count"`
	InferenceTimeMs float32           `json:"inference_time_ms"`
	Device          string            `json:"device"`
}

// ObjectHealthResponse represents the /health response
type ObjectHealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// ObjectDetectorConfig holds configuration for the detector
type ObjectDetectorConfig struct {
	ServiceEndpoint     string
	ConfidenceThreshold float32
	ClassesFilter       string // Comma separated class names, empty for all
	Timeout             time.Duration
	Clock               timeutil.Clock
}

// NewObjectDetector creates a detector client
func NewObjectDetector(cfg ObjectDetectorConfig) *ObjectDetector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second // Longer timeout for GPU inference
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	return &ObjectDetector{
		svc:           newServiceClient("object detector", cfg.ServiceEndpoint, cfg.Timeout, cfg.Clock),
		confThreshold: cfg.ConfidenceThreshold,
		classesFilter: cfg.ClassesFilter,
	}
}

// Endpoint returns the service base URL
func (d *ObjectDetector) Endpoint() string {
	return d.svc.endpoint
}

// IsHealthy checks if the service is available, caching success for 30s
func (d *ObjectDetector) IsHealthy(ctx context.Context) bool {
	var health ObjectHealthResponse
	return d.svc.isHealthy(ctx, &health, func() bool { return health.ModelLoaded })
}

// DetectObjects performs object detection on a JPEG image
func (d *ObjectDetector) DetectObjects(ctx context.Context, imageData []byte) (*ObjectResult, error) {
	if !d.IsHealthy(ctx) {
		return nil, ErrServiceUnavailable
	}

	fields := map[string]string{"conf_threshold": fmt.Sprintf("%.3f", d.confThreshold)}
	if d.classesFilter != "" {
		fields["classes_filter"] = d.classesFilter
	}

	var result ObjectResult
	if err := d.svc.postImage(ctx, "/detect", imageData, fields, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
