package detection

import (
	"context"
	"fmt"
	"time"

	"crosswatch/internal/timeutil"
)

// FaceRecognizer calls a face recognition service
type FaceRecognizer struct {
	svc                 *serviceClient
	similarityThreshold float32
}

// FaceRecognizerConfig holds configuration for the recognizer
type FaceRecognizerConfig struct {
	ServiceEndpoint     string
	SimilarityThreshold float32
	Timeout             time.Duration
	Clock               timeutil.Clock
}

// FaceRecognition is one face in a /recognize response
type FaceRecognition struct {
	BBox       []float32 `json:"bbox"`
	Confidence float32   `json:"confidence"`
	Identity   *string   `json:"identity"`
	Similarity float32   `json:"similarity"`
	IsKnown    bool      `json:"is_known"`
}

// FaceRecognitionResult represents the /recognize response
type FaceRecognitionResult struct {
	Recognitions    []FaceRecognition `json:"recognitions"`
	Count           int               `json:"count"`
	KnownCount      int               `json:"known_count"`
	UnknownCount    int               `json:"unknown_count"`
	InferenceTimeMs float32           `json:"inference_time_ms"`
	Device          string            `json:"device"`
}

// FaceHealthResponse represents the /health response
type FaceHealthResponse struct {
	Status          string `json:"status"`
	Device          string `json:"device"`
	ModelLoaded     bool   `json:"model_loaded"`
	KnownFacesCount int    `json:"known_faces_count"`
}

// NewFaceRecognizer creates a recognizer client
func NewFaceRecognizer(cfg FaceRecognizerConfig) *FaceRecognizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &FaceRecognizer{
		svc:                 newServiceClient("face recognizer", cfg.ServiceEndpoint, cfg.Timeout, cfg.Clock),
		similarityThreshold: cfg.SimilarityThreshold,
	}
}

// Endpoint returns the service base URL
func (fr *FaceRecognizer) Endpoint() string {
	return fr.svc.endpoint
}

// IsHealthy checks if the service is available, caching success for 30s
func (fr *FaceRecognizer) IsHealthy(ctx context.Context) bool {
	var health FaceHealthResponse
	return fr.svc.isHealthy(ctx, &health, func() bool { return health.ModelLoaded })
}

// RecognizeFaces detects and identifies faces in a JPEG image
func (fr *FaceRecognizer) RecognizeFaces(ctx context.Context, imageData []byte) (*FaceRecognitionResult, error) {
	if !fr.IsHealthy(ctx) {
		return nil, ErrServiceUnavailable
	}

	fields := map[string]string{}
	if fr.similarityThreshold > 0 {
		fields["similarity_threshold"] = fmt.Sprintf("%.3f", fr.similarityThreshold)
	}

	var result FaceRecognitionResult
	if err := fr.svc.postImage(ctx, "/recognize", imageData, fields, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
