package detectors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/detection"
	"crosswatch/internal/geometry"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/session"
)

type fakeObjectClient struct {
	healthy bool
	result  *detection.ObjectResult
	err     error
	got     []byte
}

func (f *fakeObjectClient) IsHealthy(ctx context.Context) bool { return f.healthy }

func (f *fakeObjectClient) DetectObjects(ctx context.Context, data []byte) (*detection.ObjectResult, error) {
	f.got = data
	return f.result, f.err
}

type fakeFaceClient struct {
	result *detection.FaceRecognitionResult
	err    error
}

func (f *fakeFaceClient) IsHealthy(ctx context.Context) bool { return true }

func (f *fakeFaceClient) RecognizeFaces(ctx context.Context, data []byte) (*detection.FaceRecognitionResult, error) {
	return f.result, f.err
}

func testFrame() *pipeline.FrameData {
	return &pipeline.FrameData{
		SourceID:  "gate",
		Data:      []byte{0xFF, 0xD8},
		Seq:       7,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestYOLOAdapter_Detect(t *testing.T) {
	client := &fakeObjectClient{healthy: true, result: &detection.ObjectResult{
		Detections: []detection.ObjectDetection{
			{Class: "OUT", Confidence: 0.5, BBox: []float32{10, 20, 30, 40}},
			{Class: "MOBILE", Confidence: 0.25, BBox: []float32{1, 2}},
		},
		InferenceTimeMs: 4,
	}}
	a := NewYOLOAdapter(client)

	res, err := a.Detect(context.Background(), testFrame())
	require.NoError(t, err)

	assert.Equal(t, []byte{0xFF, 0xD8}, client.got)
	assert.Equal(t, "gate", res.SourceID)
	assert.Equal(t, uint64(7), res.FrameSeq)
	assert.Equal(t, float32(4), res.InferenceMs)
	assert.Equal(t, []session.Detection{
		{Class: "OUT", Confidence: 0.5, Box: geometry.Box{X1: 10, Y1: 20, X2: 30, Y2: 40}},
	}, res.Detections)
	assert.True(t, a.IsHealthy())
}

func TestYOLOAdapter_Error(t *testing.T) {
	a := NewYOLOAdapter(&fakeObjectClient{err: detection.ErrServiceUnavailable})
	_, err := a.Detect(context.Background(), testFrame())
	assert.ErrorIs(t, err, detection.ErrServiceUnavailable)
	assert.NotErrorIs(t, err, pipeline.ErrMalformedDetections)

	var nilAdapter YOLOAdapter
	assert.False(t, nilAdapter.IsHealthy())
	_, err = nilAdapter.Detect(context.Background(), testFrame())
	assert.Error(t, err)
}

func TestYOLOAdapter_MalformedResponse(t *testing.T) {
	a := NewYOLOAdapter(&fakeObjectClient{err: fmt.Errorf("yolo: %w: unexpected EOF", detection.ErrMalformedResponse)})
	_, err := a.Detect(context.Background(), testFrame())
	assert.ErrorIs(t, err, pipeline.ErrMalformedDetections)
}

func TestFaceAdapter_Recognize(t *testing.T) {
	bob := "Bob"
	empty := ""
	client := &fakeFaceClient{result: &detection.FaceRecognitionResult{
		Recognitions: []detection.FaceRecognition{
			{BBox: []float32{0, 0, 10, 10}, Confidence: 0.75, Identity: &bob, IsKnown: true},
			{BBox: []float32{20, 0, 30, 10}, Confidence: 0.5},
			{BBox: []float32{40, 0, 50, 10}, Confidence: 0.5, Identity: &empty, IsKnown: true},
			{BBox: []float32{60, 0, 70, 10}, Confidence: 0.5, Identity: &bob, IsKnown: false},
		},
	}}
	a := NewFaceAdapter(client)

	res, err := a.Recognize(context.Background(), testFrame())
	require.NoError(t, err)

	require.Len(t, res.Faces, 4)
	assert.Equal(t, "Bob", res.Faces[0].Name)
	assert.Equal(t, 0.75, res.Faces[0].Confidence)
	for _, f := range res.Faces[1:] {
		assert.Equal(t, session.UnknownFace, f.Name)
	}
}

func TestFaceAdapter_Error(t *testing.T) {
	a := NewFaceAdapter(&fakeFaceClient{err: errors.New("boom")})
	_, err := a.Recognize(context.Background(), testFrame())
	assert.ErrorContains(t, err, "boom")
}
