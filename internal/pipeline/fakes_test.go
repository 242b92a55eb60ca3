package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crosswatch/internal/session"
)

// fakeProvider hands frames to subscribers only when the test sends them
type fakeProvider struct {
	mu      sync.Mutex
	running map[string]bool
	subs    map[string]*FrameSubscription
	stopped []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		running: make(map[string]bool),
		subs:    make(map[string]*FrameSubscription),
	}
}

func (p *fakeProvider) Start(sourceID, device string, fps, width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[sourceID] {
		return fmt.Errorf("source %s already started", sourceID)
	}
	p.running[sourceID] = true
	return nil
}

func (p *fakeProvider) Stop(sourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running[sourceID] {
		return fmt.Errorf("source %s not found", sourceID)
	}
	delete(p.running, sourceID)
	p.stopped = append(p.stopped, sourceID)
	return nil
}

func (p *fakeProvider) Subscribe(sourceID string, bufferSize int) (*FrameSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub := &FrameSubscription{
		SourceID: sourceID,
		Channel:  make(chan *FrameData, 16),
		Done:     make(chan struct{}),
	}
	p.subs[sourceID] = sub
	return sub, nil
}

func (p *fakeProvider) Unsubscribe(sub *FrameSubscription) {}

func (p *fakeProvider) IsRunning(sourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[sourceID]
}

func (p *fakeProvider) GetStats(sourceID string) *CaptureStats {
	return &CaptureStats{SourceID: sourceID, FramesCaptured: 42}
}

func (p *fakeProvider) send(frame *FrameData) {
	p.mu.Lock()
	sub := p.subs[frame.SourceID]
	p.mu.Unlock()
	sub.Channel <- frame
}

// end simulates the input running out
func (p *fakeProvider) end(sourceID string) {
	p.mu.Lock()
	sub := p.subs[sourceID]
	p.mu.Unlock()
	close(sub.Done)
}

func (p *fakeProvider) stoppedSources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stopped...)
}

// scriptedDetector returns canned detections keyed by frame sequence
type scriptedDetector struct {
	mu     sync.Mutex
	bySeq     map[uint64][]session.Detection
	failOn    map[uint64]bool
	garbledOn map[uint64]bool
}

func (d *scriptedDetector) Name() string    { return "scripted" }
func (d *scriptedDetector) IsHealthy() bool { return true }
func (d *scriptedDetector) Close() error    { return nil }

func (d *scriptedDetector) Detect(ctx context.Context, frame *FrameData) (*DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn[frame.Seq] {
		return nil, errors.New("inference timeout")
	}
	if d.garbledOn[frame.Seq] {
		return nil, fmt.Errorf("%w: unexpected EOF", ErrMalformedDetections)
	}
	return &DetectionResult{
		SourceID:    frame.SourceID,
		FrameSeq:    frame.Seq,
		Detections:  d.bySeq[frame.Seq],
		InferenceMs: 10,
	}, nil
}

// staticRecognizer sees the same faces on every frame
type staticRecognizer struct {
	faces []session.Face
}

func (r *staticRecognizer) Name() string    { return "static" }
func (r *staticRecognizer) IsHealthy() bool { return true }
func (r *staticRecognizer) Close() error    { return nil }

func (r *staticRecognizer) Recognize(ctx context.Context, frame *FrameData) (*FaceResult, error) {
	return &FaceResult{SourceID: frame.SourceID, FrameSeq: frame.Seq, Faces: r.faces}, nil
}

// alwaysStrategy recognizes every frame and counts resets
type alwaysStrategy struct {
	mu     sync.Mutex
	resets int
}

func (s *alwaysStrategy) Name() string                            { return "always" }
func (s *alwaysStrategy) ShouldRecognize(frame *FrameData) bool   { return true }
func (s *alwaysStrategy) OnRecognitionComplete(result *FaceResult) {}

func (s *alwaysStrategy) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}
