package strategies

import (
	"sync"
	"time"

	"crosswatch/internal/pipeline"
	"crosswatch/internal/timeutil"
)

// ContinuousStrategy triggers recognition on every frame
// Optionally rate-limits to avoid overwhelming the recognizer
type ContinuousStrategy struct {
	minInterval     time.Duration // Minimum time between recognitions
	clock           timeutil.Clock
	lastRecognition time.Time
	mu              sync.Mutex
}

// NewContinuousStrategy creates a continuous recognition strategy
// minInterval can be 0 to process every frame, or a duration to rate-limit
func NewContinuousStrategy(minInterval time.Duration, clock timeutil.Clock) *ContinuousStrategy {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ContinuousStrategy{
		minInterval: minInterval,
		clock:       clock,
	}
}

func (s *ContinuousStrategy) Name() string {
	return string(pipeline.FaceModeContinuous)
}

func (s *ContinuousStrategy) ShouldRecognize(frame *pipeline.FrameData) bool {
	if s.minInterval == 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecognition.IsZero() || s.clock.Since(s.lastRecognition) >= s.minInterval
}

func (s *ContinuousStrategy) OnRecognitionComplete(result *pipeline.FaceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecognition = s.clock.Now()
}

func (s *ContinuousStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecognition = time.Time{}
}
