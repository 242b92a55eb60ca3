package strategies

import (
	"sync"
	"time"

	"crosswatch/internal/pipeline"
	"crosswatch/internal/timeutil"
)

// ScheduledStrategy triggers recognition at fixed time intervals
type ScheduledStrategy struct {
	interval        time.Duration
	clock           timeutil.Clock
	lastRecognition time.Time
	mu              sync.Mutex
}

// NewScheduledStrategy creates a scheduled recognition strategy
func NewScheduledStrategy(interval time.Duration, clock timeutil.Clock) *ScheduledStrategy {
	if interval <= 0 {
		interval = time.Second
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ScheduledStrategy{
		interval: interval,
		clock:    clock,
	}
}

func (s *ScheduledStrategy) Name() string {
	return string(pipeline.FaceModeScheduled)
}

func (s *ScheduledStrategy) ShouldRecognize(frame *pipeline.FrameData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecognition.IsZero() || s.clock.Since(s.lastRecognition) >= s.interval
}

func (s *ScheduledStrategy) OnRecognitionComplete(result *pipeline.FaceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecognition = s.clock.Now()
}

func (s *ScheduledStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRecognition = time.Time{}
}

// SetInterval updates the recognition interval
func (s *ScheduledStrategy) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}
