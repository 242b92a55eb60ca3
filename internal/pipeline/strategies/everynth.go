package strategies

import (
	"sync"

	"crosswatch/internal/pipeline"
)

// EveryNthStrategy triggers recognition on every Nth frame seen, starting
// with the first
type EveryNthStrategy struct {
	n     uint64
	count uint64
	mu    sync.Mutex
}

// NewEveryNthStrategy creates a frame-cadence strategy; n < 1 means every frame
func NewEveryNthStrategy(n int) *EveryNthStrategy {
	if n < 1 {
		n = 1
	}
	return &EveryNthStrategy{n: uint64(n)}
}

func (s *EveryNthStrategy) Name() string {
	return string(pipeline.FaceModeEveryNth)
}

// ShouldRecognize counts frames itself rather than trusting frame.Seq, which
// restarts when a source is restarted
func (s *EveryNthStrategy) ShouldRecognize(frame *pipeline.FrameData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hit := s.count%s.n == 0
	s.count++
	return hit
}

func (s *EveryNthStrategy) OnRecognitionComplete(result *pipeline.FaceResult) {}

func (s *EveryNthStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
}

// Interval returns N
func (s *EveryNthStrategy) Interval() int {
	return int(s.n)
}
