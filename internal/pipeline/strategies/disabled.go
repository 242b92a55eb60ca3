package strategies

import (
	"crosswatch/internal/pipeline"
)

// DisabledStrategy never triggers recognition
type DisabledStrategy struct{}

// NewDisabledStrategy creates a disabled strategy
func NewDisabledStrategy() *DisabledStrategy {
	return &DisabledStrategy{}
}

func (s *DisabledStrategy) Name() string {
	return string(pipeline.FaceModeDisabled)
}

func (s *DisabledStrategy) ShouldRecognize(frame *pipeline.FrameData) bool {
	return false
}

func (s *DisabledStrategy) OnRecognitionComplete(result *pipeline.FaceResult) {
	// No-op
}

func (s *DisabledStrategy) Reset() {
	// No-op
}
