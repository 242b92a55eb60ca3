package strategies

import (
	"fmt"

	"crosswatch/internal/pipeline"
	"crosswatch/internal/timeutil"
)

// StrategyFactory creates face recognition strategies based on configuration
type StrategyFactory struct {
	clock timeutil.Clock
}

// NewStrategyFactory creates a new strategy factory
func NewStrategyFactory(clock timeutil.Clock) *StrategyFactory {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StrategyFactory{
		clock: clock,
	}
}

// Create creates a strategy based on the effective configuration
func (f *StrategyFactory) Create(config *pipeline.EffectiveConfig) (pipeline.FaceStrategy, error) {
	if config == nil {
		return NewDisabledStrategy(), nil
	}

	switch config.FaceMode {
	case pipeline.FaceModeDisabled:
		return NewDisabledStrategy(), nil

	case pipeline.FaceModeContinuous:
		return NewContinuousStrategy(0, f.clock), nil

	case pipeline.FaceModeEveryNth, "":
		return NewEveryNthStrategy(config.FaceEveryN), nil

	case pipeline.FaceModeScheduled:
		return NewScheduledStrategy(config.FaceInterval, f.clock), nil

	default:
		return nil, fmt.Errorf("unknown face mode: %s", config.FaceMode)
	}
}

// CreateFromMode creates a strategy from just a mode and default settings
func (f *StrategyFactory) CreateFromMode(mode pipeline.FaceMode) (pipeline.FaceStrategy, error) {
	defaults := pipeline.DefaultGlobalConfig()
	return f.Create(&pipeline.EffectiveConfig{
		FaceMode:     mode,
		FaceEveryN:   defaults.FaceEveryN,
		FaceInterval: defaults.FaceInterval,
	})
}

var (
	_ pipeline.FaceStrategy = (*ContinuousStrategy)(nil)
	_ pipeline.FaceStrategy = (*EveryNthStrategy)(nil)
	_ pipeline.FaceStrategy = (*ScheduledStrategy)(nil)
	_ pipeline.FaceStrategy = (*DisabledStrategy)(nil)
)
