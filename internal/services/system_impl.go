package services

import (
	"context"
	"time"

	"crosswatch/internal/timeutil"
)

// SystemStatus is the process-wide overview
type SystemStatus struct {
	StartedAt       time.Time     `json:"started_at"`
	Uptime          string        `json:"uptime"`
	ActiveSources   int           `json:"active_sources"`
	Sources         []*SourceInfo `json:"sources"`
	AuthEnabled     bool          `json:"auth_enabled"`
	TelegramEnabled bool          `json:"telegram_enabled"`
}

// SystemImplementation implements the system service
type SystemImplementation struct {
	sources   *SourceImplementation
	auth      Authenticator
	notifier  Notifier
	clock     timeutil.Clock
	startTime time.Time
}

// NewSystemService creates a new system service implementation. auth and
// notifier may be nil.
func NewSystemService(sources *SourceImplementation, auth Authenticator, notifier Notifier, clock timeutil.Clock) *SystemImplementation {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SystemImplementation{
		sources:   sources,
		auth:      auth,
		notifier:  notifier,
		clock:     clock,
		startTime: clock.Now(),
	}
}

// Status returns the overall system status
func (s *SystemImplementation) Status(ctx context.Context) (*SystemStatus, error) {
	list, err := s.sources.List(ctx)
	if err != nil {
		return nil, err
	}
	return &SystemStatus{
		StartedAt:       s.startTime,
		Uptime:          s.clock.Since(s.startTime).Truncate(time.Second).String(),
		ActiveSources:   len(list),
		Sources:         list,
		AuthEnabled:     s.auth != nil && s.auth.IsEnabled(),
		TelegramEnabled: s.notifier != nil && s.notifier.IsEnabled(),
	}, nil
}
