package services

import (
	"context"
	"time"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck is one dependency probed by Readyz
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadyStatus lists the outcome of every readiness check
type ReadyStatus struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// HealthImplementation implements the health service
type HealthImplementation struct {
	checks []ReadinessCheck
}

// NewHealthService creates a new health service implementation
func NewHealthService(checks ...ReadinessCheck) *HealthImplementation {
	return &HealthImplementation{checks: checks}
}

// Healthz implements the liveness probe
func (h *HealthImplementation) Healthz(ctx context.Context) error {
	return nil
}

// Readyz runs every readiness check and fails if any of them does
func (h *HealthImplementation) Readyz(ctx context.Context) (*ReadyStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	status := &ReadyStatus{Ready: true, Checks: make(map[string]string, len(h.checks))}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			status.Ready = false
			status.Checks[c.Name] = err.Error()
			continue
		}
		status.Checks[c.Name] = "ok"
	}
	if !status.Ready {
		return nil, &UnavailableError{Message: "not ready", Checks: status.Checks}
	}
	return status, nil
}
