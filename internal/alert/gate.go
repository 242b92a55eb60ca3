// Package alert debounces a noisy per-frame condition into rate-limited
// alert events.
//
// A Gate fires when the condition has held for FrameThreshold consecutive
// frames and at least Cooldown has elapsed since the previous firing. The
// first firing is never held back by the cooldown. Firing does not reset the
// consecutive counter, so a condition that persists fires again as soon as
// the cooldown has elapsed.
package alert

import (
	"errors"
	"fmt"
	"time"

	"crosswatch/internal/timeutil"
)

const (
	DefaultFrameThreshold = 2
	DefaultCooldown       = 5 * time.Second
)

// ErrInvalidConfig is returned for an unusable gate configuration
var ErrInvalidConfig = errors.New("invalid alert config")

// Config holds the gate knobs
type Config struct {
	FrameThreshold int
	Cooldown       time.Duration
}

// DefaultConfig returns a two-frame, five-second gate
func DefaultConfig() Config {
	return Config{FrameThreshold: DefaultFrameThreshold, Cooldown: DefaultCooldown}
}

// Validate rejects a threshold below one and a negative cooldown
func (c Config) Validate() error {
	if c.FrameThreshold < 1 {
		return fmt.Errorf("%w: frame threshold must be >= 1, got %d", ErrInvalidConfig, c.FrameThreshold)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("%w: cooldown must be >= 0, got %s", ErrInvalidConfig, c.Cooldown)
	}
	return nil
}

// Event describes one firing
type Event struct {
	FrameIndex  uint64    `json:"frame_index"`
	Time        time.Time `json:"time"`
	Consecutive int       `json:"consecutive"`
}

// Gate is the debounce state for one session. Not safe for concurrent use.
type Gate struct {
	cfg         Config
	clock       timeutil.Clock
	consecutive int
	fired       bool
	lastFired   time.Time
}

// New creates a gate. A nil clock means wall-clock time.
func New(cfg Config, clock timeutil.Clock) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Gate{cfg: cfg, clock: clock}, nil
}

// Config returns the gate configuration
func (g *Gate) Config() Config {
	return g.cfg
}

// Consecutive returns the current run length of frames with the condition true
func (g *Gate) Consecutive() int {
	return g.consecutive
}

// LastFired returns the time of the most recent firing, if any
func (g *Gate) LastFired() (time.Time, bool) {
	return g.lastFired, g.fired
}

// Evaluate feeds one frame's condition into the gate and reports whether it fired
func (g *Gate) Evaluate(present bool, frameIndex uint64) (Event, bool) {
	if !present {
		g.consecutive = 0
		return Event{}, false
	}
	g.consecutive++

	if g.consecutive < g.cfg.FrameThreshold {
		return Event{}, false
	}

	now := g.clock.Now()
	if g.fired && now.Sub(g.lastFired) < g.cfg.Cooldown {
		return Event{}, false
	}

	g.fired = true
	g.lastFired = now
	return Event{FrameIndex: frameIndex, Time: now, Consecutive: g.consecutive}, true
}

// Reset clears all debounce state
func (g *Gate) Reset() {
	g.consecutive = 0
	g.fired = false
	g.lastFired = time.Time{}
}
