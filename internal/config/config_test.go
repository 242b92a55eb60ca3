package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/geometry"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "OUT", cfg.TrackClass)
	assert.Equal(t, "MOBILE", cfg.ViolationClass)
	assert.Equal(t, 30, cfg.MaxDisappeared)
	assert.Equal(t, 2, cfg.AlertFrameThreshold)
	assert.Equal(t, 5*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 5, cfg.FaceEveryN)
	assert.False(t, cfg.Auth.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("MAX_DISAPPEARED", "12")
	t.Setenv("ALERT_COOLDOWN", "2.5")
	t.Setenv("FACE_INTERVAL", "750ms")
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("ALERT_FRAME_THRESHOLD", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 12, cfg.MaxDisappeared)
	assert.Equal(t, 2500*time.Millisecond, cfg.AlertCooldown)
	assert.Equal(t, 750*time.Millisecond, cfg.FaceInterval)
	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, 2, cfg.AlertFrameThreshold, "unparsable values fall back to the default")
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CROSSWATCH_TEST_TRACK=PERSON\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CROSSWATCH_TEST_TRACK") })

	_, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "PERSON", os.Getenv("CROSSWATCH_TEST_TRACK"))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.AlertFrameThreshold = 0 }},
		{"negative cooldown", func(c *Config) { c.AlertCooldown = -time.Second }},
		{"negative max disappeared", func(c *Config) { c.MaxDisappeared = -1 }},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }},
		{"zero face cadence", func(c *Config) { c.FaceEveryN = 0 }},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }},
		{"auth without secret", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.Password = "pw"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadBoundary(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	t.Run("missing file uses default", func(t *testing.T) {
		b, err := LoadBoundary(filepath.Join(dir, "roi_config.json"), 480)
		require.NoError(t, err)
		assert.Equal(t, geometry.Horizontal(240), b)
	})

	t.Run("empty path without height is unset", func(t *testing.T) {
		b, err := LoadBoundary("", 0)
		require.NoError(t, err)
		assert.True(t, b.IsZero())
	})

	t.Run("vertical", func(t *testing.T) {
		b, err := LoadBoundary(write("v.json", `{"type":"vertical","x":320}`), 480)
		require.NoError(t, err)
		assert.Equal(t, geometry.Vertical(320), b)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := LoadBoundary(write("bad.json", `{"type":"custom","line_points":[[1,1]]}`), 480)
		assert.ErrorIs(t, err, geometry.ErrInvalidBoundary)
	})

	t.Run("wrong extension", func(t *testing.T) {
		_, err := LoadBoundary(write("roi.yaml", `type: vertical`), 480)
		assert.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, maxBoundaryFileSize+1)
		p := filepath.Join(dir, "big.json")
		require.NoError(t, os.WriteFile(p, big, 0o600))
		_, err := LoadBoundary(p, 480)
		assert.ErrorContains(t, err, "too large")
	})
}
