// Package config loads service configuration from the environment, with an
// optional .env file, and the boundary definition from JSON.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"crosswatch/internal/alert"
	"crosswatch/internal/session"
	"crosswatch/internal/tracking"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// TelegramConfig configures the notifier
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
}

// AuthConfig configures bearer-token auth on mutating routes
type AuthConfig struct {
	Enabled     bool
	Username    string
	Password    string
	JWTSecret   string
	TokenExpiry time.Duration
}

type Config struct {
	HTTPAddr string
	GRPCAddr string
	LogLevel string

	DatabasePath string
	SnapshotDir  string
	BoundaryPath string

	// Source started at boot when set (file path, rtsp/http URL or device)
	Source     string
	SourceName string
	FrameRate  int

	DetectorURL       string
	FaceRecognizerURL string
	FaceStrategy      string
	FaceEveryN        int
	FaceInterval      time.Duration

	TrackClass          string
	ViolationClass      string
	MaxDisappeared      int
	AlertFrameThreshold int
	AlertCooldown       time.Duration

	Telegram TelegramConfig
	Auth     AuthConfig
}

// Load reads envFile (ignored when missing) and then the environment.
// An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: getEnv("GRPC_ADDR", ":9090"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabasePath: getEnv("DATABASE_PATH", "crosswatch.db"),
		SnapshotDir:  getEnv("SNAPSHOT_DIR", "."),
		BoundaryPath: getEnv("BOUNDARY_CONFIG", "roi_config.json"),

		Source:     getEnv("SOURCE", ""),
		SourceName: getEnv("SOURCE_NAME", "default"),
		FrameRate:  getEnvAsInt("FRAME_RATE", 15),

		DetectorURL:       getEnv("DETECTOR_URL", "http://localhost:8081"),
		FaceRecognizerURL: getEnv("FACE_RECOGNIZER_URL", ""),
		FaceStrategy:      getEnv("FACE_STRATEGY", "every_nth"),
		FaceEveryN:        getEnvAsInt("FACE_EVERY_N", 5),
		FaceInterval:      getEnvAsDuration("FACE_INTERVAL", time.Second),

		TrackClass:          getEnv("TRACK_CLASS", session.DefaultTrackClass),
		ViolationClass:      getEnv("VIOLATION_CLASS", session.DefaultViolationClass),
		MaxDisappeared:      getEnvAsInt("MAX_DISAPPEARED", tracking.DefaultMaxDisappeared),
		AlertFrameThreshold: getEnvAsInt("ALERT_FRAME_THRESHOLD", alert.DefaultFrameThreshold),
		AlertCooldown:       getEnvAsDuration("ALERT_COOLDOWN", alert.DefaultCooldown),

		Telegram: TelegramConfig{
			Enabled:  getEnvAsBool("TELEGRAM_ENABLED", false),
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},
		Auth: AuthConfig{
			Enabled:     getEnvAsBool("AUTH_ENABLED", false),
			Username:    getEnv("AUTH_USERNAME", "admin"),
			Password:    getEnv("AUTH_PASSWORD", ""),
			JWTSecret:   getEnv("JWT_SECRET", ""),
			TokenExpiry: getEnvAsDuration("JWT_EXPIRY", 24*time.Hour),
		},
	}
	return cfg, nil
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.FrameRate < 1 {
		errs = append(errs, fmt.Errorf("FRAME_RATE must be >= 1, got %d", c.FrameRate))
	}
	if c.MaxDisappeared < 0 {
		errs = append(errs, fmt.Errorf("MAX_DISAPPEARED must be >= 0, got %d", c.MaxDisappeared))
	}
	if err := c.AlertConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.FaceEveryN < 1 {
		errs = append(errs, fmt.Errorf("FACE_EVERY_N must be >= 1, got %d", c.FaceEveryN))
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when telegram is enabled"))
	}
	if c.Auth.Enabled {
		if c.Auth.Password == "" {
			errs = append(errs, errors.New("AUTH_PASSWORD is required when auth is enabled"))
		}
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters when auth is enabled"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// AlertConfig returns the alert gate knobs
func (c *Config) AlertConfig() alert.Config {
	return alert.Config{FrameThreshold: c.AlertFrameThreshold, Cooldown: c.AlertCooldown}
}

// SessionConfig returns the session configuration without a boundary
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		MaxDisappeared: c.MaxDisappeared,
		TrackClass:     c.TrackClass,
		ViolationClass: c.ViolationClass,
		Alert:          c.AlertConfig(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("5s") or plain seconds ("5")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
