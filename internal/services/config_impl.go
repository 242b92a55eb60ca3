package services

import (
	"context"

	"crosswatch/internal/config"
	"crosswatch/internal/geometry"
	"crosswatch/internal/pipeline"
)

// Notifier is the part of the Telegram bot the config service controls
type Notifier interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	SendTestMessage(ctx context.Context) error
}

// NotificationConfig is the notifier configuration with the token masked
type NotificationConfig struct {
	TelegramEnabled  bool    `json:"telegram_enabled"`
	TelegramChatID   *string `json:"telegram_chat_id,omitempty"`
	TelegramBotToken *string `json:"telegram_bot_token,omitempty"`
}

// NotificationUpdate toggles notifications at runtime
type NotificationUpdate struct {
	TelegramEnabled *bool `json:"telegram_enabled"`
}

// TestNotificationResult reports the outcome of a test message
type TestNotificationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DetectionConfig is the global processing configuration new sources inherit
type DetectionConfig struct {
	FPS            int                     `json:"fps"`
	Width          int                     `json:"width"`
	Height         int                     `json:"height"`
	FaceMode       pipeline.FaceMode       `json:"face_mode"`
	FaceEveryN     int                     `json:"face_every_n"`
	FaceInterval   string                  `json:"face_interval"`
	TrackClass     string                  `json:"track_class"`
	ViolationClass string                  `json:"violation_class"`
	MaxDisappeared int                     `json:"max_disappeared"`
	AlertThreshold int                     `json:"alert_frame_threshold"`
	AlertCooldown  string                  `json:"alert_cooldown"`
	Boundary       geometry.BoundaryConfig `json:"boundary"`
}

// GlobalConfigGetter is implemented by the pipeline manager
type GlobalConfigGetter interface {
	GetGlobalConfig() *pipeline.GlobalConfig
}

// ConfigImplementation implements the config service
type ConfigImplementation struct {
	telegram config.TelegramConfig
	notifier Notifier
	global   GlobalConfigGetter
}

// NewConfigService creates a new config service implementation. notifier may
// be nil when Telegram is not configured.
func NewConfigService(telegram config.TelegramConfig, notifier Notifier, global GlobalConfigGetter) *ConfigImplementation {
	return &ConfigImplementation{telegram: telegram, notifier: notifier, global: global}
}

// Get returns the notification configuration
func (c *ConfigImplementation) Get(ctx context.Context) (*NotificationConfig, error) {
	return &NotificationConfig{
		TelegramEnabled:  c.notifier != nil && c.notifier.IsEnabled(),
		TelegramChatID:   ptrString(c.telegram.ChatID),
		TelegramBotToken: maskToken(c.telegram.BotToken),
	}, nil
}

// Update enables or disables notifications
func (c *ConfigImplementation) Update(ctx context.Context, p *NotificationUpdate) (*NotificationConfig, error) {
	if p == nil || p.TelegramEnabled == nil {
		return nil, &BadRequestError{Message: "telegram_enabled is required"}
	}
	if *p.TelegramEnabled && (c.notifier == nil || c.telegram.BotToken == "" || c.telegram.ChatID == "") {
		return nil, &BadRequestError{Message: "telegram bot token and chat id must be configured"}
	}
	if c.notifier != nil {
		c.notifier.SetEnabled(*p.TelegramEnabled)
	}
	return c.Get(ctx)
}

// TestNotification sends a test message through the notifier
func (c *ConfigImplementation) TestNotification(ctx context.Context) (*TestNotificationResult, error) {
	if c.notifier == nil || !c.notifier.IsEnabled() {
		return &TestNotificationResult{Success: false, Message: "telegram notifications are disabled"}, nil
	}
	if err := c.notifier.SendTestMessage(ctx); err != nil {
		return &TestNotificationResult{Success: false, Message: err.Error()}, nil
	}
	return &TestNotificationResult{Success: true, Message: "test message sent"}, nil
}

// GetDetection returns the defaults new sources inherit
func (c *ConfigImplementation) GetDetection(ctx context.Context) (*DetectionConfig, error) {
	g := c.global.GetGlobalConfig()
	return &DetectionConfig{
		FPS:            g.FPS,
		Width:          g.Width,
		Height:         g.Height,
		FaceMode:       g.FaceMode,
		FaceEveryN:     g.FaceEveryN,
		FaceInterval:   g.FaceInterval.String(),
		TrackClass:     g.Session.TrackClass,
		ViolationClass: g.Session.ViolationClass,
		MaxDisappeared: g.Session.MaxDisappeared,
		AlertThreshold: g.Session.Alert.FrameThreshold,
		AlertCooldown:  g.Session.Alert.Cooldown.String(),
		Boundary:       g.Boundary.Config(),
	}, nil
}

func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func maskToken(token string) *string {
	if token == "" {
		return nil
	}
	masked := "****"
	if len(token) > 8 {
		masked = token[:4] + "..." + token[len(token)-4:]
	}
	return &masked
}
