// Package telegram sends crossing alerts to a Telegram chat and answers a
// small set of chat commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"crosswatch/internal/alert"
	"crosswatch/internal/logging"
	"crosswatch/internal/session"
)

// DefaultAPIBase is the public Bot API endpoint
const DefaultAPIBase = "https://api.telegram.org"

// ErrDisabled is returned when sending through a disabled bot
var ErrDisabled = errors.New("telegram bot is disabled")

// TelegramBot handles Telegram bot operations
type TelegramBot struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
	logger     logging.Logger
	mu         sync.RWMutex
	enabled    bool
}

// Config holds Telegram bot configuration
type Config struct {
	BotToken string
	ChatID   string
	Enabled  bool
	APIBase  string // Defaults to DefaultAPIBase
	Timeout  time.Duration
}

// TelegramResponse represents the response from Telegram API
type TelegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(config Config, logger logging.Logger) *TelegramBot {
	if config.APIBase == "" {
		config.APIBase = DefaultAPIBase
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &TelegramBot{
		botToken:   config.BotToken,
		chatID:     config.ChatID,
		apiBase:    strings.TrimRight(config.APIBase, "/"),
		enabled:    config.Enabled,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.Named("telegram"),
	}
}

// IsEnabled returns whether the bot is enabled
func (tb *TelegramBot) IsEnabled() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.enabled
}

// SetEnabled enables or disables the bot
func (tb *TelegramBot) SetEnabled(enabled bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.enabled = enabled
}

// credentials returns the token and chat ID if the bot may send
func (tb *TelegramBot) credentials() (token, chatID string, err error) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	if !tb.enabled {
		return "", "", ErrDisabled
	}
	if tb.botToken == "" || tb.chatID == "" {
		return "", "", fmt.Errorf("telegram bot token or chat ID not configured")
	}
	return tb.botToken, tb.chatID, nil
}

// SendMessage sends a text message
func (tb *TelegramBot) SendMessage(ctx context.Context, message string) error {
	token, chatID, err := tb.credentials()
	if err != nil {
		return err
	}

	payload := map[string]any{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "HTML",
	}
	_, err = tb.call(ctx, token, "sendMessage", payload)
	return err
}

// SendPhoto sends a JPEG with optional caption
func (tb *TelegramBot) SendPhoto(ctx context.Context, photoData []byte, caption string) error {
	token, chatID, err := tb.credentials()
	if err != nil {
		return err
	}
	return tb.sendPhoto(ctx, token, chatID, photoData, caption)
}

// SendViolationAlert reports a fired alert, attaching the frame when present
func (tb *TelegramBot) SendViolationAlert(ctx context.Context, sourceName string, ev alert.Event, frame []byte) error {
	message := fmt.Sprintf(
		"🚨 <b>Mobile phone detected!</b>\n\n"+
			"📹 Source: %s\n"+
			"🎞 Frame: %d (%d consecutive)\n"+
			"🕐 Time: %s",
		sourceName,
		ev.FrameIndex,
		ev.Consecutive,
		formatTime(ev.Time),
	)

	if len(frame) > 0 {
		return tb.SendPhoto(ctx, frame, message)
	}
	return tb.SendMessage(ctx, message)
}

// SendRecognition reports the first sighting of a known face in a session
func (tb *TelegramBot) SendRecognition(ctx context.Context, sourceName string, rec session.Recognition, frame []byte) error {
	message := fmt.Sprintf(
		"👤 <b>Face recognized:</b> %s\n\n"+
			"📹 Source: %s\n"+
			"🎯 Confidence: %.0f%%\n"+
			"🕐 Time: %s",
		rec.Name,
		sourceName,
		rec.Confidence*100,
		formatTime(rec.Time),
	)

	if len(frame) > 0 {
		return tb.SendPhoto(ctx, frame, message)
	}
	return tb.SendMessage(ctx, message)
}

// SendTestMessage sends a test message to verify the bot configuration
func (tb *TelegramBot) SendTestMessage(ctx context.Context) error {
	message := fmt.Sprintf(
		"🤖 <b>Crosswatch Test Message</b>\n\n"+
			"✅ Telegram bot is working correctly!\n"+
			"🕐 Test sent at: %s",
		formatTime(time.Now()),
	)
	return tb.SendMessage(ctx, message)
}

// GetBotInfo retrieves information about the bot
func (tb *TelegramBot) GetBotInfo(ctx context.Context) (map[string]any, error) {
	tb.mu.RLock()
	token := tb.botToken
	tb.mu.RUnlock()

	if token == "" {
		return nil, fmt.Errorf("bot token not configured")
	}

	result, err := tb.call(ctx, token, "getMe", nil)
	if err != nil {
		return nil, err
	}

	var info map[string]any
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unexpected response format: %w", err)
	}
	return info, nil
}

// sendPhoto sends a photo using multipart form data
func (tb *TelegramBot) sendPhoto(ctx context.Context, token, chatID string, photoData []byte, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("failed to write parse_mode field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", "frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL(token, "sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	_, err = handleResponse(resp)
	return err
}

// call invokes a Bot API method with a JSON payload, GET when payload is nil
func (tb *TelegramBot) call(ctx context.Context, token, method string, payload map[string]any) (json.RawMessage, error) {
	httpMethod := http.MethodGet
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		httpMethod = http.MethodPost
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, tb.methodURL(token, method), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

func (tb *TelegramBot) methodURL(token, method string) string {
	return fmt.Sprintf("%s/bot%s/%s", tb.apiBase, token, method)
}

// handleResponse processes the Telegram API response
func handleResponse(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp TelegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !telegramResp.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return telegramResp.Result, nil
}

// formatTime renders a timestamp with its zone name
func formatTime(t time.Time) string {
	zoneName, _ := t.Zone()
	return fmt.Sprintf("%s %s", t.Format("2 Jan 2006, 15:04:05"), zoneName)
}

// ValidateConfig validates the Telegram bot configuration
func ValidateConfig(config Config) error {
	if config.Enabled {
		if config.BotToken == "" {
			return fmt.Errorf("telegram bot token is required when enabled")
		}
		if config.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when enabled")
		}
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}
