package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"crosswatch/internal/database"
	"crosswatch/internal/session"
	"crosswatch/internal/timeutil"
)

// SourceController is the part of the pipeline manager commands drive
type SourceController interface {
	Sources() []string
	Publisher(sourceID string) (*session.Publisher, bool)
	ResetSession(sourceID string) error
}

// AlertLister reads stored alerts for /events
type AlertLister interface {
	ListAlerts(f database.EventFilter) ([]*database.AlertRecord, error)
}

// Update represents a Telegram update
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

// TelegramMessage is an incoming chat message
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	Chat      *TelegramChat `json:"chat,omitempty"`
	Date      int64         `json:"date"`
	Text      string        `json:"text,omitempty"`
}

// TelegramChat represents a Telegram chat
type TelegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// CommandHandler answers chat commands from the configured chat
type CommandHandler struct {
	bot          *TelegramBot
	sources      SourceController
	alerts       AlertLister
	clock        timeutil.Clock
	lastUpdateID int64
	startTime    time.Time
	mu           sync.Mutex
}

// NewCommandHandler creates a new command handler. alerts may be nil.
func NewCommandHandler(bot *TelegramBot, sources SourceController, alerts AlertLister, clock timeutil.Clock) *CommandHandler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CommandHandler{
		bot:       bot,
		sources:   sources,
		alerts:    alerts,
		clock:     clock,
		startTime: clock.Now(),
	}
}

// StartPolling polls for updates every 2 seconds until ctx is cancelled
func (ch *CommandHandler) StartPolling(ctx context.Context) error {
	if _, _, err := ch.bot.credentials(); err != nil {
		return err
	}

	ch.bot.logger.Infow("command polling started")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ch.bot.logger.Infow("command polling stopped")
			return nil
		case <-ticker.C:
			if err := ch.pollUpdates(ctx); err != nil {
				ch.bot.logger.Warnw("failed to poll updates", "error", err)
			}
		}
	}
}

// pollUpdates fetches and processes one batch of updates
func (ch *CommandHandler) pollUpdates(ctx context.Context) error {
	token, chatID, err := ch.bot.credentials()
	if err != nil {
		return err
	}

	ch.mu.Lock()
	offset := ch.lastUpdateID + 1
	ch.mu.Unlock()

	result, err := ch.bot.call(ctx, token, fmt.Sprintf("getUpdates?offset=%d&timeout=1", offset), nil)
	if err != nil {
		return fmt.Errorf("failed to fetch updates: %w", err)
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return fmt.Errorf("failed to parse updates: %w", err)
	}

	for _, update := range updates {
		ch.mu.Lock()
		if update.UpdateID > ch.lastUpdateID {
			ch.lastUpdateID = update.UpdateID
		}
		ch.mu.Unlock()

		if update.Message != nil {
			ch.handleMessage(ctx, update.Message, chatID)
		}
	}
	return nil
}

// handleMessage dispatches a command from the authorized chat
func (ch *CommandHandler) handleMessage(ctx context.Context, msg *TelegramMessage, authorizedChatID string) {
	if msg.Chat == nil {
		return
	}
	if chatID := strconv.FormatInt(msg.Chat.ID, 10); chatID != authorizedChatID {
		ch.bot.logger.Warnw("ignoring message from unauthorized chat", "chat_id", chatID)
		return
	}
	if !strings.HasPrefix(msg.Text, "/") {
		return
	}

	parts := strings.Fields(msg.Text)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	// Strip the bot username suffix (/status@mybot)
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}

	var response string
	switch command {
	case "/start", "/help":
		response = handleHelp()
	case "/status":
		response = ch.handleStatus()
	case "/counts":
		response = ch.handleCounts(args)
	case "/reset":
		response = ch.handleReset(args)
	case "/snapshot":
		response = ch.handleSnapshot(ctx, args)
	case "/events":
		response = ch.handleEvents(args)
	default:
		response = fmt.Sprintf("Unknown command: %s\nUse /help to see available commands.", command)
	}

	if response != "" {
		if err := ch.bot.SendMessage(ctx, response); err != nil {
			ch.bot.logger.Warnw("failed to send reply", "error", err)
		}
	}
}

func handleHelp() string {
	return "📋 <b>Available Commands</b>\n\n" +
		"/status - System status\n" +
		"/counts &lt;source&gt; - In/out totals of the current session\n" +
		"/reset &lt;source&gt; - Start a new counting session\n" +
		"/snapshot &lt;source&gt; - Latest frame\n" +
		"/events [limit] - Recent violation alerts\n" +
		"/help - Show this help"
}

func (ch *CommandHandler) handleStatus() string {
	ids := ch.sources.Sources()

	running := 0
	for _, id := range ids {
		if pub, ok := ch.sources.Publisher(id); ok {
			if status, _ := pub.Status(); status == session.StatusRunning {
				running++
			}
		}
	}

	return fmt.Sprintf(
		"📊 <b>System Status</b>\n\n"+
			"📹 Sources: %d total, %d running\n"+
			"⏱️ Uptime: %s",
		len(ids), running,
		formatDuration(ch.clock.Since(ch.startTime)),
	)
}

func (ch *CommandHandler) publisher(args []string) (*session.Publisher, string, string) {
	if len(args) == 0 {
		ids := ch.sources.Sources()
		if len(ids) != 1 {
			return nil, "", "Usage: specify a source ID"
		}
		args = ids
	}
	pub, ok := ch.sources.Publisher(args[0])
	if !ok {
		return nil, "", fmt.Sprintf("Source not found: %s", args[0])
	}
	return pub, args[0], ""
}

func (ch *CommandHandler) handleCounts(args []string) string {
	pub, id, errMsg := ch.publisher(args)
	if pub == nil {
		return errMsg
	}
	snap := pub.Latest()
	return fmt.Sprintf(
		"🔢 <b>%s</b>\n\n"+
			"➡️ In: %d\n"+
			"⬅️ Out: %d\n"+
			"🚨 Alerts: %d\n"+
			"🎞 Frames: %d",
		id, snap.In, snap.Out, len(snap.Alerts), snap.Frames,
	)
}

func (ch *CommandHandler) handleReset(args []string) string {
	if len(args) == 0 {
		return "Usage: /reset &lt;source&gt;"
	}
	if err := ch.sources.ResetSession(args[0]); err != nil {
		return fmt.Sprintf("❌ Reset failed: %v", err)
	}
	return fmt.Sprintf("✅ New session started on %s", args[0])
}

func (ch *CommandHandler) handleSnapshot(ctx context.Context, args []string) string {
	pub, id, errMsg := ch.publisher(args)
	if pub == nil {
		return errMsg
	}
	snap := pub.Latest()
	if len(snap.Frame) == 0 {
		return fmt.Sprintf("No frame yet from %s", id)
	}
	caption := fmt.Sprintf("📸 %s  In: %d  Out: %d", id, snap.In, snap.Out)
	if err := ch.bot.SendPhoto(ctx, snap.Frame, caption); err != nil {
		return fmt.Sprintf("❌ Snapshot failed: %v", err)
	}
	return ""
}

func (ch *CommandHandler) handleEvents(args []string) string {
	if ch.alerts == nil {
		return "Event history is not available"
	}

	limit := 5
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	alerts, err := ch.alerts.ListAlerts(database.EventFilter{Limit: limit})
	if err != nil {
		return fmt.Sprintf("❌ Failed to load events: %v", err)
	}
	if len(alerts) == 0 {
		return "No alerts recorded"
	}

	var b strings.Builder
	b.WriteString("📜 <b>Recent Alerts</b>\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n• %s  %s  frame %d", formatTime(a.Timestamp), a.SourceID, a.FrameIndex)
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm %ds", minutes, int(d.Seconds())%60)
	}
}
