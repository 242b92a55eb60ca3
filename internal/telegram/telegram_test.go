package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosswatch/internal/alert"
	"crosswatch/internal/database"
	"crosswatch/internal/logging"
	"crosswatch/internal/session"
	"crosswatch/internal/timeutil"
)

type sentMessage struct {
	Method  string
	ChatID  string
	Text    string
	Caption string
	Photo   []byte
}

// fakeAPI records every Bot API call and serves queued updates
type fakeAPI struct {
	mu      sync.Mutex
	sent    []sentMessage
	updates []Update
	offsets []string
	fail    bool
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		assert.True(t, strings.HasPrefix(r.URL.Path, "/bottoken123/"), r.URL.Path)

		f.mu.Lock()
		defer f.mu.Unlock()

		if f.fail {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}

		switch method {
		case "sendMessage":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			f.sent = append(f.sent, sentMessage{Method: method, ChatID: payload["chat_id"].(string), Text: payload["text"].(string)})
		case "sendPhoto":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, _, err := r.FormFile("photo")
			require.NoError(t, err)
			data, _ := io.ReadAll(file)
			f.sent = append(f.sent, sentMessage{Method: method, ChatID: r.FormValue("chat_id"), Caption: r.FormValue("caption"), Photo: data})
		case "getUpdates":
			f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
			result, _ := json.Marshal(f.updates)
			f.updates = nil
			_, _ = w.Write([]byte(`{"ok":true,"result":` + string(result) + `}`))
			return
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"username":"crosswatch_bot"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	})
}

func (f *fakeAPI) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeAPI) queue(updates ...Update) {
	f.mu.Lock()
	f.updates = append(f.updates, updates...)
	f.mu.Unlock()
}

func (f *fakeAPI) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestBot(t *testing.T, api *fakeAPI) *TelegramBot {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewTelegramBot(Config{BotToken: "token123", ChatID: "42", Enabled: true, APIBase: srv.URL}, logging.NewTest(t))
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(Config{}))
	assert.NoError(t, ValidateConfig(Config{Enabled: true, BotToken: "t", ChatID: "1"}))
	assert.Error(t, ValidateConfig(Config{Enabled: true, ChatID: "1"}))
	assert.Error(t, ValidateConfig(Config{Enabled: true, BotToken: "t"}))
	assert.Error(t, ValidateConfig(Config{Timeout: -time.Second}))
}

func TestSendViolationAlert(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(t, api)
	ev := alert.Event{FrameIndex: 17, Consecutive: 2, Time: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}

	require.NoError(t, bot.SendViolationAlert(context.Background(), "exam-hall", ev, []byte{0xFF, 0xD8}))
	require.NoError(t, bot.SendViolationAlert(context.Background(), "exam-hall", ev, nil))

	sent := api.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "sendPhoto", sent[0].Method)
	assert.Equal(t, "42", sent[0].ChatID)
	assert.Equal(t, []byte{0xFF, 0xD8}, sent[0].Photo)
	assert.Contains(t, sent[0].Caption, "exam-hall")
	assert.Contains(t, sent[0].Caption, "Frame: 17 (2 consecutive)")
	assert.Contains(t, sent[0].Caption, "1 Apr 2026, 10:00:00 UTC")
	assert.Equal(t, "sendMessage", sent[1].Method)
}

func TestSendRecognition(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(t, api)

	rec := session.Recognition{Name: "Alice", Confidence: 0.91}
	require.NoError(t, bot.SendRecognition(context.Background(), "lobby", rec, nil))

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Alice")
	assert.Contains(t, sent[0].Text, "91%")
}

func TestDisabledAndAPIErrors(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(t, api)

	bot.SetEnabled(false)
	assert.ErrorIs(t, bot.SendMessage(context.Background(), "hi"), ErrDisabled)
	assert.Empty(t, api.messages())

	bot.SetEnabled(true)
	api.setFail(true)
	err := bot.SendMessage(context.Background(), "hi")
	assert.ErrorContains(t, err, "chat not found")
}

func TestGetBotInfo(t *testing.T) {
	bot := newTestBot(t, &fakeAPI{})
	info, err := bot.GetBotInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "crosswatch_bot", info["username"])
}

type fakeSources struct {
	pubs   map[string]*session.Publisher
	resets []string
}

func (f *fakeSources) Sources() []string {
	var ids []string
	for id := range f.pubs {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeSources) Publisher(id string) (*session.Publisher, bool) {
	p, ok := f.pubs[id]
	return p, ok
}

func (f *fakeSources) ResetSession(id string) error {
	f.resets = append(f.resets, id)
	return nil
}

type fakeAlerts struct{ records []*database.AlertRecord }

func (f *fakeAlerts) ListAlerts(filter database.EventFilter) ([]*database.AlertRecord, error) {
	return f.records, nil
}

func command(id int64, chat int64, text string) Update {
	return Update{UpdateID: id, Message: &TelegramMessage{MessageID: id, Chat: &TelegramChat{ID: chat}, Text: text}}
}

func TestCommandHandler(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(t, api)

	pub := session.NewPublisher()
	pub.Publish(session.Snapshot{In: 3, Out: 1, Frames: 120, Frame: []byte{0xFF, 0xD8}, Status: session.StatusRunning})
	sources := &fakeSources{pubs: map[string]*session.Publisher{"hall": pub}}
	alerts := &fakeAlerts{records: []*database.AlertRecord{{SourceID: "hall", FrameIndex: 9, Timestamp: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}}}

	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	ch := NewCommandHandler(bot, sources, alerts, clock)
	clock.Advance(90 * time.Minute)

	api.queue(
		command(5, 42, "/status"),
		command(6, 42, "/counts@crosswatch_bot hall"),
		command(7, 99, "/reset hall"), // wrong chat
		command(8, 42, "/reset hall"),
		command(9, 42, "/snapshot"),
		command(10, 42, "/events 3"),
		command(11, 42, "/bogus"),
		command(12, 42, "not a command"),
	)
	require.NoError(t, ch.pollUpdates(context.Background()))
	require.NoError(t, ch.pollUpdates(context.Background()))

	api.mu.Lock()
	assert.Equal(t, []string{"1", "13"}, api.offsets)
	api.mu.Unlock()
	assert.Equal(t, []string{"hall"}, sources.resets)

	sent := api.messages()
	require.Len(t, sent, 6)
	assert.Contains(t, sent[0].Text, "Sources: 1 total, 1 running")
	assert.Contains(t, sent[0].Text, "1h 30m")
	assert.Contains(t, sent[1].Text, "In: 3")
	assert.Contains(t, sent[1].Text, "Out: 1")
	assert.Contains(t, sent[2].Text, "New session started on hall")
	assert.Equal(t, "sendPhoto", sent[3].Method)
	assert.Contains(t, sent[3].Caption, "In: 3")
	assert.Contains(t, sent[4].Text, "frame 9")
	assert.Contains(t, sent[5].Text, "Unknown command: /bogus")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0m 45s", formatDuration(45*time.Second))
	assert.Equal(t, "2h 5m", formatDuration(2*time.Hour+5*time.Minute))
	assert.Equal(t, "1d 3h 0m", formatDuration(27*time.Hour))
}
