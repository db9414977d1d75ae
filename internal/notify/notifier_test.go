package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu     sync.Mutex
	frames [][]byte
}

func (h *recordingHub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, data)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

type recordedSend struct {
	title   string
	message string
}

type channelSender struct {
	name string
	err  error
	sent chan recordedSend
}

func newChannelSender(name string) *channelSender {
	return &channelSender{name: name, sent: make(chan recordedSend, 8)}
}

func (s *channelSender) Send(ctx context.Context, title, message string) error {
	s.sent <- recordedSend{title: title, message: message}
	return s.err
}

func (s *channelSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForSend(t *testing.T, s *channelSender) recordedSend {
	t.Helper()
	select {
	case got := <-s.sent:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("sender never invoked")
		return recordedSend{}
	}
}

func TestPublishBroadcastsFrame(t *testing.T) {
	hub := &recordingHub{}
	n := New(hub, nil, nil, discardLogger())

	n.Publish(context.Background(), "quote_sent", map[string]string{"quote_id": "q-1"})

	require.Equal(t, 1, hub.count())

	var f struct {
		Type      string            `json:"type"`
		Payload   map[string]string `json:"payload"`
		Timestamp time.Time         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(hub.frames[0], &f))
	assert.Equal(t, "quote_sent", f.Type)
	assert.Equal(t, "q-1", f.Payload["quote_id"])
	assert.False(t, f.Timestamp.IsZero())
}

func TestPublishNilHubDoesNotPanic(t *testing.T) {
	n := New(nil, nil, nil, discardLogger())
	n.Publish(context.Background(), "quote_sent", nil)
}

func TestPublishFiltersChatEvents(t *testing.T) {
	hub := &recordingHub{}
	sender := newChannelSender("test")
	n := New(hub, []Sender{sender}, []string{"quote_accepted"}, discardLogger())

	n.Publish(context.Background(), "rfq_received", nil)
	n.Publish(context.Background(), "quote_accepted", map[string]string{"quote_id": "q-2"})

	// Hub sees both events regardless of the chat filter.
	assert.Equal(t, 2, hub.count())

	got := waitForSend(t, sender)
	assert.Equal(t, "Quote accepted", got.title)
	assert.Contains(t, got.message, "q-2")

	select {
	case extra := <-sender.sent:
		t.Fatalf("unexpected chat delivery: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishEmptyFilterForwardsEverything(t *testing.T) {
	sender := newChannelSender("test")
	n := New(nil, []Sender{sender}, nil, discardLogger())

	n.Publish(context.Background(), "connection_status", map[string]bool{"connected": true})

	got := waitForSend(t, sender)
	assert.Equal(t, "Stream connection status", got.title)
}

func TestPublishSenderFailureDoesNotBlockOthers(t *testing.T) {
	failing := newChannelSender("failing")
	failing.err = errors.New("boom")
	healthy := newChannelSender("healthy")

	n := New(nil, []Sender{failing, healthy}, nil, discardLogger())
	n.Publish(context.Background(), "quote_confirmed", nil)

	waitForSend(t, failing)
	got := waitForSend(t, healthy)
	assert.Equal(t, "Quote confirmed", got.title)
}

func TestPublishSurvivesCallerContextCancel(t *testing.T) {
	sender := newChannelSender("test")
	n := New(nil, []Sender{sender}, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	n.Publish(ctx, "quote_sent", nil)
	cancel()

	waitForSend(t, sender)
}

func TestRenderTextTitles(t *testing.T) {
	tests := map[string]string{
		"rfq_received":             "RFQ received",
		"quote_sent":               "Quote sent",
		"quote_error":              "Quote error",
		"quote_matched":            "Quote matched",
		"quote_confirmation_error": "Quote confirmation FAILED",
		"auto_confirm_changed":     "Auto-confirm changed",
		"something_else":           "something_else",
	}
	for event, want := range tests {
		title, _ := renderText(event, nil)
		assert.Equal(t, want, title, "event %s", event)
	}
}
