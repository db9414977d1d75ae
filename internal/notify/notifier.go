// Package notify fans orchestrator events out to observers: the operator
// WebSocket hub gets every event as a JSON frame, and optional chat senders
// (Telegram, Discord) get text renderings of the event types the operator
// opted into.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sender is the interface each chat notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Broadcaster pushes a frame to every connected dashboard client. The
// operator hub implements this.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Notifier is the orchestrator's observer sink. Publish never blocks the
// caller and never returns an error: hub broadcast drops on backpressure and
// chat sender failures are logged, not propagated.
type Notifier struct {
	hub     Broadcaster
	senders []Sender
	events  map[string]bool // event types forwarded to chat senders
	logger  *slog.Logger
}

// New creates a Notifier. hub may be nil (no dashboard). If events is empty
// every event type is forwarded to the chat senders.
func New(hub Broadcaster, senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		hub:     hub,
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// frame is the JSON envelope pushed to dashboard clients.
type frame struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publish delivers one event to all observers.
func (n *Notifier) Publish(ctx context.Context, event string, payload any) {
	data, err := json.Marshal(frame{
		Type:      event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "marshal event frame",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}

	if n.hub != nil {
		n.hub.Broadcast(data)
	}

	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		return
	}

	// Chat delivery is HTTP; keep it off the caller's path.
	title, message := renderText(event, payload)
	go n.dispatch(context.WithoutCancel(ctx), title, message)
}

// dispatch sends to every chat sender. A single failure does not prevent
// delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}
}

// renderText turns an event into a chat-friendly title and body.
func renderText(event string, payload any) (title, message string) {
	switch event {
	case "rfq_received":
		title = "RFQ received"
	case "quote_sent":
		title = "Quote sent"
	case "quote_error":
		title = "Quote error"
	case "quote_accepted":
		title = "Quote accepted"
	case "quote_matched":
		title = "Quote matched"
	case "quote_confirmed":
		title = "Quote confirmed"
	case "quote_confirmation_error":
		title = "Quote confirmation FAILED"
	case "connection_status":
		title = "Stream connection status"
	case "auto_confirm_changed":
		title = "Auto-confirm changed"
	default:
		title = event
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return title, fmt.Sprintf("%v", payload)
	}
	return title, string(body)
}
