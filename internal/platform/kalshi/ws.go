package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlayhq/parlayquoter/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than pongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsHandshakeTimeout bounds the dial.
	wsHandshakeTimeout = 15 * time.Second
)

// ReconnectPolicy controls how the listener behaves after an unexpected
// disconnect. The zero value disables reconnection entirely.
type ReconnectPolicy struct {
	// Enabled turns automatic reconnection on.
	Enabled bool

	// BaseDelay is the initial backoff delay. Defaults to 2s when zero.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff. Defaults to 60s when zero.
	MaxDelay time.Duration

	// MaxAttempts limits consecutive failed reconnect attempts before the
	// listener gives up. Zero means unlimited.
	MaxAttempts int
}

// DefaultReconnectPolicy is capped exponential backoff with no attempt cap.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:   true,
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

func (p ReconnectPolicy) baseDelay() time.Duration {
	if p.BaseDelay > 0 {
		return p.BaseDelay
	}
	return 2 * time.Second
}

func (p ReconnectPolicy) maxDelay() time.Duration {
	if p.MaxDelay > 0 {
		return p.MaxDelay
	}
	return 60 * time.Second
}

// HeaderSource produces signed authentication headers for a request. The
// REST *Client satisfies this with AuthHeaders.
type HeaderSource interface {
	AuthHeaders(method, path string) (http.Header, error)
}

// EventHandler receives every decoded stream event in arrival order.
type EventHandler func(Event)

// Listener maintains an authenticated WebSocket subscription to the
// communications channel and dispatches decoded events to a handler.
type Listener struct {
	wsURL     string
	auth      HeaderSource
	handler   EventHandler
	reconnect ReconnectPolicy
	logger    *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cmdID  int64
	closed bool

	// done is closed exactly once when the listener shuts down.
	done chan struct{}
}

// NewListener creates a listener for the communications stream.
//
// wsURL is the WebSocket endpoint, e.g.
// "wss://api.elections.kalshi.com/trade-api/ws/v2". The signed path is
// derived from the URL path.
func NewListener(wsURL string, auth HeaderSource, handler EventHandler, policy ReconnectPolicy, logger *slog.Logger) *Listener {
	return &Listener{
		wsURL:     wsURL,
		auth:      auth,
		handler:   handler,
		reconnect: policy,
		logger:    logger.With(slog.String("component", "kalshi_ws")),
		done:      make(chan struct{}),
	}
}

// Connect dials the stream, subscribes to the communications channel, and
// starts the read and ping loops.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("kalshi/ws: listener is closed")
	}

	headers, err := l.auth.AuthHeaders(http.MethodGet, "/trade-api/ws/v2")
	if err != nil {
		return fmt.Errorf("kalshi/ws: auth headers: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, l.wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("kalshi/ws: connect: %w: status %d", domain.ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}

	l.conn = conn

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	if err := l.sendSubscribe(conn); err != nil {
		conn.Close()
		l.conn = nil
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	go l.readLoop(conn)
	go l.pingLoop(conn)

	l.logger.Info("connected to communications stream", slog.String("url", l.wsURL))
	return nil
}

// Close shuts down the listener. Safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)

	if l.conn != nil {
		_ = l.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return l.conn.Close()
	}
	return nil
}

// Done is closed when the listener has permanently stopped, whether by Close
// or by exhausting reconnect attempts.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendSubscribe sends the communications subscribe command. Caller must hold l.mu.
func (l *Listener) sendSubscribe(conn *websocket.Conn) error {
	l.cmdID++

	cmd := subscribeCmd{
		ID:  l.cmdID,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels: []string{"communications"},
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames from one connection until it fails, then hands off
// to the reconnect logic. Each connection gets its own loop.
func (l *Listener) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-l.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}

			l.logger.Warn("stream read failed",
				slog.String("error", err.Error()),
			)
			l.handleDisconnect()
			return
		}

		l.dispatch(message)
	}
}

// pingLoop keeps one connection alive with periodic pings.
func (l *Listener) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one raw frame and invokes the handler. Malformed frames
// are logged and skipped so one bad message never kills the stream.
func (l *Listener) dispatch(raw []byte) {
	event, err := DecodeEvent(raw)
	if err != nil {
		var decodeErr *domain.DecodeError
		if errors.As(err, &decodeErr) {
			l.logger.Warn("skipping malformed stream event",
				slog.String("type", decodeErr.Type),
				slog.String("reason", decodeErr.Reason),
			)
		} else {
			l.logger.Warn("skipping undecodable stream frame",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if l.handler != nil {
		l.handler(event)
	}
}

// handleDisconnect applies the reconnect policy after an unexpected drop.
// It marks the listener closed when the policy is disabled or exhausted.
func (l *Listener) handleDisconnect() {
	if !l.reconnect.Enabled {
		l.logger.Info("reconnect disabled, stopping listener")
		l.Close()
		return
	}

	delay := l.reconnect.baseDelay()
	attempts := 0

	for {
		select {
		case <-l.done:
			return
		case <-time.After(delay):
		}

		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), wsHandshakeTimeout)
		err := l.Connect(ctx)
		cancel()

		if err == nil {
			l.logger.Info("reconnected to communications stream",
				slog.Int("attempts", attempts),
			)
			return
		}

		l.logger.Warn("reconnect attempt failed",
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()),
		)

		if l.reconnect.MaxAttempts > 0 && attempts >= l.reconnect.MaxAttempts {
			l.logger.Error("reconnect attempts exhausted, stopping listener",
				slog.Int("attempts", attempts),
			)
			l.Close()
			return
		}

		delay *= 2
		if max := l.reconnect.maxDelay(); delay > max {
			delay = max
		}
	}
}
