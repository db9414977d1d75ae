package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parlayhq/parlayquoter/internal/config"
	"github.com/parlayhq/parlayquoter/internal/crypto"
	"github.com/parlayhq/parlayquoter/internal/platform/kalshi"
	"github.com/parlayhq/parlayquoter/internal/quoter"
)

// streamManager owns at most one live stream session. Credentials are
// supplied per session, held only by the session's client, and released when
// the session ends.
type streamManager struct {
	cfg    *config.Config
	quoter *quoter.Quoter
	logger *slog.Logger

	mu      sync.Mutex
	session *streamSession
}

// streamSession is one connect-to-stop lifetime.
type streamSession struct {
	client   *kalshi.Client
	listener *kalshi.Listener
}

func newStreamManager(cfg *config.Config, q *quoter.Quoter, logger *slog.Logger) *streamManager {
	return &streamManager{
		cfg:    cfg,
		quoter: q,
		logger: logger.With(slog.String("component", "stream")),
	}
}

// StartStream parses the supplied PEM key via a transient key file, builds a
// signed client and listener from it, and connects. The transient file is
// scrubbed and removed as soon as the key is parsed.
func (m *streamManager) StartStream(ctx context.Context, apiKeyID, privateKeyPEM string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return fmt.Errorf("app: stream already running")
	}

	keyPath, cleanup, err := crypto.WriteTransientKey(privateKeyPEM)
	if err != nil {
		return err
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{PrivateKeyPath: keyPath})
	cleanup()
	if err != nil {
		return err
	}

	client := kalshi.NewClient(m.cfg.Kalshi.BaseURL, apiKeyID, key, m.logger)
	if m.cfg.Kalshi.RateLimitRPS > 0 {
		client.SetRateLimit(m.cfg.Kalshi.RateLimitRPS, m.cfg.Kalshi.RateLimitBurst)
	}

	policy := kalshi.ReconnectPolicy{
		Enabled:     m.cfg.Stream.ReconnectEnabled,
		BaseDelay:   m.cfg.Stream.ReconnectBaseDelay.Duration,
		MaxDelay:    m.cfg.Stream.ReconnectMaxDelay.Duration,
		MaxAttempts: m.cfg.Stream.ReconnectMaxAttempts,
	}

	handlerCtx := context.WithoutCancel(ctx)
	listener := kalshi.NewListener(m.cfg.Kalshi.WSURL, client, func(event kalshi.Event) {
		m.quoter.HandleEvent(handlerCtx, event)
	}, policy, m.logger)

	if err := listener.Connect(ctx); err != nil {
		return err
	}

	m.session = &streamSession{client: client, listener: listener}
	m.quoter.SetClient(client)
	m.quoter.SetConnected(handlerCtx, true)

	// When the listener stops for good (reconnects exhausted or explicit
	// stop) the session is over.
	go m.watch(handlerCtx, listener)

	m.logger.Info("stream session started")
	return nil
}

// watch clears the session once its listener permanently stops.
func (m *streamManager) watch(ctx context.Context, listener *kalshi.Listener) {
	<-listener.Done()

	m.mu.Lock()
	if m.session != nil && m.session.listener == listener {
		m.session = nil
		m.quoter.SetClient(nil)
		m.quoter.SetConnected(ctx, false)
		m.logger.Info("stream session ended")
	}
	m.mu.Unlock()
}

// StopStream tears down the current session.
func (m *streamManager) StopStream(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil {
		return fmt.Errorf("app: no stream running")
	}
	return session.listener.Close()
}

// Shutdown stops any live session during application teardown.
func (m *streamManager) Shutdown() {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session != nil {
		_ = session.listener.Close()
	}
}
