// Package app wires the bot together: orchestrator, notifier, hub, HTTP
// server, and the stream session manager, all running under one errgroup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/parlayhq/parlayquoter/internal/config"
	"github.com/parlayhq/parlayquoter/internal/crypto"
	"github.com/parlayhq/parlayquoter/internal/notify"
	"github.com/parlayhq/parlayquoter/internal/quoter"
	"github.com/parlayhq/parlayquoter/internal/server"
	"github.com/parlayhq/parlayquoter/internal/server/handler"
	"github.com/parlayhq/parlayquoter/internal/server/ws"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	quoter  *quoter.Quoter
	streams *streamManager
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the hub and server, optionally
// auto-starts a stream session from configured credentials, and blocks until
// the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	yesBid, err := decimal.NewFromString(a.cfg.Quote.YesBid)
	if err != nil {
		return fmt.Errorf("app: parse yes_bid: %w", err)
	}
	noBid, err := decimal.NewFromString(a.cfg.Quote.NoBid)
	if err != nil {
		return fmt.Errorf("app: parse no_bid: %w", err)
	}

	var senders []notify.Sender
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID))
	}
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}

	// The hub needs the status snapshot and the status handler needs the
	// quoter, so construction is staged.
	var statusHandler *handler.StatusHandler
	hub := ws.NewHub(func() any {
		if statusHandler == nil {
			return nil
		}
		return statusHandler.Snapshot()
	}, a.logger)

	notifier := notify.New(hub, senders, a.cfg.Notify.Events, a.logger)

	a.quoter = quoter.New(quoter.Config{
		YesBid:        yesBid,
		NoBid:         noBid,
		RestRemainder: a.cfg.Quote.RestRemainder,
		AutoConfirm:   a.cfg.Quote.AutoConfirm,
		TargetLegs:    a.cfg.Quote.TargetLegs,
		TaskLimit:     a.cfg.Quote.TaskLimit,
	}, notifier, a.logger)

	a.streams = newStreamManager(a.cfg, a.quoter, a.logger)
	statusHandler = handler.NewStatusHandler(a.quoter)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:           a.cfg.Server.Port,
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			APIKey:         a.cfg.Server.APIKey,
			RateLimitRPS:   a.cfg.Server.RateLimitRPS,
			RateLimitBurst: a.cfg.Server.RateLimitBurst,
		}, server.Handlers{
			Status:  statusHandler,
			History: handler.NewHistoryHandler(a.quoter),
			Control: handler.NewControlHandler(a.quoter),
			Stream:  handler.NewStreamHandler(a.streams),
		}, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.cfg.Kalshi.HasCredentials() {
		if err := a.startConfiguredStream(ctx); err != nil {
			a.logger.Error("auto-start stream failed", slog.String("error", err.Error()))
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		a.streams.Shutdown()
		return nil
	})

	err = g.Wait()

	// Join any quote/confirm tasks still in flight before returning.
	if werr := a.quoter.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

// startConfiguredStream boots a session from config-file credentials, so an
// operator does not have to POST them after every restart.
func (a *App) startConfiguredStream(ctx context.Context) error {
	pem, err := a.loadConfiguredKeyPEM()
	if err != nil {
		return err
	}
	return a.streams.StartStream(ctx, a.cfg.Kalshi.APIKeyID, pem)
}

// loadConfiguredKeyPEM reads the configured key material, decrypting the
// at-rest file when that source is used.
func (a *App) loadConfiguredKeyPEM() (string, error) {
	if a.cfg.Kalshi.PrivateKeyPath != "" {
		data, err := os.ReadFile(a.cfg.Kalshi.PrivateKeyPath)
		if err != nil {
			return "", fmt.Errorf("app: read private key: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(a.cfg.Kalshi.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("app: read encrypted key: %w", err)
	}
	pem, err := crypto.DecryptKey(data, a.cfg.Kalshi.KeyPassword)
	if err != nil {
		return "", err
	}
	return string(pem), nil
}
