// Package quoter holds the stateful core of the bot: it consumes decoded
// stream events, matches RFQs against the operator's target leg set, submits
// quotes, and drives confirmation of accepted quotes.
package quoter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/parlayhq/parlayquoter/internal/classify"
	"github.com/parlayhq/parlayquoter/internal/domain"
	"github.com/parlayhq/parlayquoter/internal/platform/kalshi"
)

// defaultTaskLimit bounds concurrently in-flight quote/confirm calls so the
// stream loop never blocks on network I/O and a flood of RFQs cannot spawn
// unbounded goroutines.
const defaultTaskLimit = 32

// QuoteAPI is the slice of the REST client the orchestrator drives.
type QuoteAPI interface {
	CreateQuote(ctx context.Context, rfqID string, yesBid, noBid decimal.Decimal, restRemainder bool) (kalshi.Quote, error)
	ConfirmQuote(ctx context.Context, quoteID string) (kalshi.ConfirmResult, error)
}

// Publisher receives every state change the orchestrator makes, for fan-out
// to dashboards and chat senders. Implementations must not block.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// Published event names.
const (
	EventRFQReceived       = "rfq_received"
	EventQuoteSent         = "quote_sent"
	EventQuoteError        = "quote_error"
	EventQuoteAccepted     = "quote_accepted"
	EventQuoteMatched      = "quote_matched"
	EventQuoteConfirmed    = "quote_confirmed"
	EventQuoteConfirmError = "quote_confirmation_error"
	EventConnectionStatus  = "connection_status"
	EventAutoConfirm       = "auto_confirm_changed"
)

// Config carries the orchestrator's initial operator-tunable settings.
type Config struct {
	YesBid        decimal.Decimal
	NoBid         decimal.Decimal
	RestRemainder bool
	AutoConfirm   bool
	TargetLegs    []string

	// TaskLimit bounds in-flight quote/confirm tasks. Zero means the default.
	TaskLimit int
}

// Quoter is the single owned orchestrator instance. All mutable state lives
// behind its mutex; the stream loop and the HTTP handlers are the two
// writers.
type Quoter struct {
	publisher Publisher
	logger    *slog.Logger

	tasks *errgroup.Group

	mu            sync.RWMutex
	client        QuoteAPI
	connected     bool
	autoConfirm   bool
	restRemainder bool
	yesBid        decimal.Decimal
	noBid         decimal.Decimal
	targetLegs    []string

	rfqHistory   []domain.RFQRecord
	quoteHistory []*domain.QuoteRecord
	accepted     []*domain.AcceptedQuote

	// legCatalog groups every leg ever seen: category -> subcategory ->
	// leg id -> description. Feeds the available-legs endpoint.
	legCatalog map[string]map[string]map[string]string
}

// New creates an orchestrator. The REST client is attached later, when the
// operator starts a stream session with credentials.
func New(cfg Config, publisher Publisher, logger *slog.Logger) *Quoter {
	limit := cfg.TaskLimit
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	tasks := &errgroup.Group{}
	tasks.SetLimit(limit)

	targets := make([]string, 0, len(cfg.TargetLegs))
	for _, t := range cfg.TargetLegs {
		targets = append(targets, domain.NormalizeLegID(t))
	}

	return &Quoter{
		publisher:     publisher,
		logger:        logger.With(slog.String("component", "quoter")),
		tasks:         tasks,
		autoConfirm:   cfg.AutoConfirm,
		restRemainder: cfg.RestRemainder,
		yesBid:        cfg.YesBid,
		noBid:         cfg.NoBid,
		targetLegs:    targets,
		legCatalog:    make(map[string]map[string]map[string]string),
	}
}

// Wait joins all in-flight quote/confirm tasks. Call during shutdown.
func (q *Quoter) Wait() error {
	return q.tasks.Wait()
}

// --------------------------------------------------------------------------
// Stream event handling
// --------------------------------------------------------------------------

// HandleEvent is the listener callback. It runs on the stream loop and must
// stay fast: network calls are handed to the task spawner.
func (q *Quoter) HandleEvent(ctx context.Context, event kalshi.Event) {
	switch e := event.(type) {
	case kalshi.RFQCreatedEvent:
		q.onRFQCreated(ctx, e.RFQ)
	case kalshi.RFQDeletedEvent:
		q.logger.Debug("rfq deleted", slog.String("rfq_id", e.RFQID))
	case kalshi.QuoteCreatedEvent:
		q.markQuoteMatched(ctx, e.QuoteID)
	case kalshi.QuoteAcceptedEvent:
		q.onQuoteAccepted(ctx, e.QuoteEventMsg)
	case kalshi.QuoteConfirmedEvent:
		q.markQuoteMatched(ctx, e.QuoteID)
	case kalshi.SubscribedEvent:
		q.logger.Info("channel subscription acknowledged",
			slog.String("channel", e.Channel),
			slog.Int64("sid", e.SID),
		)
	case kalshi.UnknownEvent:
		q.logger.Debug("ignoring unknown stream event", slog.String("type", e.Type))
	}
}

// onRFQCreated records the RFQ, folds its legs into the catalog, and quotes
// it when it matches the target leg set.
func (q *Quoter) onRFQCreated(ctx context.Context, rfq kalshi.RFQ) {
	legs := make([]domain.Leg, 0, len(rfq.Legs))
	summaries := make([]string, 0, len(rfq.Legs))
	for _, wireLeg := range rfq.Legs {
		leg := wireLeg.ToDomain()
		legs = append(legs, leg)
		summaries = append(summaries, leg.Description())
	}

	q.mu.Lock()
	for _, leg := range legs {
		q.catalogLegLocked(leg)
	}
	matched := MatchesTarget(legs, q.targetLegs)
	record := domain.RFQRecord{
		ID:           uuid.NewString(),
		RFQID:        rfq.ID,
		MarketTicker: rfq.MarketTicker,
		Contracts:    rfq.Contracts,
		TargetCost:   rfq.TargetCost(),
		Legs:         legs,
		LegSummaries: summaries,
		Matched:      matched,
		ReceivedAt:   time.Now().UTC(),
	}
	q.rfqHistory = append(q.rfqHistory, record)
	yesBid, noBid := q.yesBid, q.noBid
	q.mu.Unlock()

	q.logger.Info("rfq received",
		slog.String("rfq_id", rfq.ID),
		slog.String("market_ticker", rfq.MarketTicker),
		slog.Int("legs", len(legs)),
		slog.Bool("matched", matched),
	)
	q.publisher.Publish(ctx, EventRFQReceived, record)

	if !matched {
		return
	}

	if !q.tasks.TryGo(func() error {
		q.sendQuote(context.WithoutCancel(ctx), rfq, yesBid, noBid)
		return nil
	}) {
		q.logger.Error("quote task dropped, spawner saturated",
			slog.String("rfq_id", rfq.ID),
		)
	}
}

// catalogLegLocked files one leg under its classification. Caller holds q.mu.
func (q *Quoter) catalogLegLocked(leg domain.Leg) {
	category, subcategory := classify.Classify(leg.MarketTicker, leg.Side)

	cat := string(category)
	sub := string(subcategory)
	if q.legCatalog[cat] == nil {
		q.legCatalog[cat] = make(map[string]map[string]string)
	}
	if q.legCatalog[cat][sub] == nil {
		q.legCatalog[cat][sub] = make(map[string]string)
	}
	q.legCatalog[cat][sub][leg.ID()] = leg.Description()
}

// sendQuote performs the CreateQuote call and records the outcome. Exactly
// one history entry is appended per attempt; rejected quotes are reported
// once and never retried.
func (q *Quoter) sendQuote(ctx context.Context, rfq kalshi.RFQ, yesBid, noBid decimal.Decimal) {
	q.mu.RLock()
	client := q.client
	restRemainder := q.restRemainder
	q.mu.RUnlock()

	record := &domain.QuoteRecord{
		ID:           uuid.NewString(),
		RFQID:        rfq.ID,
		MarketTicker: rfq.MarketTicker,
		YesBid:       yesBid.StringFixed(4),
		NoBid:        noBid.StringFixed(4),
		SentAt:       time.Now().UTC(),
	}
	record.Request = kalshi.CreateQuoteRequest{
		RFQID:         rfq.ID,
		YesBid:        record.YesBid,
		NoBid:         record.NoBid,
		RestRemainder: restRemainder,
	}

	if client == nil {
		record.Status = domain.QuoteStatusError
		record.Error = domain.ErrMissingCredentials.Error()
	} else if quote, err := client.CreateQuote(ctx, rfq.ID, yesBid, noBid, restRemainder); err != nil {
		record.Status = domain.QuoteStatusError
		record.Error = err.Error()
		q.logger.Error("quote rejected",
			slog.String("rfq_id", rfq.ID),
			slog.String("error", err.Error()),
		)
	} else {
		record.Status = domain.QuoteStatusSent
		record.QuoteID = quote.Identifier()
		record.Response = quote
		q.logger.Info("quote sent",
			slog.String("rfq_id", rfq.ID),
			slog.String("quote_id", record.QuoteID),
			slog.String("yes_bid", record.YesBid),
			slog.String("no_bid", record.NoBid),
		)
	}

	q.mu.Lock()
	q.quoteHistory = append(q.quoteHistory, record)
	snapshot := *record
	q.mu.Unlock()

	if snapshot.Status == domain.QuoteStatusSent {
		q.publisher.Publish(ctx, EventQuoteSent, snapshot)
	} else {
		q.publisher.Publish(ctx, EventQuoteError, snapshot)
	}
}

// onQuoteAccepted records the acceptance, marks the sent quote matched, and
// kicks off confirmation when auto-confirm is on.
func (q *Quoter) onQuoteAccepted(ctx context.Context, msg kalshi.QuoteEventMsg) {
	q.mu.Lock()
	accepted := &domain.AcceptedQuote{
		ID:           uuid.NewString(),
		QuoteID:      msg.QuoteID,
		RFQID:        msg.RFQID,
		MarketTicker: msg.MarketTicker,
		YesPrice:     msg.YesPrice,
		NoPrice:      msg.NoPrice,
		AcceptedAt:   time.Now().UTC(),
	}
	q.accepted = append(q.accepted, accepted)
	autoConfirm := q.autoConfirm
	snapshot := *accepted
	q.mu.Unlock()

	q.logger.Info("quote accepted",
		slog.String("quote_id", msg.QuoteID),
		slog.String("rfq_id", msg.RFQID),
		slog.Bool("auto_confirm", autoConfirm),
	)
	q.publisher.Publish(ctx, EventQuoteAccepted, snapshot)

	q.markQuoteMatched(ctx, msg.QuoteID)

	if !autoConfirm {
		return
	}
	if !q.tasks.TryGo(func() error {
		q.confirm(context.WithoutCancel(ctx), msg.QuoteID, true)
		return nil
	}) {
		q.logger.Error("confirm task dropped, spawner saturated",
			slog.String("quote_id", msg.QuoteID),
		)
	}
}

// markQuoteMatched flips the matched flag on the sent-quote entry for
// quoteID. The flag is monotonic: once set it never reverts, and repeat
// events are no-ops.
func (q *Quoter) markQuoteMatched(ctx context.Context, quoteID string) {
	if quoteID == "" {
		return
	}

	q.mu.Lock()
	var snapshot *domain.QuoteRecord
	for _, record := range q.quoteHistory {
		if record.QuoteID == quoteID && !record.Matched {
			record.Matched = true
			record.MatchedAt = time.Now().UTC()
			s := *record
			snapshot = &s
			break
		}
	}
	q.mu.Unlock()

	if snapshot != nil {
		q.publisher.Publish(ctx, EventQuoteMatched, *snapshot)
	}
}

// Confirm triggers confirmation of an accepted quote by quote id. It is the
// manual operator path; auto-confirmation goes through the same logic.
// Returns domain.ErrNotFound when the quote id is not in the accepted list.
func (q *Quoter) Confirm(ctx context.Context, quoteID string) error {
	q.mu.RLock()
	known := q.findAcceptedLocked(quoteID) != nil
	q.mu.RUnlock()
	if !known {
		return fmt.Errorf("quoter: confirm %s: %w", quoteID, domain.ErrNotFound)
	}

	if !q.tasks.TryGo(func() error {
		q.confirm(context.WithoutCancel(ctx), quoteID, false)
		return nil
	}) {
		return fmt.Errorf("quoter: confirm %s: task spawner saturated", quoteID)
	}
	return nil
}

// findAcceptedLocked returns the accepted entry for quoteID. Caller holds q.mu.
func (q *Quoter) findAcceptedLocked(quoteID string) *domain.AcceptedQuote {
	for _, a := range q.accepted {
		if a.QuoteID == quoteID {
			return a
		}
	}
	return nil
}

// confirm runs one confirmation attempt against the client (which retries
// internally) and records the outcome on the AcceptedQuote. Failure here is
// terminal for the attempt and never crashes the stream loop.
func (q *Quoter) confirm(ctx context.Context, quoteID string, auto bool) {
	q.mu.RLock()
	client := q.client
	q.mu.RUnlock()

	var confirmErr error
	if client == nil {
		confirmErr = domain.ErrMissingCredentials
	} else {
		_, confirmErr = client.ConfirmQuote(ctx, quoteID)
	}

	q.mu.Lock()
	accepted := q.findAcceptedLocked(quoteID)
	if accepted == nil {
		// Auto-confirm can race a manual delete of history only in tests;
		// synthesize an entry so the outcome is never lost.
		accepted = &domain.AcceptedQuote{
			ID:         uuid.NewString(),
			QuoteID:    quoteID,
			AcceptedAt: time.Now().UTC(),
		}
		q.accepted = append(q.accepted, accepted)
	}
	if confirmErr == nil {
		// Confirmation is at-most-once: a redundant confirm never rewrites
		// who confirmed first or when.
		if !accepted.Confirmed {
			accepted.Confirmed = true
			accepted.AutoConfirmed = auto
			accepted.ConfirmedAt = time.Now().UTC()
		}
	} else {
		accepted.ConfirmationError = confirmErr.Error()
	}
	snapshot := *accepted
	q.mu.Unlock()

	if confirmErr == nil {
		q.logger.Info("quote confirmed",
			slog.String("quote_id", quoteID),
			slog.Bool("auto", auto),
		)
		q.publisher.Publish(ctx, EventQuoteConfirmed, snapshot)
		return
	}

	q.logger.Error("quote confirmation failed",
		slog.String("quote_id", quoteID),
		slog.String("error", confirmErr.Error()),
	)
	q.publisher.Publish(ctx, EventQuoteConfirmError, snapshot)
}

// --------------------------------------------------------------------------
// Operator-facing state
// --------------------------------------------------------------------------

// SetClient attaches the REST client for the current stream session, or
// detaches it with nil on stop.
func (q *Quoter) SetClient(client QuoteAPI) {
	q.mu.Lock()
	q.client = client
	q.mu.Unlock()
}

// SetConnected updates the stream connection flag and publishes the change.
func (q *Quoter) SetConnected(ctx context.Context, connected bool) {
	q.mu.Lock()
	q.connected = connected
	q.mu.Unlock()
	q.publisher.Publish(ctx, EventConnectionStatus, map[string]bool{"connected": connected})
}

// Connected reports whether a stream session is live.
func (q *Quoter) Connected() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.connected
}

// ToggleAutoConfirm flips the auto-confirm flag and returns the new value.
func (q *Quoter) ToggleAutoConfirm(ctx context.Context) bool {
	q.mu.Lock()
	q.autoConfirm = !q.autoConfirm
	enabled := q.autoConfirm
	q.mu.Unlock()
	q.publisher.Publish(ctx, EventAutoConfirm, map[string]bool{"enabled": enabled})
	return enabled
}

// AutoConfirm reports whether accepted quotes are confirmed automatically.
func (q *Quoter) AutoConfirm() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.autoConfirm
}

// SetTargetLegs replaces the target leg set. Normalized, effective for the
// next RFQ only.
func (q *Quoter) SetTargetLegs(legs []string) {
	normalized := make([]string, 0, len(legs))
	for _, l := range legs {
		if id := domain.NormalizeLegID(l); id != "" {
			normalized = append(normalized, id)
		}
	}

	q.mu.Lock()
	q.targetLegs = normalized
	q.mu.Unlock()

	q.logger.Info("target legs updated", slog.Int("count", len(normalized)))
}

// TargetLegs returns a copy of the current target leg set.
func (q *Quoter) TargetLegs() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]string, len(q.targetLegs))
	copy(out, q.targetLegs)
	return out
}

// SetBidPrices replaces the static quote prices. Both must lie in [0,1].
func (q *Quoter) SetBidPrices(yesBid, noBid decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	for _, p := range []decimal.Decimal{yesBid, noBid} {
		if p.IsNegative() || p.GreaterThan(one) {
			return fmt.Errorf("quoter: bid price %s out of range [0,1]", p)
		}
	}

	q.mu.Lock()
	q.yesBid, q.noBid = yesBid, noBid
	q.mu.Unlock()

	q.logger.Info("bid prices updated",
		slog.String("yes_bid", yesBid.StringFixed(4)),
		slog.String("no_bid", noBid.StringFixed(4)),
	)
	return nil
}

// BidPrices returns the current static yes/no bids.
func (q *Quoter) BidPrices() (yesBid, noBid decimal.Decimal) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.yesBid, q.noBid
}

// RFQHistory returns up to limit of the most recent RFQ records, newest
// last. limit <= 0 returns everything.
func (q *Quoter) RFQHistory(limit int) []domain.RFQRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return tail(q.rfqHistory, limit)
}

// QuoteHistory returns up to limit of the most recent quote attempts.
func (q *Quoter) QuoteHistory(limit int) []domain.QuoteRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	records := tail(q.quoteHistory, limit)
	out := make([]domain.QuoteRecord, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return out
}

// AcceptedQuotes returns up to limit of the most recent accepted quotes.
func (q *Quoter) AcceptedQuotes(limit int) []domain.AcceptedQuote {
	q.mu.RLock()
	defer q.mu.RUnlock()
	records := tail(q.accepted, limit)
	out := make([]domain.AcceptedQuote, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return out
}

// AvailableLegs returns a deep copy of the leg catalog:
// category -> subcategory -> leg id -> description.
func (q *Quoter) AvailableLegs() map[string]map[string]map[string]string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[string]map[string]map[string]string, len(q.legCatalog))
	for cat, subs := range q.legCatalog {
		out[cat] = make(map[string]map[string]string, len(subs))
		for sub, legs := range subs {
			out[cat][sub] = make(map[string]string, len(legs))
			for id, desc := range legs {
				out[cat][sub][id] = desc
			}
		}
	}
	return out
}

// Stats summarizes history sizes for the status endpoint.
type Stats struct {
	RFQsReceived   int `json:"rfqs_received"`
	RFQsMatched    int `json:"rfqs_matched"`
	QuotesSent     int `json:"quotes_sent"`
	QuoteErrors    int `json:"quote_errors"`
	QuotesAccepted int `json:"quotes_accepted"`
	Confirmed      int `json:"confirmed"`
}

// Snapshot returns current stats.
func (q *Quoter) Snapshot() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var s Stats
	s.RFQsReceived = len(q.rfqHistory)
	for _, r := range q.rfqHistory {
		if r.Matched {
			s.RFQsMatched++
		}
	}
	for _, r := range q.quoteHistory {
		if r.Status == domain.QuoteStatusSent {
			s.QuotesSent++
		} else {
			s.QuoteErrors++
		}
	}
	s.QuotesAccepted = len(q.accepted)
	for _, a := range q.accepted {
		if a.Confirmed {
			s.Confirmed++
		}
	}
	return s
}

func tail[T any](s []T, limit int) []T {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
