package quoter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlayhq/parlayquoter/internal/domain"
	"github.com/parlayhq/parlayquoter/internal/platform/kalshi"
)

// fakeClient scripts CreateQuote/ConfirmQuote outcomes and counts calls.
type fakeClient struct {
	mu            sync.Mutex
	createErr     error
	confirmErr    error
	createCalls   int
	confirmCalls  int
	createdQuotes []string
}

func (f *fakeClient) CreateQuote(ctx context.Context, rfqID string, yesBid, noBid decimal.Decimal, restRemainder bool) (kalshi.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return kalshi.Quote{}, f.createErr
	}
	id := "quote-" + rfqID
	f.createdQuotes = append(f.createdQuotes, id)
	return kalshi.Quote{ID: id, RFQID: rfqID, YesBid: yesBid.StringFixed(4), NoBid: noBid.StringFixed(4), Status: "open"}, nil
}

func (f *fakeClient) ConfirmQuote(ctx context.Context, quoteID string) (kalshi.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return kalshi.ConfirmResult{}, f.confirmErr
	}
	return kalshi.ConfirmResult{Status: "confirmed", QuoteID: quoteID}, nil
}

func (f *fakeClient) confirms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmCalls
}

// fakePublisher records published events in order.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(ctx context.Context, event string, payload any) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *fakePublisher) seen(event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == event {
			return true
		}
	}
	return false
}

func newTestQuoter(t *testing.T, client QuoteAPI, cfg Config) (*Quoter, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := New(cfg, pub, logger)
	q.SetClient(client)
	return q, pub
}

func testRFQ(id string) kalshi.RFQ {
	return kalshi.RFQ{
		ID:           id,
		MarketTicker: "KXSPORTSMULTIGAME-ABC",
		Contracts:    100,
		Legs: []kalshi.RFQLeg{
			{Side: "yes", MarketTicker: "NFL-GAME-X", EventTicker: "EVT-X"},
			{Side: "no", MarketTicker: "NFL-GAME-Y", EventTicker: "EVT-Y"},
		},
	}
}

func quoteCfg() Config {
	return Config{
		YesBid:     decimal.RequireFromString("0.0010"),
		NoBid:      decimal.RequireFromString("0.5600"),
		TargetLegs: []string{"YES:NFL-GAME-X"},
	}
}

func TestMatchingRFQCreatesQuote(t *testing.T) {
	client := &fakeClient{}
	q, pub := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	history := q.QuoteHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, domain.QuoteStatusSent, history[0].Status)
	assert.Equal(t, "quote-rfq-1", history[0].QuoteID)
	assert.Equal(t, "0.0010", history[0].YesBid)
	assert.Equal(t, "0.5600", history[0].NoBid)

	rfqs := q.RFQHistory(0)
	require.Len(t, rfqs, 1)
	assert.True(t, rfqs[0].Matched)

	assert.True(t, pub.seen(EventRFQReceived))
	assert.True(t, pub.seen(EventQuoteSent))
}

func TestNonMatchingRFQRecordedButNotQuoted(t *testing.T) {
	client := &fakeClient{}
	cfg := quoteCfg()
	cfg.TargetLegs = []string{"YES:SOMETHING-ELSE"}
	q, pub := newTestQuoter(t, client, cfg)
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	assert.Equal(t, 0, client.createCalls)
	assert.Empty(t, q.QuoteHistory(0))

	rfqs := q.RFQHistory(0)
	require.Len(t, rfqs, 1)
	assert.False(t, rfqs[0].Matched)
	assert.True(t, pub.seen(EventRFQReceived))
}

func TestRejectedQuoteAppendsErrorEntryOnce(t *testing.T) {
	client := &fakeClient{createErr: &domain.QuoteRejectedError{Status: 400, Body: "bad quote"}}
	q, pub := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	history := q.QuoteHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, domain.QuoteStatusError, history[0].Status)
	assert.Contains(t, history[0].Error, "bad quote")
	// No retry for quote creation.
	assert.Equal(t, 1, client.createCalls)
	assert.True(t, pub.seen(EventQuoteError))
}

func TestAcceptedWithoutAutoConfirmDoesNotConfirm(t *testing.T) {
	client := &fakeClient{}
	q, pub := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	q.HandleEvent(ctx, kalshi.QuoteAcceptedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{
		QuoteID: "quote-rfq-1", RFQID: "rfq-1", MarketTicker: "KXSPORTSMULTIGAME-ABC",
	}})
	require.NoError(t, q.Wait())

	assert.Equal(t, 0, client.confirms())

	accepted := q.AcceptedQuotes(0)
	require.Len(t, accepted, 1)
	assert.False(t, accepted[0].Confirmed)
	assert.False(t, accepted[0].AutoConfirmed)
	assert.True(t, pub.seen(EventQuoteAccepted))

	// The sent quote is marked matched by the acceptance.
	history := q.QuoteHistory(0)
	require.Len(t, history, 1)
	assert.True(t, history[0].Matched)
}

func TestAutoConfirmSuccess(t *testing.T) {
	client := &fakeClient{}
	cfg := quoteCfg()
	cfg.AutoConfirm = true
	q, pub := newTestQuoter(t, client, cfg)
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())
	q.HandleEvent(ctx, kalshi.QuoteAcceptedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{
		QuoteID: "quote-rfq-1", RFQID: "rfq-1",
	}})
	require.NoError(t, q.Wait())

	assert.Equal(t, 1, client.confirms())

	accepted := q.AcceptedQuotes(0)
	require.Len(t, accepted, 1)
	assert.True(t, accepted[0].Confirmed)
	assert.True(t, accepted[0].AutoConfirmed)
	assert.False(t, accepted[0].ConfirmedAt.IsZero())
	assert.True(t, pub.seen(EventQuoteConfirmed))
}

func TestAutoConfirmFailureRecordsError(t *testing.T) {
	client := &fakeClient{confirmErr: errors.New("confirm exploded")}
	cfg := quoteCfg()
	cfg.AutoConfirm = true
	q, pub := newTestQuoter(t, client, cfg)
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())
	q.HandleEvent(ctx, kalshi.QuoteAcceptedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{
		QuoteID: "quote-rfq-1", RFQID: "rfq-1",
	}})
	require.NoError(t, q.Wait())

	accepted := q.AcceptedQuotes(0)
	require.Len(t, accepted, 1)
	assert.False(t, accepted[0].Confirmed)
	assert.Contains(t, accepted[0].ConfirmationError, "confirm exploded")
	assert.True(t, pub.seen(EventQuoteConfirmError))
}

func TestManualConfirmUnknownQuote(t *testing.T) {
	q, _ := newTestQuoter(t, &fakeClient{}, quoteCfg())
	err := q.Confirm(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManualConfirm(t *testing.T) {
	client := &fakeClient{}
	q, pub := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.QuoteAcceptedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{
		QuoteID: "q-77", RFQID: "rfq-77",
	}})
	require.NoError(t, q.Wait())

	require.NoError(t, q.Confirm(ctx, "q-77"))
	require.NoError(t, q.Wait())

	assert.Equal(t, 1, client.confirms())
	accepted := q.AcceptedQuotes(0)
	require.Len(t, accepted, 1)
	assert.True(t, accepted[0].Confirmed)
	assert.False(t, accepted[0].AutoConfirmed)
	assert.True(t, pub.seen(EventQuoteConfirmed))
}

func TestRedundantConfirmKeepsFirstOutcome(t *testing.T) {
	client := &fakeClient{}
	cfg := quoteCfg()
	cfg.AutoConfirm = true
	q, _ := newTestQuoter(t, client, cfg)
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())
	q.HandleEvent(ctx, kalshi.QuoteAcceptedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{
		QuoteID: "quote-rfq-1", RFQID: "rfq-1",
	}})
	require.NoError(t, q.Wait())

	first := q.AcceptedQuotes(0)[0]
	require.True(t, first.Confirmed)
	require.True(t, first.AutoConfirmed)

	// An operator re-confirming an already-confirmed quote must not rewrite
	// the recorded outcome.
	require.NoError(t, q.Confirm(ctx, "quote-rfq-1"))
	require.NoError(t, q.Wait())

	again := q.AcceptedQuotes(0)[0]
	assert.True(t, again.Confirmed)
	assert.True(t, again.AutoConfirmed)
	assert.Equal(t, first.ConfirmedAt, again.ConfirmedAt)
	assert.Equal(t, 2, client.confirms())
}

func TestMatchedFlagIsMonotonic(t *testing.T) {
	client := &fakeClient{}
	q, _ := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	q.HandleEvent(ctx, kalshi.QuoteCreatedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{QuoteID: "quote-rfq-1"}})
	first := q.QuoteHistory(0)[0]
	require.True(t, first.Matched)
	matchedAt := first.MatchedAt

	// Repeat events never clear the flag or move the timestamp.
	q.HandleEvent(ctx, kalshi.QuoteConfirmedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{QuoteID: "quote-rfq-1"}})
	again := q.QuoteHistory(0)[0]
	assert.True(t, again.Matched)
	assert.Equal(t, matchedAt, again.MatchedAt)
}

func TestQuoteHistoryIsAppendOnly(t *testing.T) {
	client := &fakeClient{}
	q, _ := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ(string(rune('a' + i)))})
	}
	require.NoError(t, q.Wait())
	assert.Len(t, q.QuoteHistory(0), 3)

	// Truncation is display-only.
	assert.Len(t, q.QuoteHistory(2), 2)
	assert.Len(t, q.QuoteHistory(0), 3)
}

func TestMissingClientRecordsErrorEntry(t *testing.T) {
	q, pub := newTestQuoter(t, nil, quoteCfg())
	q.SetClient(nil)
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	history := q.QuoteHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, domain.QuoteStatusError, history[0].Status)
	assert.Contains(t, history[0].Error, domain.ErrMissingCredentials.Error())
	assert.True(t, pub.seen(EventQuoteError))
}

func TestSettersTakeEffectForNextRFQOnly(t *testing.T) {
	client := &fakeClient{}
	q, _ := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())

	require.NoError(t, q.SetBidPrices(
		decimal.RequireFromString("0.2500"),
		decimal.RequireFromString("0.7500"),
	))
	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-2")})
	require.NoError(t, q.Wait())

	history := q.QuoteHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "0.0010", history[0].YesBid)
	assert.Equal(t, "0.2500", history[1].YesBid)
}

func TestSetBidPricesRejectsOutOfRange(t *testing.T) {
	q, _ := newTestQuoter(t, &fakeClient{}, quoteCfg())

	assert.Error(t, q.SetBidPrices(decimal.RequireFromString("1.5"), decimal.RequireFromString("0.5")))
	assert.Error(t, q.SetBidPrices(decimal.RequireFromString("0.5"), decimal.RequireFromString("-0.1")))
	assert.NoError(t, q.SetBidPrices(decimal.RequireFromString("0"), decimal.RequireFromString("1")))
}

func TestSetTargetLegsNormalizes(t *testing.T) {
	q, _ := newTestQuoter(t, &fakeClient{}, Config{
		YesBid: decimal.New(1, -3),
		NoBid:  decimal.New(56, -2),
	})

	q.SetTargetLegs([]string{" yes:nfl-game-x ", "", "NO:NBA-GAME-Y"})
	assert.Equal(t, []string{"YES:NFL-GAME-X", "NO:NBA-GAME-Y"}, q.TargetLegs())
}

func TestAvailableLegsCatalog(t *testing.T) {
	client := &fakeClient{}
	q, _ := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	rfq := testRFQ("rfq-1")
	rfq.Legs = []kalshi.RFQLeg{
		{Side: "yes", MarketTicker: "KXNFLSPRD-DALPHI"},
		{Side: "no", MarketTicker: "KXNBAGAME-LALBOS"},
	}
	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: rfq})
	require.NoError(t, q.Wait())

	catalog := q.AvailableLegs()
	require.Contains(t, catalog, "NFL")
	require.Contains(t, catalog["NFL"], "Spreads")
	assert.Contains(t, catalog["NFL"]["Spreads"], "YES:KXNFLSPRD-DALPHI")
	require.Contains(t, catalog, "NBA")
	require.Contains(t, catalog["NBA"], "Moneylines")
}

func TestToggleAutoConfirm(t *testing.T) {
	q, pub := newTestQuoter(t, &fakeClient{}, quoteCfg())
	ctx := context.Background()

	assert.False(t, q.AutoConfirm())
	assert.True(t, q.ToggleAutoConfirm(ctx))
	assert.True(t, q.AutoConfirm())
	assert.False(t, q.ToggleAutoConfirm(ctx))
	assert.True(t, pub.seen(EventAutoConfirm))
}

func TestSnapshotStats(t *testing.T) {
	client := &fakeClient{}
	q, _ := newTestQuoter(t, client, quoteCfg())
	ctx := context.Background()

	q.HandleEvent(ctx, kalshi.RFQCreatedEvent{RFQ: testRFQ("rfq-1")})
	require.NoError(t, q.Wait())
	q.HandleEvent(ctx, kalshi.QuoteAcceptedEvent{QuoteEventMsg: kalshi.QuoteEventMsg{QuoteID: "quote-rfq-1"}})
	require.NoError(t, q.Wait())

	stats := q.Snapshot()
	assert.Equal(t, 1, stats.RFQsReceived)
	assert.Equal(t, 1, stats.RFQsMatched)
	assert.Equal(t, 1, stats.QuotesSent)
	assert.Equal(t, 0, stats.QuoteErrors)
	assert.Equal(t, 1, stats.QuotesAccepted)
}

func TestConnectionFlag(t *testing.T) {
	q, pub := newTestQuoter(t, &fakeClient{}, quoteCfg())
	ctx := context.Background()

	assert.False(t, q.Connected())
	q.SetConnected(ctx, true)
	assert.True(t, q.Connected())
	q.SetConnected(ctx, false)
	assert.False(t, q.Connected())
	assert.True(t, pub.seen(EventConnectionStatus))

	// Flag changes are independent of histories.
	assert.Empty(t, q.RFQHistory(0))
}
