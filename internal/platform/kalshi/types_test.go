package kalshi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlayhq/parlayquoter/internal/domain"
)

func TestDecodeEventRFQCreated(t *testing.T) {
	raw := []byte(`{
		"type": "rfq_created",
		"sid": 7,
		"msg": {
			"id": "rfq-1",
			"creator_user_id": "u-1",
			"target_cost_dollars": "100.00",
			"rest_remainder": true,
			"mve_selected_legs": [
				{"event_ticker": "KXNFL-25DEC28", "market_ticker": "KXNFLGAME-DALPHI", "side": "yes"}
			]
		}
	}`)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)

	created, ok := event.(RFQCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "rfq-1", created.RFQ.ID)
	assert.True(t, created.RFQ.RestRemainder)
	require.Len(t, created.RFQ.Legs, 1)
	assert.Equal(t, "KXNFLGAME-DALPHI", created.RFQ.Legs[0].MarketTicker)
	assert.Equal(t, "yes", created.RFQ.Legs[0].Side)
}

func TestDecodeEventRFQCreatedMissingID(t *testing.T) {
	raw := []byte(`{"type": "rfq_created", "msg": {"status": "open"}}`)

	_, err := DecodeEvent(raw)
	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, TypeRFQCreated, decodeErr.Type)
}

func TestDecodeEventRFQDeleted(t *testing.T) {
	raw := []byte(`{"type": "rfq_deleted", "msg": {"rfq_id": "rfq-9"}}`)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)

	deleted, ok := event.(RFQDeletedEvent)
	require.True(t, ok)
	assert.Equal(t, "rfq-9", deleted.RFQID)
}

func TestDecodeEventQuoteLifecycle(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{TypeQuoteCreated, TypeQuoteCreated},
		{TypeQuoteAccepted, TypeQuoteAccepted},
		{TypeQuoteConfirmed, TypeQuoteConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			raw := []byte(`{"type": "` + tt.typ + `", "msg": {"quote_id": "q-1", "rfq_id": "rfq-1", "accepted_side": "yes"}}`)
			event, err := DecodeEvent(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.EventType())
		})
	}
}

func TestDecodeEventQuoteMissingQuoteID(t *testing.T) {
	raw := []byte(`{"type": "quote_accepted", "msg": {"rfq_id": "rfq-1"}}`)

	_, err := DecodeEvent(raw)
	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, TypeQuoteAccepted, decodeErr.Type)
}

func TestDecodeEventSubscribed(t *testing.T) {
	raw := []byte(`{"type": "subscribed", "sid": 3, "msg": {"channel": "communications"}}`)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)

	sub, ok := event.(SubscribedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(3), sub.SID)
	assert.Equal(t, "communications", sub.Channel)
}

func TestDecodeEventUnknownTypePassesThrough(t *testing.T) {
	raw := []byte(`{"type": "orderbook_delta", "msg": {"ticker": "X"}}`)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)

	unknown, ok := event.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "orderbook_delta", unknown.EventType())
}

func TestDecodeEventMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"msg": {}}`,
		`{"type": "rfq_created", "msg": "not an object"}`,
	} {
		_, err := DecodeEvent([]byte(raw))
		var decodeErr *domain.DecodeError
		assert.ErrorAs(t, err, &decodeErr, "input %q", raw)
	}
}

func TestQuoteIdentifierPrefersQuoteID(t *testing.T) {
	assert.Equal(t, "q-old", Quote{ID: "q-new", QuoteID: "q-old"}.Identifier())
	assert.Equal(t, "q-new", Quote{ID: "q-new"}.Identifier())
	assert.Empty(t, Quote{}.Identifier())
}

func TestRFQTargetCost(t *testing.T) {
	assert.Equal(t, "100.00", RFQ{TargetCostDollars: "100.00", TargetCostCentiCent: 50}.TargetCost())
	assert.Equal(t, "500000", RFQ{TargetCostCentiCent: 500000}.TargetCost())
	assert.Equal(t, "0", RFQ{}.TargetCost())
}
