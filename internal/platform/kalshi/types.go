package kalshi

import (
	"encoding/json"
	"fmt"

	"github.com/parlayhq/parlayquoter/internal/domain"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// RFQLeg is one leg of a multi-leg RFQ as carried on the wire.
type RFQLeg struct {
	EventTicker  string `json:"event_ticker"`
	MarketTicker string `json:"market_ticker"`
	Side         string `json:"side"`
}

// ToDomain converts a wire leg into the domain representation.
func (l RFQLeg) ToDomain() domain.Leg {
	return domain.Leg{
		MarketTicker: l.MarketTicker,
		Side:         l.Side,
		EventTicker:  l.EventTicker,
	}
}

// RFQ is a request-for-quote as returned by the communications API and
// carried in rfq_created stream events.
type RFQ struct {
	ID                  string   `json:"id"`
	CreatorUserID       string   `json:"creator_user_id"`
	MarketTicker        string   `json:"market_ticker"`
	EventTicker         string   `json:"event_ticker"`
	Contracts           int64    `json:"contracts"`
	TargetCostDollars   string   `json:"target_cost_dollars"`
	TargetCostCentiCent int64    `json:"target_cost_centi_cents"`
	RestRemainder       bool     `json:"rest_remainder"`
	Status              string   `json:"status"`
	Legs                []RFQLeg `json:"mve_selected_legs"`
	CreatedTime         string   `json:"created_ts"`
}

// TargetCost returns the dollar target when present, falling back to the
// centi-cent amount.
func (r RFQ) TargetCost() string {
	if r.TargetCostDollars != "" {
		return r.TargetCostDollars
	}
	if r.TargetCostCentiCent > 0 {
		return fmt.Sprintf("%d", r.TargetCostCentiCent)
	}
	return "0"
}

// Quote is a two-sided price offer as returned by the communications API.
type Quote struct {
	ID           string `json:"id"`
	QuoteID      string `json:"quote_id"`
	RFQID        string `json:"rfq_id"`
	MarketTicker string `json:"market_ticker"`
	YesBid       string `json:"yes_bid"`
	NoBid        string `json:"no_bid"`
	Status       string `json:"status"`
	CreatedTime  string `json:"created_ts"`
}

// Identifier returns whichever of the two id fields the exchange populated.
// Older responses nest the id under "quote_id", newer ones under "id".
func (q Quote) Identifier() string {
	if q.QuoteID != "" {
		return q.QuoteID
	}
	return q.ID
}

// CreateQuoteRequest is the body for POST /communications/quotes. Bid values
// are decimal dollar strings in [0,1] with four decimal places; both are
// mandatory (a zero value renders "0.0000", which the exchange rejects).
type CreateQuoteRequest struct {
	RFQID         string `json:"rfq_id"`
	YesBid        string `json:"yes_bid"`
	NoBid         string `json:"no_bid"`
	RestRemainder bool   `json:"rest_remainder"`
}

// CreateRFQRequest is the body for POST /communications/rfqs. The exchange
// accepts either a contract count or a target cost, not both.
type CreateRFQRequest struct {
	MarketTicker        string `json:"market_ticker"`
	Contracts           int64  `json:"contracts,omitempty"`
	TargetCostCentiCent int64  `json:"target_cost_centi_cents,omitempty"`
	RestRemainder       bool   `json:"rest_remainder"`
}

// ConfirmResult is the outcome of a quote confirmation. A 204 response is
// normalized into a synthetic confirmed result.
type ConfirmResult struct {
	Status  string             `json:"status"`
	QuoteID string             `json:"quote_id"`
	Request domain.RequestEcho `json:"request,omitzero"`
}

// QuoteFilter narrows GET /communications/quotes.
type QuoteFilter struct {
	Cursor           string
	Limit            int
	CreatorUserID    string
	RFQCreatorUserID string
	RFQID            string
	MarketTicker     string
	EventTicker      string
	Status           string
}

// Market is a Kalshi market as returned by GET /markets/{ticker}.
type Market struct {
	Ticker      string  `json:"ticker"`
	EventTicker string  `json:"event_ticker"`
	Title       string  `json:"title"`
	Subtitle    string  `json:"subtitle"`
	Status      string  `json:"status"`
	YesBid      float64 `json:"yes_bid"`
	YesAsk      float64 `json:"yes_ask"`
	NoBid       float64 `json:"no_bid"`
	NoAsk       float64 `json:"no_ask"`
	LastPrice   float64 `json:"last_price"`
	Volume      int64   `json:"volume"`
	Volume24H   int64   `json:"volume_24h"`
	OpenTime    string  `json:"open_time"`
	CloseTime   string  `json:"close_time"`
	Result      string  `json:"result"`
}

// EventData is an exchange event (a group of related markets).
type EventData struct {
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Markets      []Market `json:"markets,omitempty"`
}

// PriceLevel is a single price+quantity entry in the orderbook.
type PriceLevel struct {
	Price    int64 `json:"price"`    // in cents (1-99)
	Quantity int64 `json:"quantity"` // number of contracts
}

// Orderbook holds the yes/no bid ladders for one market.
type Orderbook struct {
	Yes []PriceLevel `json:"yes"`
	No  []PriceLevel `json:"no"`
}

// Trade is a single executed trade on a market.
type Trade struct {
	TradeID     string `json:"trade_id"`
	Ticker      string `json:"ticker"`
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price"`
	NoPrice     int64  `json:"no_price"`
	TakerSide   string `json:"taker_side"`
	CreatedTime string `json:"created_time"`
}

// Position is one market position from the portfolio endpoints.
type Position struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	TotalTraded    int64  `json:"total_traded"`
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnl    int64  `json:"realized_pnl"`
	RestingOrders  int64  `json:"resting_orders_count"`
}

// OrderRequest is the body for POST /portfolio/orders.
type OrderRequest struct {
	Ticker   string `json:"ticker"`
	Side     string `json:"side"`   // "yes" or "no"
	Action   string `json:"action"` // "buy" or "sell"
	Count    int64  `json:"count"`
	Type     string `json:"type"`
	YesPrice *int64 `json:"yes_price,omitempty"` // cents (1-99)
	NoPrice  *int64 `json:"no_price,omitempty"`  // cents (1-99)
}

// Order is the exchange's view of a placed order.
type Order struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
}

// apiErrorBody covers both error envelope shapes the exchange uses.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Nested  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --------------------------------------------------------------------------
// Stream events
// --------------------------------------------------------------------------

// Stream event type discriminators pushed on the communications channel.
const (
	TypeRFQCreated     = "rfq_created"
	TypeRFQDeleted     = "rfq_deleted"
	TypeQuoteCreated   = "quote_created"
	TypeQuoteAccepted  = "quote_accepted"
	TypeQuoteConfirmed = "quote_confirmed"
	TypeSubscribed     = "subscribed"
)

// Envelope is the wire frame for every stream message.
type Envelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// Event is a decoded, typed stream event.
type Event interface {
	EventType() string
}

// RFQCreatedEvent announces a new RFQ soliciting quotes.
type RFQCreatedEvent struct {
	RFQ RFQ
}

func (RFQCreatedEvent) EventType() string { return TypeRFQCreated }

// RFQDeletedEvent announces withdrawal of an RFQ.
type RFQDeletedEvent struct {
	RFQID string
}

func (RFQDeletedEvent) EventType() string { return TypeRFQDeleted }

// QuoteEventMsg is the shared payload of quote lifecycle events.
type QuoteEventMsg struct {
	QuoteID      string `json:"quote_id"`
	RFQID        string `json:"rfq_id"`
	MarketTicker string `json:"market_ticker"`
	YesPrice     string `json:"yes_price"`
	NoPrice      string `json:"no_price"`
	AcceptedSide string `json:"accepted_side"`
}

// QuoteCreatedEvent acknowledges a quote the exchange registered.
type QuoteCreatedEvent struct {
	QuoteEventMsg
}

func (QuoteCreatedEvent) EventType() string { return TypeQuoteCreated }

// QuoteAcceptedEvent announces that the counterparty accepted a quote.
type QuoteAcceptedEvent struct {
	QuoteEventMsg
}

func (QuoteAcceptedEvent) EventType() string { return TypeQuoteAccepted }

// QuoteConfirmedEvent announces that a quote's trade became binding.
type QuoteConfirmedEvent struct {
	QuoteEventMsg
}

func (QuoteConfirmedEvent) EventType() string { return TypeQuoteConfirmed }

// SubscribedEvent acknowledges a channel subscription.
type SubscribedEvent struct {
	SID     int64
	Channel string
}

func (SubscribedEvent) EventType() string { return TypeSubscribed }

// UnknownEvent carries a frame whose type has no variant; the listener logs
// and ignores it.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) EventType() string { return e.Type }

// DecodeEvent parses a raw frame into its typed variant, validating the
// fields each variant requires. Missing required fields and malformed JSON
// produce a *domain.DecodeError.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &domain.DecodeError{Type: "envelope", Reason: err.Error()}
	}
	if env.Type == "" {
		return nil, &domain.DecodeError{Type: "envelope", Reason: "missing type discriminator"}
	}

	switch env.Type {
	case TypeRFQCreated:
		var rfq RFQ
		if err := json.Unmarshal(env.Msg, &rfq); err != nil {
			return nil, &domain.DecodeError{Type: env.Type, Reason: err.Error()}
		}
		if rfq.ID == "" {
			return nil, &domain.DecodeError{Type: env.Type, Reason: "missing rfq id"}
		}
		return RFQCreatedEvent{RFQ: rfq}, nil

	case TypeRFQDeleted:
		var msg struct {
			RFQID string `json:"rfq_id"`
		}
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			return nil, &domain.DecodeError{Type: env.Type, Reason: err.Error()}
		}
		if msg.RFQID == "" {
			return nil, &domain.DecodeError{Type: env.Type, Reason: "missing rfq_id"}
		}
		return RFQDeletedEvent{RFQID: msg.RFQID}, nil

	case TypeQuoteCreated, TypeQuoteAccepted, TypeQuoteConfirmed:
		var msg QuoteEventMsg
		if err := json.Unmarshal(env.Msg, &msg); err != nil {
			return nil, &domain.DecodeError{Type: env.Type, Reason: err.Error()}
		}
		if msg.QuoteID == "" {
			return nil, &domain.DecodeError{Type: env.Type, Reason: "missing quote_id"}
		}
		switch env.Type {
		case TypeQuoteCreated:
			return QuoteCreatedEvent{msg}, nil
		case TypeQuoteAccepted:
			return QuoteAcceptedEvent{msg}, nil
		default:
			return QuoteConfirmedEvent{msg}, nil
		}

	case TypeSubscribed:
		var msg struct {
			Channel string `json:"channel"`
		}
		// The ack payload varies by API version; the channel is optional.
		_ = json.Unmarshal(env.Msg, &msg)
		return SubscribedEvent{SID: env.SID, Channel: msg.Channel}, nil

	default:
		return UnknownEvent{Type: env.Type, Raw: env.Msg}, nil
	}
}

// subscribeCmd is the command sent after connecting to enter the
// communications channel.
type subscribeCmd struct {
	ID     int64           `json:"id"`
	Cmd    string          `json:"cmd"`
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels []string `json:"channels"`
}
