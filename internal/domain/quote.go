package domain

import "time"

// QuoteStatus is the terminal outcome of a quote-creation attempt.
type QuoteStatus string

const (
	QuoteStatusSent  QuoteStatus = "sent"
	QuoteStatusError QuoteStatus = "error"
)

// QuoteRecord is one quote-creation attempt. Exactly one record is appended
// per attempt; records are never removed. Matched flips to true when a later
// stream event correlates the quote id and never reverts.
type QuoteRecord struct {
	ID           string      `json:"id"`
	QuoteID      string      `json:"quote_id,omitempty"`
	RFQID        string      `json:"rfq_id"`
	MarketTicker string      `json:"market_ticker"`
	YesBid       string      `json:"yes_bid"`
	NoBid        string      `json:"no_bid"`
	Status       QuoteStatus `json:"status"`
	Error        string      `json:"error,omitempty"`
	Request      any         `json:"request_payload,omitempty"`
	Response     any         `json:"response_payload,omitempty"`
	Matched      bool        `json:"matched"`
	MatchedAt    time.Time   `json:"matched_at,omitzero"`
	SentAt       time.Time   `json:"sent_at"`
}

// AcceptedQuote is created when the counterparty accepts one of our quotes.
// It is mutated in place exactly once by the confirmation outcome.
type AcceptedQuote struct {
	ID                string    `json:"id"`
	QuoteID           string    `json:"quote_id"`
	RFQID             string    `json:"rfq_id"`
	MarketTicker      string    `json:"market_ticker"`
	YesPrice          string    `json:"yes_price,omitempty"`
	NoPrice           string    `json:"no_price,omitempty"`
	Confirmed         bool      `json:"confirmed"`
	AutoConfirmed     bool      `json:"auto_confirmed"`
	ConfirmedAt       time.Time `json:"confirmed_at,omitzero"`
	ConfirmationError string    `json:"confirmation_error,omitempty"`
	AcceptedAt        time.Time `json:"accepted_at"`
}
