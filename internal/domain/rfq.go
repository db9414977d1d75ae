package domain

import "time"

// RFQRecord is one received request-for-quote. Records are immutable after
// creation and appended to the in-memory history.
type RFQRecord struct {
	ID           string    `json:"id"`
	RFQID        string    `json:"rfq_id"`
	MarketTicker string    `json:"market_ticker"`
	Contracts    int64     `json:"contracts"`
	TargetCost   string    `json:"target_cost"`
	Legs         []Leg     `json:"legs"`
	LegSummaries []string  `json:"leg_summaries"`
	Matched      bool      `json:"matched"`
	ReceivedAt   time.Time `json:"received_at"`
}
