package domain

import (
	"fmt"
	"strings"
)

// Side is the binary outcome a leg is taken on.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Leg is one binary-outcome contract (market + side) inside a multi-leg
// combination. Legs are immutable and derived from exchange messages.
type Leg struct {
	MarketTicker string `json:"market_ticker"`
	Side         string `json:"side"`
	EventTicker  string `json:"event_ticker"`
}

// ID returns the canonical uppercased "SIDE:TICKER" identifier used for
// target-leg matching.
func (l Leg) ID() string {
	return strings.ToUpper(l.Side + ":" + l.MarketTicker)
}

// Description returns the human-readable "side ticker" form shown in leg
// catalogs and RFQ history.
func (l Leg) Description() string {
	return fmt.Sprintf("%s %s", l.Side, l.MarketTicker)
}

// NormalizeLegID uppercases an operator-supplied "side:ticker" string so
// target sets compare case-insensitively.
func NormalizeLegID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
