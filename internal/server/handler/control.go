package handler

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/parlayhq/parlayquoter/internal/domain"
	"github.com/parlayhq/parlayquoter/internal/quoter"
)

// ControlHandler mutates orchestrator settings: auto-confirm, bid prices,
// target legs, and manual confirmation.
type ControlHandler struct {
	quoter *quoter.Quoter
}

// NewControlHandler creates a ControlHandler over the orchestrator.
func NewControlHandler(q *quoter.Quoter) *ControlHandler {
	return &ControlHandler{quoter: q}
}

// ToggleAutoConfirm flips the auto-confirm flag.
// POST /api/auto-confirm/toggle
func (h *ControlHandler) ToggleAutoConfirm(w http.ResponseWriter, r *http.Request) {
	enabled := h.quoter.ToggleAutoConfirm(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"auto_confirm": enabled})
}

// UpdateQuotePrices replaces the static yes/no bids. Both are decimal
// strings in [0,1] and take effect for the next quoted RFQ.
// POST /api/quote-prices/update
func (h *ControlHandler) UpdateQuotePrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		YesBid string `json:"yes_bid"`
		NoBid  string `json:"no_bid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	yesBid, err := decimal.NewFromString(req.YesBid)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid yes_bid: "+err.Error())
		return
	}
	noBid, err := decimal.NewFromString(req.NoBid)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid no_bid: "+err.Error())
		return
	}

	if err := h.quoter.SetBidPrices(yesBid, noBid); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"yes_bid": yesBid.StringFixed(4),
		"no_bid":  noBid.StringFixed(4),
	})
}

// ConfirmQuote triggers a manual confirmation attempt by quote id.
// POST /api/confirm-quote/{id}
func (h *ControlHandler) ConfirmQuote(w http.ResponseWriter, r *http.Request) {
	quoteID := r.PathValue("id")
	if quoteID == "" {
		writeError(w, http.StatusBadRequest, "missing quote id")
		return
	}

	if err := h.quoter.Confirm(r.Context(), quoteID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown quote id")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	// Confirmation runs asynchronously; the outcome arrives on the hub.
	writeJSON(w, http.StatusAccepted, map[string]string{
		"quote_id": quoteID,
		"status":   "confirming",
	})
}

// GetTargetLegs returns the current target leg set.
// GET /api/target-legs
func (h *ControlHandler) GetTargetLegs(w http.ResponseWriter, r *http.Request) {
	legs := h.quoter.TargetLegs()
	writeJSON(w, http.StatusOK, map[string]any{
		"target_legs": legs,
		"count":       len(legs),
	})
}

// SetTargetLegs replaces the target leg set. Legs are "SIDE:TICKER" ids,
// case-insensitive.
// POST /api/target-legs
func (h *ControlHandler) SetTargetLegs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Legs []string `json:"legs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.quoter.SetTargetLegs(req.Legs)
	legs := h.quoter.TargetLegs()
	writeJSON(w, http.StatusOK, map[string]any{
		"target_legs": legs,
		"count":       len(legs),
	})
}
