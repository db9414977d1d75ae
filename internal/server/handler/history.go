package handler

import (
	"net/http"

	"github.com/parlayhq/parlayquoter/internal/quoter"
)

// HistoryHandler serves the in-memory RFQ, quote, and accepted-quote
// histories, truncated for display.
type HistoryHandler struct {
	quoter *quoter.Quoter
}

// NewHistoryHandler creates a HistoryHandler over the orchestrator.
func NewHistoryHandler(q *quoter.Quoter) *HistoryHandler {
	return &HistoryHandler{quoter: q}
}

// GetRFQHistory returns the most recent RFQs, newest last.
// GET /api/rfq-history
func (h *HistoryHandler) GetRFQHistory(w http.ResponseWriter, r *http.Request) {
	records := h.quoter.RFQHistory(historyLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"rfqs":  records,
		"count": len(records),
	})
}

// GetQuoteHistory returns the most recent quote attempts.
// GET /api/quote-history
func (h *HistoryHandler) GetQuoteHistory(w http.ResponseWriter, r *http.Request) {
	records := h.quoter.QuoteHistory(historyLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"quotes": records,
		"count":  len(records),
	})
}

// GetAcceptedQuotes returns the most recent accepted quotes with their
// confirmation outcomes.
// GET /api/accepted-quotes
func (h *HistoryHandler) GetAcceptedQuotes(w http.ResponseWriter, r *http.Request) {
	records := h.quoter.AcceptedQuotes(historyLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted_quotes": records,
		"count":           len(records),
	})
}

// GetAvailableLegs returns the leg catalog grouped by category and
// subcategory.
// GET /api/available-legs
func (h *HistoryHandler) GetAvailableLegs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"legs": h.quoter.AvailableLegs(),
	})
}
