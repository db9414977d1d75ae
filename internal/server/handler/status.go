package handler

import (
	"net/http"
	"time"

	"github.com/parlayhq/parlayquoter/internal/quoter"
)

// StatusHandler serves bot state snapshots for the dashboard.
type StatusHandler struct {
	quoter    *quoter.Quoter
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler over the orchestrator.
func NewStatusHandler(q *quoter.Quoter) *StatusHandler {
	return &StatusHandler{quoter: q, startedAt: time.Now().UTC()}
}

// Snapshot builds the status payload. The hub reuses it for the frame it
// pushes to every client on connect.
func (h *StatusHandler) Snapshot() any {
	yesBid, noBid := h.quoter.BidPrices()
	targets := h.quoter.TargetLegs()

	return map[string]any{
		"connected":         h.quoter.Connected(),
		"auto_confirm":      h.quoter.AutoConfirm(),
		"target_leg_count":  len(targets),
		"target_legs":       targets,
		"yes_bid":           yesBid.StringFixed(4),
		"no_bid":            noBid.StringFixed(4),
		"stats":             h.quoter.Snapshot(),
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
	}
}

// GetStatus responds with the current bot state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// HealthCheck responds 200 unconditionally, for load balancers.
// GET /api/health
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
