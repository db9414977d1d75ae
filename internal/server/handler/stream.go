package handler

import (
	"context"
	"net/http"
	"strings"
)

// StreamManager starts and stops the authenticated stream session. The app
// layer implements it.
type StreamManager interface {
	StartStream(ctx context.Context, apiKeyID, privateKeyPEM string) error
	StopStream(ctx context.Context) error
}

// StreamHandler exposes stream session control to the operator.
type StreamHandler struct {
	manager StreamManager
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(manager StreamManager) *StreamHandler {
	return &StreamHandler{manager: manager}
}

// StartStream starts a stream session with operator-supplied credentials.
// The private key arrives as PEM text and is only held for the lifetime of
// the session.
// POST /api/stream/start
func (h *StreamHandler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKeyID      string `json:"api_key_id"`
		PrivateKeyPEM string `json:"private_key_pem"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req.APIKeyID = strings.TrimSpace(req.APIKeyID)
	if req.APIKeyID == "" || strings.TrimSpace(req.PrivateKeyPEM) == "" {
		writeError(w, http.StatusBadRequest, "api_key_id and private_key_pem are required")
		return
	}

	if err := h.manager.StartStream(r.Context(), req.APIKeyID, req.PrivateKeyPEM); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopStream tears down the current stream session.
// POST /api/stream/stop
func (h *StreamHandler) StopStream(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StopStream(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
