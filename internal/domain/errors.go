package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotConnected       = errors.New("stream not connected")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrSigningFailed      = errors.New("signing failed")
	ErrWSDisconnect       = errors.New("websocket disconnected")
)

// APIError is a non-2xx response from the exchange REST API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("kalshi: HTTP %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("kalshi: HTTP %d: %s", e.Status, e.Body)
}

// Unwrap maps well-known status codes onto sentinel errors so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// QuoteRejectedError is returned when quote creation or acceptance fails with
// a non-2xx response. It preserves the exchange's status code and raw body for
// the quote history.
type QuoteRejectedError struct {
	Status int
	Body   string
}

func (e *QuoteRejectedError) Error() string {
	return fmt.Sprintf("kalshi: quote rejected: HTTP %d: %s", e.Status, e.Body)
}

// RequestEcho captures the exact request that was attempted, for diagnostics
// surfaced alongside a failed confirmation.
type RequestEcho struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// ConfirmationError is returned after the confirm retry budget is exhausted.
type ConfirmationError struct {
	QuoteID  string
	Attempts int
	Request  RequestEcho
	Err      error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("kalshi: confirm quote %s failed after %d attempts: %v", e.QuoteID, e.Attempts, e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }

// DecodeError reports a stream frame that could not be decoded into a typed
// event. The listener logs it and skips the frame.
type DecodeError struct {
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q event: %s", e.Type, e.Reason)
}
