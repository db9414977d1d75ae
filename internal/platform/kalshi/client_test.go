package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlayhq/parlayquoter/internal/domain"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
	})
	return testKey
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// verifySignature checks the auth headers of an inbound request against the
// key's public half.
func verifySignature(t *testing.T, r *http.Request, pub *rsa.PublicKey) {
	t.Helper()

	keyID := r.Header.Get("KALSHI-ACCESS-KEY")
	sigB64 := r.Header.Get("KALSHI-ACCESS-SIGNATURE")
	ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
	require.NotEmpty(t, keyID)
	require.NotEmpty(t, sigB64)
	require.NotEmpty(t, ts)

	// Timestamp is epoch milliseconds and recent.
	ms, err := strconv.ParseInt(ts, 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().UnixMilli(), ms, float64(time.Minute.Milliseconds()))

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	require.NoError(t, err)

	// The signed message excludes the query string.
	message := ts + r.Method + r.URL.Path
	hash := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(pub, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	assert.NoError(t, err, "signature must verify for message %q", message)
}

func TestSignedRequestHeaders(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r, &key.PublicKey)
		assert.Equal(t, "/trade-api/v2/communications/rfqs", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		w.Write([]byte(`{"rfqs": [], "cursor": ""}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	_, _, err := client.GetRFQs(context.Background(), "abc")
	require.NoError(t, err)
}

func TestCreateQuote(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		verifySignature(t, r, &key.PublicKey)

		var req CreateQuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rfq-1", req.RFQID)
		assert.Equal(t, "0.0010", req.YesBid)
		assert.Equal(t, "0.5600", req.NoBid)

		w.Write([]byte(`{"quote": {"id": "q-1", "rfq_id": "rfq-1", "status": "open"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	quote, err := client.CreateQuote(context.Background(), "rfq-1",
		decimal.RequireFromString("0.001"), decimal.RequireFromString("0.56"), false)
	require.NoError(t, err)
	assert.Equal(t, "q-1", quote.Identifier())
}

func TestCreateQuoteRejected(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": "invalid_bid", "message": "bid too low"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	_, err := client.CreateQuote(context.Background(), "rfq-1",
		decimal.Zero, decimal.Zero, false)

	var rejected *domain.QuoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Contains(t, rejected.Body, "bid too low")
}

func TestRateLimitedError(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code": "rate_limited", "message": "slow down"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	_, err := client.GetRFQ(context.Background(), "rfq-1")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestUnauthorizedError(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	_, err := client.GetQuote(context.Background(), "q-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestConfirmQuoteRetriesThenSucceeds(t *testing.T) {
	key := testRSAKey(t)

	var mu sync.Mutex
	var calls int
	var signatures []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)

		// The confirm endpoint rejects any body; the client must send none.
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		assert.Empty(t, r.Header.Get("Content-Type"))
		verifySignature(t, r, &key.PublicKey)

		mu.Lock()
		calls++
		n := calls
		signatures = append(signatures, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status": "confirmed", "quote_id": "q-1"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	result, err := client.ConfirmQuote(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", result.Status)
	assert.Equal(t, "q-1", result.QuoteID)
	assert.Equal(t, 3, calls)

	// Each attempt re-signs with a fresh timestamp.
	assert.NotEqual(t, signatures[0], signatures[1])
}

func TestConfirmQuoteNoContentNormalized(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	result, err := client.ConfirmQuote(context.Background(), "q-9")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", result.Status)
	assert.Equal(t, "q-9", result.QuoteID)
}

func TestConfirmQuoteExhaustedRetries(t *testing.T) {
	key := testRSAKey(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code": "not_accepted", "message": "quote not accepted"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	_, err := client.ConfirmQuote(context.Background(), "q-1")

	var confirmErr *domain.ConfirmationError
	require.ErrorAs(t, err, &confirmErr)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, confirmErr.Attempts)
	assert.Equal(t, "q-1", confirmErr.QuoteID)

	// The error carries the exact request that was attempted.
	assert.Equal(t, http.MethodPut, confirmErr.Request.Method)
	assert.Contains(t, confirmErr.Request.URL, "/trade-api/v2/communications/quotes/q-1/confirm")
	assert.NotEmpty(t, confirmErr.Request.Headers["Kalshi-Access-Signature"])
}

func TestConfirmQuoteContextCancelled(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, "key-id", key, testLogger())

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := client.ConfirmQuote(ctx, "q-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuthHeadersWithoutCredentials(t *testing.T) {
	client := NewClient("https://example.test", "", nil, testLogger())
	_, err := client.AuthHeaders(http.MethodGet, "/trade-api/ws/v2")
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}

func TestGetCommunicationsID(t *testing.T) {
	key := testRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/communications/id", r.URL.Path)
		w.Write([]byte(`{"communications_id": "comm-42"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key-id", key, testLogger())
	id, err := client.GetCommunicationsID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "comm-42", id)
}
