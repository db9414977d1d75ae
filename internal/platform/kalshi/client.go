// Package kalshi implements the signed REST client and the streaming
// listener for the Kalshi exchange's trade API, including the
// communications (RFQ/quote) endpoints.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/parlayhq/parlayquoter/internal/domain"
)

const (
	// apiPrefix is the fixed base path every trade API route lives under.
	// Signatures cover the full path including this prefix.
	apiPrefix = "/trade-api/v2"

	// confirmAttempts is the total attempt budget for quote confirmation.
	confirmAttempts = 3

	// confirmBackoffStep is the linear backoff unit between confirm
	// attempts (0.5s after the first failure, 1.0s after the second).
	confirmBackoffStep = 500 * time.Millisecond
)

// Client is the signed REST client for the Kalshi exchange API. It holds the
// credentials for exactly one connection lifetime and keeps no other state.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Kalshi REST client.
//
// baseURL is the API host root, e.g. "https://api.elections.kalshi.com".
// privateKey is the RSA key paired with apiKeyID.
func NewClient(baseURL, apiKeyID string, privateKey *rsa.PrivateKey, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKeyID:   apiKeyID,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "kalshi")),
	}
}

// SetRateLimit enables client-side request pacing. The exchange's own rate
// limiting remains the backstop; this only smooths bursts.
func (c *Client) SetRateLimit(rps float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// SetHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// AuthHeaders computes the signed authentication headers for an arbitrary
// method and path. The streaming listener uses this for the upgrade request.
func (c *Client) AuthHeaders(method, path string) (http.Header, error) {
	if c.apiKeyID == "" || c.privateKey == nil {
		return nil, domain.ErrMissingCredentials
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := c.sign(ts, method, path)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", sig)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return h, nil
}

// sign produces the base64 RSA-PSS-SHA256 signature over
// timestamp + method + path. Query strings are stripped before signing.
func (c *Client) sign(timestamp, method, path string) (string, error) {
	pathWithoutQuery, _, _ := strings.Cut(path, "?")
	message := timestamp + method + pathWithoutQuery

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// --------------------------------------------------------------------------
// Quote lifecycle
// --------------------------------------------------------------------------

// CreateQuote submits a two-sided quote against an RFQ. Bid values are
// rendered as four-decimal dollar strings; an unset decimal renders "0.0000",
// which the exchange all but certainly rejects. Any non-2xx response becomes
// a *domain.QuoteRejectedError.
func (c *Client) CreateQuote(ctx context.Context, rfqID string, yesBid, noBid decimal.Decimal, restRemainder bool) (Quote, error) {
	req := CreateQuoteRequest{
		RFQID:         rfqID,
		YesBid:        yesBid.StringFixed(4),
		NoBid:         noBid.StringFixed(4),
		RestRemainder: restRemainder,
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, apiPrefix+"/communications/quotes", req)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) {
			return Quote{}, &domain.QuoteRejectedError{Status: apiErr.Status, Body: apiErr.Body}
		}
		return Quote{}, fmt.Errorf("kalshi: create quote: %w", err)
	}

	// The exchange has answered with both {"quote": {...}} and a bare
	// quote object across API revisions.
	var resp struct {
		Quote *Quote `json:"quote"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Quote != nil {
		return *resp.Quote, nil
	}
	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return Quote{}, fmt.Errorf("kalshi: decode quote: %w", err)
	}
	return q, nil
}

// GetQuote returns a single quote by id.
func (c *Client) GetQuote(ctx context.Context, quoteID string) (Quote, error) {
	path := apiPrefix + "/communications/quotes/" + url.PathEscape(quoteID)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("kalshi: get quote %s: %w", quoteID, err)
	}

	var resp struct {
		Quote Quote `json:"quote"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Quote{}, fmt.Errorf("kalshi: decode quote: %w", err)
	}
	return resp.Quote, nil
}

// GetQuotes returns quotes matching the filter.
func (c *Client) GetQuotes(ctx context.Context, filter QuoteFilter) ([]Quote, string, error) {
	params := url.Values{}
	setParam(params, "cursor", filter.Cursor)
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	setParam(params, "creator_user_id", filter.CreatorUserID)
	setParam(params, "rfq_creator_user_id", filter.RFQCreatorUserID)
	setParam(params, "rfq_id", filter.RFQID)
	setParam(params, "market_ticker", filter.MarketTicker)
	setParam(params, "event_ticker", filter.EventTicker)
	setParam(params, "status", filter.Status)

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery(apiPrefix+"/communications/quotes", params), nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get quotes: %w", err)
	}

	var resp struct {
		Quotes []Quote `json:"quotes"`
		Cursor string  `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode quotes: %w", err)
	}
	return resp.Quotes, resp.Cursor, nil
}

// DeleteQuote withdraws a resting quote.
func (c *Client) DeleteQuote(ctx context.Context, quoteID string) error {
	path := apiPrefix + "/communications/quotes/" + url.PathEscape(quoteID)
	if _, err := c.doSignedRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("kalshi: delete quote %s: %w", quoteID, err)
	}
	return nil
}

// AcceptQuote accepts another maker's quote on the given side.
func (c *Client) AcceptQuote(ctx context.Context, quoteID, acceptedSide string) (Quote, error) {
	path := apiPrefix + "/communications/quotes/" + url.PathEscape(quoteID) + "/accept"
	req := map[string]string{"accepted_side": acceptedSide}

	body, err := c.doSignedRequest(ctx, http.MethodPut, path, req)
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.Status != http.StatusTooManyRequests {
			return Quote{}, &domain.QuoteRejectedError{Status: apiErr.Status, Body: apiErr.Body}
		}
		return Quote{}, fmt.Errorf("kalshi: accept quote %s: %w", quoteID, err)
	}

	// A 204 acceptance carries no body.
	if len(body) == 0 {
		return Quote{QuoteID: quoteID, Status: "accepted"}, nil
	}
	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return Quote{}, fmt.Errorf("kalshi: decode accepted quote: %w", err)
	}
	return q, nil
}

// ConfirmQuote makes an accepted quote's trade binding. The confirm endpoint
// rejects any request body, so the PUT is sent with no body and no
// Content-Type header. Up to three attempts are made with 0.5s/1.0s backoff,
// re-signing each attempt since the timestamp must stay fresh. A 204 is
// normalized into a synthetic confirmed result. After exhausting retries the
// last error is returned inside a *domain.ConfirmationError annotated with
// the exact request that was attempted.
func (c *Client) ConfirmQuote(ctx context.Context, quoteID string) (ConfirmResult, error) {
	path := apiPrefix + "/communications/quotes/" + url.PathEscape(quoteID) + "/confirm"
	fullURL := c.baseURL + path

	var lastErr error
	var echo domain.RequestEcho

	for attempt := 1; attempt <= confirmAttempts; attempt++ {
		if attempt > 1 {
			wait := confirmBackoffStep * time.Duration(attempt-1)
			c.logger.Info("retrying quote confirmation",
				slog.String("quote_id", quoteID),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
			)
			select {
			case <-ctx.Done():
				return ConfirmResult{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		result, reqEcho, err := c.confirmOnce(ctx, quoteID, fullURL, path)
		echo = reqEcho
		if err == nil {
			result.Request = reqEcho
			return result, nil
		}
		lastErr = err
		c.logger.Warn("quote confirmation attempt failed",
			slog.String("quote_id", quoteID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	return ConfirmResult{}, &domain.ConfirmationError{
		QuoteID:  quoteID,
		Attempts: confirmAttempts,
		Request:  echo,
		Err:      lastErr,
	}
}

// confirmOnce performs a single confirm attempt with a fresh signature.
func (c *Client) confirmOnce(ctx context.Context, quoteID, fullURL, path string) (ConfirmResult, domain.RequestEcho, error) {
	headers, err := c.AuthHeaders(http.MethodPut, path)
	if err != nil {
		return ConfirmResult{}, domain.RequestEcho{}, err
	}
	headers.Set("Accept", "application/json")

	echo := domain.RequestEcho{
		Method:  http.MethodPut,
		URL:     fullURL,
		Headers: flattenHeader(headers),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fullURL, nil)
	if err != nil {
		return ConfirmResult{}, echo, fmt.Errorf("create request: %w", err)
	}
	req.Header = headers

	if err := c.wait(ctx); err != nil {
		return ConfirmResult{}, echo, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ConfirmResult{}, echo, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ConfirmResult{}, echo, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK && len(body) > 0:
		var result ConfirmResult
		if err := json.Unmarshal(body, &result); err != nil {
			return ConfirmResult{}, echo, fmt.Errorf("decode confirm response: %w", err)
		}
		if result.QuoteID == "" {
			result.QuoteID = quoteID
		}
		return result, echo, nil
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNoContent:
		return ConfirmResult{Status: "confirmed", QuoteID: quoteID}, echo, nil
	default:
		return ConfirmResult{}, echo, newAPIError(resp.StatusCode, body)
	}
}

// --------------------------------------------------------------------------
// RFQ lifecycle
// --------------------------------------------------------------------------

// CreateRFQ creates a request-for-quote. The exchange requires exactly one
// of a contract count or a target cost; when both are set the target cost
// wins.
func (c *Client) CreateRFQ(ctx context.Context, marketTicker string, contracts, targetCostCentiCents int64, restRemainder bool) (RFQ, error) {
	req := CreateRFQRequest{
		MarketTicker:  marketTicker,
		RestRemainder: restRemainder,
	}
	if targetCostCentiCents > 0 {
		req.TargetCostCentiCent = targetCostCentiCents
	} else {
		req.Contracts = contracts
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, apiPrefix+"/communications/rfqs", req)
	if err != nil {
		return RFQ{}, fmt.Errorf("kalshi: create rfq: %w", err)
	}

	var resp struct {
		RFQ RFQ `json:"rfq"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return RFQ{}, fmt.Errorf("kalshi: decode rfq: %w", err)
	}
	return resp.RFQ, nil
}

// GetRFQ returns a single RFQ by id.
func (c *Client) GetRFQ(ctx context.Context, rfqID string) (RFQ, error) {
	path := apiPrefix + "/communications/rfqs/" + url.PathEscape(rfqID)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return RFQ{}, fmt.Errorf("kalshi: get rfq %s: %w", rfqID, err)
	}

	var resp struct {
		RFQ RFQ `json:"rfq"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return RFQ{}, fmt.Errorf("kalshi: decode rfq: %w", err)
	}
	return resp.RFQ, nil
}

// GetRFQs returns open RFQs, paginated by cursor.
func (c *Client) GetRFQs(ctx context.Context, cursor string) ([]RFQ, string, error) {
	params := url.Values{}
	setParam(params, "cursor", cursor)

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery(apiPrefix+"/communications/rfqs", params), nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get rfqs: %w", err)
	}

	var resp struct {
		RFQs   []RFQ  `json:"rfqs"`
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode rfqs: %w", err)
	}
	return resp.RFQs, resp.Cursor, nil
}

// DeleteRFQ withdraws an RFQ.
func (c *Client) DeleteRFQ(ctx context.Context, rfqID string) error {
	path := apiPrefix + "/communications/rfqs/" + url.PathEscape(rfqID)
	if _, err := c.doSignedRequest(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("kalshi: delete rfq %s: %w", rfqID, err)
	}
	return nil
}

// GetCommunicationsID returns the communications id of the authenticated
// user, used to recognize our own quotes in stream events.
func (c *Client) GetCommunicationsID(ctx context.Context) (string, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, apiPrefix+"/communications/id", nil)
	if err != nil {
		return "", fmt.Errorf("kalshi: get communications id: %w", err)
	}

	var resp struct {
		CommunicationsID string `json:"communications_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("kalshi: decode communications id: %w", err)
	}
	if resp.CommunicationsID == "" {
		return "", fmt.Errorf("kalshi: invalid response: missing communications_id")
	}
	return resp.CommunicationsID, nil
}

// --------------------------------------------------------------------------
// Market data and portfolio
// --------------------------------------------------------------------------

// GetEvents returns exchange events, optionally filtered by series and status.
func (c *Client) GetEvents(ctx context.Context, seriesTicker, status, cursor string, limit int) ([]EventData, string, error) {
	params := url.Values{}
	setParam(params, "series_ticker", seriesTicker)
	setParam(params, "status", status)
	setParam(params, "cursor", cursor)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery(apiPrefix+"/events", params), nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get events: %w", err)
	}

	var resp struct {
		Events []EventData `json:"events"`
		Cursor string      `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode events: %w", err)
	}
	return resp.Events, resp.Cursor, nil
}

// GetEvent returns one event, optionally with its markets nested.
func (c *Client) GetEvent(ctx context.Context, eventTicker string, withNestedMarkets bool) (EventData, error) {
	params := url.Values{}
	if withNestedMarkets {
		params.Set("with_nested_markets", "true")
	}
	path := withQuery(apiPrefix+"/events/"+url.PathEscape(eventTicker), params)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return EventData{}, fmt.Errorf("kalshi: get event %s: %w", eventTicker, err)
	}

	var resp struct {
		Event EventData `json:"event"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return EventData{}, fmt.Errorf("kalshi: decode event: %w", err)
	}
	return resp.Event, nil
}

// GetMarket returns a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	path := apiPrefix + "/markets/" + url.PathEscape(ticker)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return resp.Market, nil
}

// GetMarkets returns markets, optionally restricted to a ticker list.
func (c *Client) GetMarkets(ctx context.Context, tickers string, limit int, cursor string) ([]Market, string, error) {
	params := url.Values{}
	setParam(params, "tickers", tickers)
	setParam(params, "cursor", cursor)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery(apiPrefix+"/markets", params), nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// GetOrderbook returns the current orderbook for a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (Orderbook, error) {
	path := apiPrefix + "/markets/" + url.PathEscape(ticker) + "/orderbook"

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}
	return resp.Orderbook, nil
}

// GetTrades returns executed trades, optionally filtered by ticker and time.
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int, cursor string, minTS, maxTS int64) ([]Trade, string, error) {
	params := url.Values{}
	setParam(params, "ticker", ticker)
	setParam(params, "cursor", cursor)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if minTS > 0 {
		params.Set("min_ts", strconv.FormatInt(minTS, 10))
	}
	if maxTS > 0 {
		params.Set("max_ts", strconv.FormatInt(maxTS, 10))
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery(apiPrefix+"/markets/trades", params), nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get trades: %w", err)
	}

	var resp struct {
		Trades []Trade `json:"trades"`
		Cursor string  `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode trades: %w", err)
	}
	return resp.Trades, resp.Cursor, nil
}

// GetPositions returns portfolio positions.
func (c *Client) GetPositions(ctx context.Context, settlementStatus, countFilter, cursor string, limit int) ([]Position, string, error) {
	params := url.Values{}
	setParam(params, "settlement_status", settlementStatus)
	setParam(params, "count_filter", countFilter)
	setParam(params, "cursor", cursor)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery(apiPrefix+"/portfolio/positions", params), nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get positions: %w", err)
	}

	var resp struct {
		MarketPositions []Position `json:"market_positions"`
		Cursor          string     `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode positions: %w", err)
	}
	return resp.MarketPositions, resp.Cursor, nil
}

// CreateOrder places a limit order.
func (c *Client) CreateOrder(ctx context.Context, order OrderRequest) (Order, error) {
	if order.Type == "" {
		order.Type = "limit"
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, apiPrefix+"/portfolio/orders", order)
	if err != nil {
		return Order{}, fmt.Errorf("kalshi: create order: %w", err)
	}

	var resp struct {
		Order Order `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: decode order: %w", err)
	}
	return resp.Order, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs, sends, and reads an HTTP request. The path
// must include the /trade-api/v2 prefix and may carry a query string, which
// is excluded from the signed message.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	headers, err := c.AuthHeaders(method, path)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// wait blocks on the optional client-side limiter.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// newAPIError builds a *domain.APIError from a failure response, parsing
// either error envelope shape the exchange uses.
func newAPIError(status int, body []byte) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)

	code, message := parsed.Code, parsed.Message
	if parsed.Nested != nil {
		code, message = parsed.Nested.Code, parsed.Nested.Message
	}

	return &domain.APIError{
		Status:  status,
		Code:    code,
		Message: message,
		Body:    string(body),
	}
}

func setParam(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
