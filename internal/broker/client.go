// Package broker adapts the brokerage gateway's REST surface. A Client is not
// safe for concurrent use across workers; each consumer worker owns one.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/pkg/retry"
)

const (
	defaultHTTPTimeout = 15 * time.Second

	// The gateway interposes confirmation questions before accepting an
	// order (price percentage constraint, order value limit, missing market
	// data, stop order risks). All are acknowledged affirmatively; the cap
	// bounds a misbehaving gateway.
	maxConfirmRounds = 6
)

// Client talks to the brokerage gateway.
type Client struct {
	baseURL    string
	accountID  string
	httpClient *http.Client
	retries    *retry.Handler
}

// RetriableGatewayError classifies gateway failures worth another attempt:
// transport-level unreachability plus throttling and gateway-side 5xx. Order
// placement is never retried through this path; only idempotent reads are.
func RetriableGatewayError(err error) bool {
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var reject *RejectError
	if errors.As(err, &reject) {
		switch reject.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// ClientOption customises the gateway client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient constructs a gateway client for one account.
func NewClient(baseURL, accountID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountID:  accountID,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retries:    retry.New(retry.Config{MaxAttempts: 3}, RetriableGatewayError),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// readJSON is doJSON wrapped with retries, for idempotent reads only.
func (c *Client) readJSON(ctx context.Context, method, path string, query url.Values, result any) error {
	return c.retries.Do(ctx, func() error {
		return c.doJSON(ctx, method, path, query, nil, result)
	})
}

// AccountID returns the configured account.
func (c *Client) AccountID() string { return c.accountID }

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("broker: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("broker: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logx.WithContext(ctx).Errorf("broker: %s %s -> %d: %s", method, path, resp.StatusCode, truncate(string(data), 500))
		return &RejectError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("broker: decode response: %w", err)
		}
	}
	return nil
}

// CheckHealth reports whether the gateway session is authenticated.
func (c *Client) CheckHealth(ctx context.Context) (bool, error) {
	var status AuthStatus
	err := c.retries.Do(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, "/v1/api/iserver/auth/status", nil, nil, &status)
	})
	if err != nil {
		return false, err
	}
	return status.Authenticated && status.Connected, nil
}

// Accounts lists the accounts visible to the session.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := c.readJSON(ctx, http.MethodGet, "/v1/api/portfolio/accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Positions lists open positions for the configured account.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	path := fmt.Sprintf("/v1/api/portfolio/%s/positions/0", c.accountID)
	var positions []Position
	if err := c.readJSON(ctx, http.MethodGet, path, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// AccountSummary reads the ledger and folds it into the prompt-facing summary.
func (c *Client) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	path := fmt.Sprintf("/v1/api/portfolio/%s/ledger", c.accountID)
	var ledger map[string]LedgerEntry
	if err := c.readJSON(ctx, http.MethodGet, path, nil, &ledger); err != nil {
		return nil, err
	}

	entry, ok := ledger["USD"]
	if !ok {
		entry = ledger["BASE"]
	}
	return &AccountSummary{
		AccountID:           c.accountID,
		AvailableForTrading: entry.SettledCash,
		BuyingPower:         entry.CashBalance,
		NetLiquidation:      entry.NetLiquidation,
	}, nil
}

// SearchContract finds the underlying conid for a ticker.
func (c *Client) SearchContract(ctx context.Context, symbol string) (int64, error) {
	query := url.Values{"symbol": {strings.ToUpper(symbol)}, "secType": {"STK"}}
	var results []secdefSearchResult
	if err := c.readJSON(ctx, http.MethodGet, "/v1/api/iserver/secdef/search", query, &results); err != nil {
		return 0, err
	}

	for _, r := range results {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		conid, err := strconv.ParseInt(strings.TrimSpace(r.Conid), 10, 64)
		if err != nil {
			continue
		}
		return conid, nil
	}
	return 0, fmt.Errorf("%w: underlying %s", ErrContractNotFound, symbol)
}

// Strikes lists available strikes for the underlying in the given month.
func (c *Client) Strikes(ctx context.Context, underlyingConid int64, expiry time.Time) ([]float64, []float64, error) {
	query := url.Values{
		"conid":   {strconv.FormatInt(underlyingConid, 10)},
		"sectype": {"OPT"},
		"month":   {contractMonth(expiry)},
	}
	var payload struct {
		Call []float64 `json:"call"`
		Put  []float64 `json:"put"`
	}
	if err := c.readJSON(ctx, http.MethodGet, "/v1/api/iserver/secdef/strikes", query, &payload); err != nil {
		return nil, nil, err
	}
	return payload.Call, payload.Put, nil
}

// ResolveOptionConid resolves the exact option contract id by filtering the
// secdef info results to the requested maturity, strike and right. Anything
// other than exactly one candidate is a resolution failure.
func (c *Client) ResolveOptionConid(ctx context.Context, ticker string, expiry time.Time, right string, strike float64) (int64, error) {
	underlying, err := c.SearchContract(ctx, ticker)
	if err != nil {
		return 0, err
	}

	calls, puts, err := c.Strikes(ctx, underlying, expiry)
	if err != nil {
		return 0, err
	}
	listed := calls
	if strings.EqualFold(right, "P") {
		listed = puts
	}
	if !containsStrike(listed, strike) {
		return 0, fmt.Errorf("%w: strike %.2f not listed for %s %s",
			ErrContractNotFound, strike, ticker, contractMonth(expiry))
	}

	query := url.Values{
		"conid":   {strconv.FormatInt(underlying, 10)},
		"sectype": {"OPT"},
		"month":   {contractMonth(expiry)},
		"strike":  {strconv.FormatFloat(strike, 'f', -1, 64)},
		"right":   {right},
	}
	var infos []secdefInfo
	if err := c.readJSON(ctx, http.MethodGet, "/v1/api/iserver/secdef/info", query, &infos); err != nil {
		return 0, err
	}

	want := maturityDate(expiry)
	var matches []secdefInfo
	for _, info := range infos {
		if info.MaturityDate != want {
			continue
		}
		if !strings.EqualFold(info.Right, right) {
			continue
		}
		if info.Strike != strike {
			continue
		}
		matches = append(matches, info)
	}

	if len(matches) != 1 {
		return 0, fmt.Errorf("%w: %s %s %s %.2f matched %d contracts",
			ErrContractNotFound, ticker, want, right, strike, len(matches))
	}
	return matches[0].Conid, nil
}

// PlaceBracket submits a parent limit order with linked take-profit and
// stop-loss children, answering the gateway's confirmation questions.
func (c *Client) PlaceBracket(ctx context.Context, spec BracketSpec) (*BracketResult, error) {
	if spec.Quantity <= 0 {
		return nil, fmt.Errorf("broker: bracket quantity must be positive")
	}
	tif := spec.TIF
	if tif == "" {
		tif = "DAY"
	}

	parentCOID := fmt.Sprintf("bracket_%d_%d", spec.Conid, time.Now().UnixNano())
	exitSide := "SELL"
	if strings.EqualFold(spec.Side, "SELL") {
		exitSide = "BUY"
	}

	orders := []orderRequest{
		{
			AcctID:    c.accountID,
			Conid:     spec.Conid,
			OrderType: "LMT",
			Side:      strings.ToUpper(spec.Side),
			Price:     spec.EntryPrice,
			Quantity:  spec.Quantity,
			TIF:       tif,
			COID:      parentCOID,
		},
		{
			AcctID:        c.accountID,
			Conid:         spec.Conid,
			OrderType:     "LMT",
			Side:          exitSide,
			Price:         spec.TakeProfit,
			Quantity:      spec.Quantity,
			TIF:           "GTC",
			ParentID:      parentCOID,
			IsSingleGroup: true,
		},
		{
			AcctID:        c.accountID,
			Conid:         spec.Conid,
			OrderType:     "STP",
			Side:          exitSide,
			AuxPrice:      spec.StopLoss,
			Quantity:      spec.Quantity,
			TIF:           "GTC",
			ParentID:      parentCOID,
			IsSingleGroup: true,
		},
	}

	path := fmt.Sprintf("/v1/api/iserver/account/%s/orders", c.accountID)
	var replies []placeReply
	if err := c.doJSON(ctx, http.MethodPost, path, nil, map[string]any{"orders": orders}, &replies); err != nil {
		return nil, err
	}

	replies, err := c.answerConfirmations(ctx, replies)
	if err != nil {
		return nil, err
	}

	for _, reply := range replies {
		if reply.OrderID != "" {
			return &BracketResult{
				ParentOrderID: reply.OrderID,
				ClientOrderID: parentCOID,
				Status:        reply.OrderStatus,
			}, nil
		}
	}
	return nil, &RejectError{StatusCode: http.StatusOK, Body: "no order id in gateway reply"}
}

// answerConfirmations acknowledges pending gateway questions until an order id
// appears or the round cap is hit.
func (c *Client) answerConfirmations(ctx context.Context, replies []placeReply) ([]placeReply, error) {
	for round := 0; round < maxConfirmRounds; round++ {
		pending := ""
		for _, reply := range replies {
			if reply.OrderID == "" && reply.ID != "" {
				pending = reply.ID
				break
			}
		}
		if pending == "" {
			return replies, nil
		}

		logx.WithContext(ctx).Infof("broker: confirming gateway question %s", pending)
		path := fmt.Sprintf("/v1/api/iserver/reply/%s", pending)
		var next []placeReply
		if err := c.doJSON(ctx, http.MethodPost, path, nil, map[string]any{"confirmed": true}, &next); err != nil {
			return nil, err
		}
		replies = next
	}
	return nil, &RejectError{StatusCode: http.StatusOK, Body: "confirmation loop did not converge"}
}

// SnapshotPrice reads the last price for a contract from the gateway's
// market-data snapshot endpoint. Requires a market-data subscription.
func (c *Client) SnapshotPrice(ctx context.Context, conid int64) (float64, error) {
	query := url.Values{
		"conids": {strconv.FormatInt(conid, 10)},
		"fields": {"31"},
	}
	var rows []map[string]any
	if err := c.readJSON(ctx, http.MethodGet, "/v1/api/iserver/marketdata/snapshot", query, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("broker: empty snapshot for conid %d", conid)
	}
	raw, ok := rows[0]["31"]
	if !ok {
		return 0, fmt.Errorf("broker: snapshot missing last price for conid %d", conid)
	}
	switch v := raw.(type) {
	case string:
		price, err := strconv.ParseFloat(strings.TrimPrefix(v, "C"), 64)
		if err != nil {
			return 0, fmt.Errorf("broker: parse snapshot price %q: %w", v, err)
		}
		return price, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("broker: unexpected snapshot price type %T", raw)
	}
}

// CancelOrder cancels a live order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/v1/api/iserver/account/%s/order/%s", c.accountID, orderID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

// LiveOrders lists current orders for the session.
func (c *Client) LiveOrders(ctx context.Context) ([]LiveOrder, error) {
	var payload struct {
		Orders []LiveOrder `json:"orders"`
	}
	if err := c.readJSON(ctx, http.MethodGet, "/v1/api/iserver/account/orders", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Orders, nil
}

func containsStrike(strikes []float64, strike float64) bool {
	for _, s := range strikes {
		if s == strike {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
