package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultQuoteBaseURL = "https://query1.finance.yahoo.com"
	defaultQuoteTimeout = 10 * time.Second
	vixSymbol           = "^VIX"
)

// indexSymbols need a caret prefix on the delayed-quote API.
var indexSymbols = map[string]bool{
	"SPX": true, "NDX": true, "RUT": true, "VIX": true, "DJX": true,
}

// QuoteClient reads delayed quotes and option chains from the free fallback
// source. Used whenever the gateway lacks a market-data subscription.
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// QuoteOption customises the quote client.
type QuoteOption func(*QuoteClient)

// WithQuoteHTTPClient overrides the default HTTP client.
func WithQuoteHTTPClient(httpClient *http.Client) QuoteOption {
	return func(c *QuoteClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithQuoteBaseURL overrides the quote API base URL (testing).
func WithQuoteBaseURL(baseURL string) QuoteOption {
	return func(c *QuoteClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewQuoteClient constructs the fallback quote source.
func NewQuoteClient(opts ...QuoteOption) *QuoteClient {
	c := &QuoteClient{
		baseURL:    defaultQuoteBaseURL,
		httpClient: &http.Client{Timeout: defaultQuoteTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func apiSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if indexSymbols[s] {
		return "^" + s
	}
	return s
}

func (c *QuoteClient) get(ctx context.Context, path string, query url.Values, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("market: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; odte-agent)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market: quote request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("market: read quote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("market: quote http status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("market: decode quote response: %w", err)
	}
	return nil
}

// LastPrice reads the latest regular-market price for a symbol.
func (c *QuoteClient) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}

	path := "/v8/finance/chart/" + url.PathEscape(apiSymbol(symbol))
	query := url.Values{"range": {"1d"}, "interval": {"1m"}}
	if err := c.get(ctx, path, query, &payload); err != nil {
		return 0, err
	}
	if len(payload.Chart.Result) == 0 {
		return 0, fmt.Errorf("market: no quote data for %s", symbol)
	}
	price := payload.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return 0, fmt.Errorf("market: non-positive price for %s", symbol)
	}
	return price, nil
}

// VIX reads the current volatility index level.
func (c *QuoteClient) VIX(ctx context.Context) (float64, error) {
	return c.LastPrice(ctx, vixSymbol)
}

type optionRow struct {
	Strike            float64 `json:"strike"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	LastPrice         float64 `json:"lastPrice"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"openInterest"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	InTheMoney        bool    `json:"inTheMoney"`
}

// OptionChain reads one expiry's option chain. An empty expiry selects the
// nearest listed expiration.
func (c *QuoteClient) OptionChain(ctx context.Context, symbol, expiry string) (*OptionChain, error) {
	var payload struct {
		OptionChain struct {
			Result []struct {
				ExpirationDates []int64 `json:"expirationDates"`
				Quote           struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"quote"`
				Options []struct {
					ExpirationDate int64       `json:"expirationDate"`
					Calls          []optionRow `json:"calls"`
					Puts           []optionRow `json:"puts"`
				} `json:"options"`
			} `json:"result"`
		} `json:"optionChain"`
	}

	path := "/v7/finance/options/" + url.PathEscape(apiSymbol(symbol))
	query := url.Values{}
	if expiry != "" {
		due, err := time.ParseInLocation("2006-01-02", expiry, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("market: invalid expiry %q: %w", expiry, err)
		}
		query.Set("date", fmt.Sprintf("%d", due.Unix()))
	}
	if err := c.get(ctx, path, query, &payload); err != nil {
		return nil, err
	}
	if len(payload.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("market: no option data for %s", symbol)
	}

	result := payload.OptionChain.Result[0]
	chain := &OptionChain{
		Symbol:          strings.ToUpper(symbol),
		Expiry:          expiry,
		UnderlyingPrice: result.Quote.RegularMarketPrice,
		RetrievedAt:     time.Now().UTC(),
	}
	for _, ts := range result.ExpirationDates {
		chain.AvailableExpiry = append(chain.AvailableExpiry, time.Unix(ts, 0).UTC().Format("2006-01-02"))
	}
	if len(result.Options) > 0 {
		opt := result.Options[0]
		if chain.Expiry == "" {
			chain.Expiry = time.Unix(opt.ExpirationDate, 0).UTC().Format("2006-01-02")
		}
		chain.Calls = convertRows(opt.Calls)
		chain.Puts = convertRows(opt.Puts)
	}
	return chain, nil
}

func convertRows(rows []optionRow) []OptionQuote {
	out := make([]OptionQuote, 0, len(rows))
	for _, r := range rows {
		out = append(out, OptionQuote{
			Strike:       r.Strike,
			Bid:          r.Bid,
			Ask:          r.Ask,
			Last:         r.LastPrice,
			Mid:          (r.Bid + r.Ask) / 2,
			Volume:       r.Volume,
			OpenInterest: r.OpenInterest,
			IV:           r.ImpliedVolatility,
			InTheMoney:   r.InTheMoney,
		})
	}
	return out
}
