package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuoteServer(t *testing.T, mux *http.ServeMux) *QuoteClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewQuoteClient(WithQuoteBaseURL(srv.URL))
}

func TestLastPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/SPY", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":604.21}}]}}`)
	})

	c := newQuoteServer(t, mux)
	price, err := c.LastPrice(context.Background(), "SPY")
	require.NoError(t, err)
	assert.InDelta(t, 604.21, price, 1e-9)
}

func TestVIXUsesIndexSymbol(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.EscapedPath(), "%5EVIX")
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":18.42}}]}}`)
	})

	c := newQuoteServer(t, mux)
	value, err := c.VIX(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 18.42, value, 1e-9)
}

func TestLastPriceNoData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v8/finance/chart/ZZZZ", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[]}}`)
	})

	c := newQuoteServer(t, mux)
	_, err := c.LastPrice(context.Background(), "ZZZZ")
	assert.Error(t, err)
}

func TestOptionChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v7/finance/options/SPY", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1733702400", r.URL.Query().Get("date")) // 2024-12-09 UTC
		fmt.Fprint(w, `{"optionChain":{"result":[{
			"expirationDates":[1733702400,1733788800],
			"quote":{"regularMarketPrice":604.21},
			"options":[{
				"expirationDate":1733702400,
				"calls":[{"strike":605,"bid":1.70,"ask":1.84,"lastPrice":1.77,"volume":1200,"openInterest":5400,"impliedVolatility":0.19,"inTheMoney":false}],
				"puts":[{"strike":605,"bid":2.00,"ask":2.10,"lastPrice":2.05,"volume":900,"openInterest":3100,"impliedVolatility":0.21,"inTheMoney":true}]
			}]
		}]}}`)
	})

	c := newQuoteServer(t, mux)
	chain, err := c.OptionChain(context.Background(), "SPY", "2024-12-09")
	require.NoError(t, err)

	assert.Equal(t, "SPY", chain.Symbol)
	assert.InDelta(t, 604.21, chain.UnderlyingPrice, 1e-9)
	assert.Equal(t, []string{"2024-12-09", "2024-12-10"}, chain.AvailableExpiry)

	require.Len(t, chain.Calls, 1)
	call := chain.Calls[0]
	assert.InDelta(t, 1.77, call.Last, 1e-9)
	assert.InDelta(t, (1.70+1.84)/2, call.Mid, 1e-9)
	assert.False(t, call.InTheMoney)

	require.Len(t, chain.Puts, 1)
	assert.True(t, chain.Puts[0].InTheMoney)
}

func TestOptionChainInvalidExpiry(t *testing.T) {
	c := NewQuoteClient()
	_, err := c.OptionChain(context.Background(), "SPY", "12/09/2024")
	assert.Error(t, err)
}

func TestNearStrikes(t *testing.T) {
	quotes := []OptionQuote{
		{Strike: 600}, {Strike: 601}, {Strike: 602}, {Strike: 603},
		{Strike: 604}, {Strike: 605}, {Strike: 606}, {Strike: 607},
	}

	near := NearStrikes(quotes, 605, 4)
	require.Len(t, near, 4)
	assert.Equal(t, 603.0, near[0].Strike)
	assert.Equal(t, 606.0, near[3].Strike)

	// Fewer rows than requested returns everything.
	assert.Len(t, NearStrikes(quotes[:2], 605, 4), 2)

	// Target beyond the range clamps at the edge.
	edge := NearStrikes(quotes, 700, 3)
	require.Len(t, edge, 3)
	assert.Equal(t, 607.0, edge[2].Strike)
}
