package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spyExpiry = time.Date(2024, 12, 9, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "DU1234567")
}

func TestResolveOptionConid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SPY", r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"conid": "756733", "symbol": "SPY", "companyName": "SPDR S&P 500"},
			{"conid": "1001", "symbol": "SPYG", "companyName": "SPDR Growth"},
		})
	})
	mux.HandleFunc("/v1/api/iserver/secdef/strikes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "756733", r.URL.Query().Get("conid"))
		assert.Equal(t, "DEC24", r.URL.Query().Get("month"))
		json.NewEncoder(w).Encode(map[string]any{
			"call": []float64{600, 605, 610},
			"put":  []float64{600, 605, 610},
		})
	})
	mux.HandleFunc("/v1/api/iserver/secdef/info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "756733", r.URL.Query().Get("conid"))
		assert.Equal(t, "DEC24", r.URL.Query().Get("month"))
		assert.Equal(t, "C", r.URL.Query().Get("right"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"conid": 55501, "right": "C", "strike": 605.0, "maturityDate": "20241209"},
			{"conid": 55502, "right": "C", "strike": 605.0, "maturityDate": "20241213"},
		})
	})

	c := newTestClient(t, mux)
	conid, err := c.ResolveOptionConid(context.Background(), "SPY", spyExpiry, "C", 605)
	require.NoError(t, err)
	assert.Equal(t, int64(55501), conid)
}

func TestResolveOptionConidNoMatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"conid": "756733", "symbol": "SPY"}})
	})
	mux.HandleFunc("/v1/api/iserver/secdef/strikes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"call": []float64{605}, "put": []float64{605}})
	})
	mux.HandleFunc("/v1/api/iserver/secdef/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	})

	c := newTestClient(t, mux)
	_, err := c.ResolveOptionConid(context.Background(), "SPY", spyExpiry, "C", 605)
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestResolveOptionConidUnlistedStrike(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"conid": "756733", "symbol": "SPY"}})
	})
	mux.HandleFunc("/v1/api/iserver/secdef/strikes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"call": []float64{600, 610}, "put": []float64{600, 610}})
	})

	c := newTestClient(t, mux)
	_, err := c.ResolveOptionConid(context.Background(), "SPY", spyExpiry, "C", 605)
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestResolveOptionConidUnknownUnderlying(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	})

	c := newTestClient(t, mux)
	_, err := c.ResolveOptionConid(context.Background(), "ZZZZ", spyExpiry, "C", 10)
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestPlaceBracketWithConfirmations(t *testing.T) {
	var placedOrders []map[string]any
	confirmed := map[string]bool{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/account/DU1234567/orders", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Orders []map[string]any `json:"orders"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		placedOrders = payload.Orders
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "q1", "message": []string{"price exceeds the Percentage constraint of 3%"}},
		})
	})
	mux.HandleFunc("/v1/api/iserver/reply/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/api/iserver/reply/"):]
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["confirmed"])
		confirmed[id] = true
		if id == "q1" {
			json.NewEncoder(w).Encode([]map[string]any{
				{"id": "q2", "message": []string{"You are about to place a stop order"}},
			})
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"order_id": "987654321", "order_status": "Submitted"},
		})
	})

	c := newTestClient(t, mux)
	result, err := c.PlaceBracket(context.Background(), BracketSpec{
		Conid:      55501,
		Side:       "BUY",
		Quantity:   1,
		EntryPrice: 1.77,
		TakeProfit: 2.50,
		StopLoss:   1.20,
	})
	require.NoError(t, err)

	assert.Equal(t, "987654321", result.ParentOrderID)
	assert.Equal(t, "Submitted", result.Status)
	assert.True(t, confirmed["q1"])
	assert.True(t, confirmed["q2"])

	require.Len(t, placedOrders, 3)
	parent, tp, sl := placedOrders[0], placedOrders[1], placedOrders[2]
	assert.Equal(t, "LMT", parent["orderType"])
	assert.Equal(t, "BUY", parent["side"])
	assert.Equal(t, 1.77, parent["price"])
	assert.NotEmpty(t, parent["cOID"])

	assert.Equal(t, "LMT", tp["orderType"])
	assert.Equal(t, "SELL", tp["side"])
	assert.Equal(t, 2.50, tp["price"])
	assert.Equal(t, parent["cOID"], tp["parentId"])
	assert.Equal(t, true, tp["isSingleGroup"])

	assert.Equal(t, "STP", sl["orderType"])
	assert.Equal(t, "SELL", sl["side"])
	assert.Equal(t, 1.20, sl["auxPrice"])
	assert.Equal(t, parent["cOID"], sl["parentId"])
}

func TestPlaceBracketRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/account/DU1234567/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"insufficient funds"}`)
	})

	c := newTestClient(t, mux)
	_, err := c.PlaceBracket(context.Background(), BracketSpec{
		Conid: 55501, Side: "BUY", Quantity: 1, EntryPrice: 1.77, TakeProfit: 2.50, StopLoss: 1.20,
	})

	var reject *RejectError
	require.ErrorAs(t, err, &reject)
	assert.Equal(t, http.StatusBadRequest, reject.StatusCode)
}

func TestClientUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "DU1234567")
	_, err := c.Positions(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestReadsRetryTransientGatewayErrors(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/portfolio/DU1234567/positions/0", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"ticker": "SPY", "position": 1.0}})
	})

	c := newTestClient(t, mux)
	positions, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 3, attempts)
}

func TestOrderPlacementIsNeverRetried(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/account/DU1234567/orders", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := newTestClient(t, mux)
	_, err := c.PlaceBracket(context.Background(), BracketSpec{
		Conid: 55501, Side: "BUY", Quantity: 1, EntryPrice: 1.77, TakeProfit: 2.50, StopLoss: 1.20,
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "a 503 on placement is ambiguous; never resubmit")
}

func TestRetriableGatewayError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unreachable", fmt.Errorf("%w: dial tcp", ErrUnreachable), true},
		{"throttled", &RejectError{StatusCode: http.StatusTooManyRequests}, true},
		{"gateway 502", &RejectError{StatusCode: http.StatusBadGateway}, true},
		{"bad request", &RejectError{StatusCode: http.StatusBadRequest}, false},
		{"contract not found", ErrContractNotFound, false},
		{"generic", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetriableGatewayError(tt.err))
		})
	}
}

func TestCheckHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/auth/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]any{"authenticated": true, "connected": true})
	})

	c := newTestClient(t, mux)
	ok, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccountSummaryUSDLedger(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/portfolio/DU1234567/ledger", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"USD": map[string]any{
				"cashbalance":         25000.0,
				"netliquidationvalue": 31000.0,
				"settledcash":         24000.0,
			},
		})
	})

	c := newTestClient(t, mux)
	summary, err := c.AccountSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24000.0, summary.AvailableForTrading)
	assert.Equal(t, 25000.0, summary.BuyingPower)
	assert.Equal(t, 31000.0, summary.NetLiquidation)
}

func TestBracketQuantityValidation(t *testing.T) {
	c := NewClient("http://localhost", "DU1234567")
	_, err := c.PlaceBracket(context.Background(), BracketSpec{Quantity: 0})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnreachable))
}
