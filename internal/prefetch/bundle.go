package prefetch

import (
	"odte-agent/internal/market"
	"odte-agent/internal/model"
)

// Unavailable marks a sub-fetch that errored or timed out. The prompt renders
// it explicitly so the model treats the gap as uncertainty instead of silence.
type Unavailable struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// TimeInfo is the wall-clock and session snapshot.
type TimeInfo struct {
	TimeET       string `json:"time_et"`
	Date         string `json:"date"`
	DayOfWeek    string `json:"day_of_week"`
	IsMarketOpen bool   `json:"is_market_open"`
	StatusReason string `json:"status_reason"`
	OpensAt      string `json:"opens_at,omitempty"`
	ClosesAt     string `json:"closes_at,omitempty"`
}

// AccountInfo is the prompt-facing account snapshot.
type AccountInfo struct {
	AvailableForTrading float64 `json:"available_for_trading"`
	BuyingPower         float64 `json:"buying_power"`
	NetLiquidation      float64 `json:"net_liquidation"`
	Simulated           bool    `json:"simulated"`
}

// PositionInfo is one open position.
type PositionInfo struct {
	Ticker        string  `json:"ticker"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	MktValue      float64 `json:"mkt_value"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	RealizedPnl   float64 `json:"realized_pnl"`
}

// Bundle is the read-only snapshot handed to prompt assembly. Each sub-result
// is either its value or an Unavailable marker, never both.
type Bundle struct {
	Time    *TimeInfo
	TimeErr *Unavailable

	OptionChain    *market.OptionChain
	OptionChainErr *Unavailable

	Account    *AccountInfo
	AccountErr *Unavailable

	Positions    []PositionInfo
	PositionsErr *Unavailable

	VIX    *market.VIXReading
	VIXErr *Unavailable

	Signal *model.Signal
}

// OpenPositionCount counts positions in the bundle; zero when unavailable.
func (b *Bundle) OpenPositionCount() int {
	return len(b.Positions)
}

// HasTicker reports whether a position for the ticker exists in the snapshot.
func (b *Bundle) HasTicker(ticker string) bool {
	for _, p := range b.Positions {
		if p.Ticker == ticker {
			return true
		}
	}
	return false
}
