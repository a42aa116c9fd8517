// Package prefetch gathers the read-only facts a decision needs, in parallel,
// under one wall-clock budget. Partial failure degrades to explicit markers;
// it never aborts the pipeline.
package prefetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/broker"
	"odte-agent/internal/market"
	"odte-agent/internal/model"
)

const defaultBudget = 6 * time.Second

// MarketReader is the market-data dependency.
type MarketReader interface {
	VIX(ctx context.Context) (*market.VIXReading, error)
	OptionChain(ctx context.Context, symbol, expiry string) (*market.OptionChain, error)
}

// AccountReader is the brokerage dependency.
type AccountReader interface {
	AccountSummary(ctx context.Context) (*broker.AccountSummary, error)
	Positions(ctx context.Context) ([]broker.Position, error)
}

// Engine runs the parallel prefetch stage.
type Engine struct {
	market  MarketReader
	account AccountReader
	budget  time.Duration
	nowFn   func() time.Time
}

// EngineOption customises the engine.
type EngineOption func(*Engine)

// WithBudget overrides the wall-clock budget for one whole bundle.
func WithBudget(budget time.Duration) EngineOption {
	return func(e *Engine) {
		if budget > 0 {
			e.budget = budget
		}
	}
}

// WithNow overrides the time source (testing).
func WithNow(nowFn func() time.Time) EngineOption {
	return func(e *Engine) {
		if nowFn != nil {
			e.nowFn = nowFn
		}
	}
}

// NewEngine constructs a prefetch engine.
func NewEngine(marketReader MarketReader, accountReader AccountReader, opts ...EngineOption) *Engine {
	e := &Engine{
		market:  marketReader,
		account: accountReader,
		budget:  defaultBudget,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch gathers the bundle. On budget expiry in-flight reads are cancelled and
// whatever completed is used.
func (e *Engine) Fetch(ctx context.Context, signal *model.Signal) *Bundle {
	fetchCtx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	bundle := &Bundle{Signal: signal}
	var wg sync.WaitGroup

	// The time read is local but fills in the same pass as the network reads.
	wg.Add(1)
	go func() {
		defer wg.Done()
		bundle.Time = buildTimeInfo(e.nowFn())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		vix, err := e.market.VIX(fetchCtx)
		if err != nil {
			bundle.VIXErr = unavailable("vix", err)
			return
		}
		bundle.VIX = vix
	}()

	ticker := strings.TrimSpace(signal.Ticker)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if ticker == "" {
			bundle.OptionChainErr = &Unavailable{Kind: "option_chain", Reason: "no ticker parsed from signal"}
			return
		}
		chain, err := e.market.OptionChain(fetchCtx, ticker, signal.Expiry)
		if err != nil {
			bundle.OptionChainErr = unavailable("option_chain", err)
			return
		}
		bundle.OptionChain = chain
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		summary, err := e.account.AccountSummary(fetchCtx)
		if err != nil {
			bundle.AccountErr = unavailable("account", err)
			return
		}
		if summary == nil {
			bundle.AccountErr = &Unavailable{Kind: "account", Reason: "no account summary returned"}
			return
		}
		bundle.Account = &AccountInfo{
			AvailableForTrading: summary.AvailableForTrading,
			BuyingPower:         summary.BuyingPower,
			NetLiquidation:      summary.NetLiquidation,
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		positions, err := e.account.Positions(fetchCtx)
		if err != nil {
			bundle.PositionsErr = unavailable("positions", err)
			return
		}
		out := make([]PositionInfo, 0, len(positions))
		for _, p := range positions {
			out = append(out, PositionInfo{
				Ticker:        p.Ticker,
				Quantity:      p.Quantity,
				AvgCost:       p.AvgCost,
				MktValue:      p.MktValue,
				UnrealizedPnl: p.UnrealizedPnl,
				RealizedPnl:   p.RealizedPnl,
			})
		}
		bundle.Positions = out
	}()

	wg.Wait()

	if err := fetchCtx.Err(); err != nil {
		logx.WithContext(ctx).Slowf("prefetch: budget expired for %s: %v", signal.ThreadID, err)
	}
	return bundle
}

func buildTimeInfo(now time.Time) *TimeInfo {
	status := market.MarketStatus(now)
	return &TimeInfo{
		TimeET:       status.Time.Format("15:04:05"),
		Date:         status.Time.Format("2006-01-02"),
		DayOfWeek:    status.DayOfWeek,
		IsMarketOpen: status.IsOpen,
		StatusReason: status.Reason,
		OpensAt:      status.OpensAt,
		ClosesAt:     status.ClosesAt,
	}
}

func unavailable(kind string, err error) *Unavailable {
	return &Unavailable{Kind: kind, Reason: err.Error()}
}
