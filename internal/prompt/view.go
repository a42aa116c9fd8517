package prompt

import (
	"odte-agent/internal/market"
	"odte-agent/internal/model"
	"odte-agent/internal/prefetch"
	"odte-agent/internal/queue"
	"odte-agent/internal/rtconfig"
)

const (
	nearStrikeCount = 8
	maxExpiryCount  = 5
)

// RiskView carries the operator risk knobs into the template.
type RiskView struct {
	MaxLossPerTradePercent        float64
	MaxDailyTrades                int
	MaxLossPerDayPercent          float64
	DefaultStopLossPercent        float64
	DefaultTakeProfitPercent      float64
	MaxPositionSizePercent        float64
	TrailingStopEnabled           bool
	TrailingStopActivationPercent float64
	TrailingStopDistancePercent   float64
}

// View is the data handed to the user template. Unavailable sub-results keep
// their marker so the template can surface them instead of rendering blanks.
type View struct {
	Signal      *model.Signal
	FullContent string

	Time    *prefetch.TimeInfo
	TimeErr *prefetch.Unavailable

	Chain       *market.OptionChain
	ChainErr    *prefetch.Unavailable
	NearCalls   []market.OptionQuote
	NearPuts    []market.OptionQuote
	ExpirySlice []string

	Account    *prefetch.AccountInfo
	AccountErr *prefetch.Unavailable

	Positions    []prefetch.PositionInfo
	PositionsErr *prefetch.Unavailable

	VIX    *market.VIXReading
	VIXErr *prefetch.Unavailable

	Scheduled *queue.ScheduledContext
	Risk      RiskView
}

// BuildView flattens the bundle for template consumption.
func BuildView(bundle *prefetch.Bundle, scheduled *queue.ScheduledContext, cfg *rtconfig.Snapshot) *View {
	view := &View{
		Signal:       bundle.Signal,
		FullContent:  bundle.Signal.FullContent(),
		Time:         bundle.Time,
		TimeErr:      bundle.TimeErr,
		Chain:        bundle.OptionChain,
		ChainErr:     bundle.OptionChainErr,
		Account:      bundle.Account,
		AccountErr:   bundle.AccountErr,
		Positions:    bundle.Positions,
		PositionsErr: bundle.PositionsErr,
		VIX:          bundle.VIX,
		VIXErr:       bundle.VIXErr,
		Scheduled:    scheduled,
		Risk: RiskView{
			MaxLossPerTradePercent:        cfg.MaxLossPerTradePercent(),
			MaxDailyTrades:                cfg.MaxDailyTrades(),
			MaxLossPerDayPercent:          cfg.MaxLossPerDayPercent(),
			DefaultStopLossPercent:        cfg.DefaultStopLossPercent(),
			DefaultTakeProfitPercent:      cfg.DefaultTakeProfitPercent(),
			MaxPositionSizePercent:        cfg.MaxPositionSizePercent(),
			TrailingStopEnabled:           cfg.TrailingStopEnabled(),
			TrailingStopActivationPercent: cfg.TrailingStopActivationPercent(),
			TrailingStopDistancePercent:   cfg.TrailingStopDistancePercent(),
		},
	}

	if chain := bundle.OptionChain; chain != nil {
		target := chain.UnderlyingPrice
		if bundle.Signal.Strike != nil {
			target = *bundle.Signal.Strike
		}
		view.NearCalls = market.NearStrikes(chain.Calls, target, nearStrikeCount)
		view.NearPuts = market.NearStrikes(chain.Puts, target, nearStrikeCount)

		view.ExpirySlice = chain.AvailableExpiry
		if len(view.ExpirySlice) > maxExpiryCount {
			view.ExpirySlice = view.ExpirySlice[:maxExpiryCount]
		}
	}
	return view
}
