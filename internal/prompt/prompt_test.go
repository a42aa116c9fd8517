package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odte-agent/internal/market"
	"odte-agent/internal/model"
	"odte-agent/internal/prefetch"
	"odte-agent/internal/queue"
	"odte-agent/internal/rtconfig"
)

func sampleBundle() *prefetch.Bundle {
	strike := 605.0
	entry := 1.77
	confidence := 0.7
	sig := &model.Signal{
		ThreadID:   "t1",
		ThreadName: "SPY 0DTE",
		Ticker:     "SPY",
		Direction:  "CALL",
		Strike:     &strike,
		EntryPrice: &entry,
		Confidence: &confidence,
		Expiry:     "2024-12-09",
		Messages:   []model.SignalMessage{{Content: "Buy calls on SPY"}},
	}
	return &prefetch.Bundle{
		Signal: sig,
		Time: &prefetch.TimeInfo{
			TimeET: "10:30:00", Date: "2024-12-09", DayOfWeek: "Monday",
			IsMarketOpen: true, StatusReason: market.StatusMarketOpen, ClosesAt: "16:00 ET",
		},
		OptionChain: &market.OptionChain{
			Symbol:          "SPY",
			UnderlyingPrice: 604.21,
			Calls: []market.OptionQuote{
				{Strike: 604, Bid: 2.10, Ask: 2.24, Mid: 2.17, Volume: 800, OpenInterest: 3000},
				{Strike: 605, Bid: 1.70, Ask: 1.84, Mid: 1.77, Volume: 1200, OpenInterest: 5400},
			},
			Puts:            []market.OptionQuote{{Strike: 605, Bid: 2.00, Ask: 2.10, Mid: 2.05, InTheMoney: true}},
			AvailableExpiry: []string{"2024-12-09", "2024-12-10", "2024-12-11", "2024-12-12", "2024-12-13", "2024-12-16"},
		},
		Account:   &prefetch.AccountInfo{AvailableForTrading: 24000.50, BuyingPower: 25000, NetLiquidation: 31000},
		Positions: []prefetch.PositionInfo{{Ticker: "QQQ", Quantity: 2, AvgCost: 1.50, MktValue: 320, UnrealizedPnl: 20}},
		VIX:       &market.VIXReading{Value: 18.42, Band: market.VIXBandNormal},
	}
}

func renderDefault(t *testing.T, bundle *prefetch.Bundle, sc *queue.ScheduledContext) string {
	t.Helper()
	renderer, err := NewRenderer("user_template", defaultUserTemplate)
	require.NoError(t, err)
	view := BuildView(bundle, sc, rtconfig.NewSnapshotFromMap(nil))
	out, err := renderer.Render(view)
	require.NoError(t, err)
	return out
}

func TestDefaultTemplateRendersAllSections(t *testing.T) {
	out := renderDefault(t, sampleBundle(), nil)

	assert.Contains(t, out, "**Ticker:** SPY")
	assert.Contains(t, out, "**Strike:** $605.00")
	assert.Contains(t, out, "**Confidence:** 70%")
	assert.Contains(t, out, "Buy calls on SPY")
	assert.Contains(t, out, "**Underlying Price:** $604.21")
	assert.Contains(t, out, "Strike $605.00: Bid $1.70 / Ask $1.84 / Mid $1.77")
	assert.Contains(t, out, "**Available for Trading:** $24,000.50")
	assert.Contains(t, out, "QQQ: qty 2")
	assert.Contains(t, out, "18.42 (normal)")
	assert.Contains(t, out, "Max daily trades: 10")
	assert.NotContains(t, out, "SCHEDULED REANALYSIS")
}

func TestAbsentFieldsRenderNotSpecified(t *testing.T) {
	bundle := sampleBundle()
	bundle.Signal.Strike = nil
	bundle.Signal.EntryPrice = nil
	bundle.Signal.Confidence = nil
	bundle.Signal.Direction = ""

	out := renderDefault(t, bundle, nil)
	assert.Contains(t, out, "**Strike:** NOT SPECIFIED")
	assert.Contains(t, out, "**Direction:** NOT SPECIFIED")
	assert.Contains(t, out, "**Confidence:** NOT SPECIFIED")
}

func TestUnavailableSubResultsSurface(t *testing.T) {
	bundle := sampleBundle()
	bundle.OptionChain = nil
	bundle.OptionChainErr = &prefetch.Unavailable{Kind: "option_chain", Reason: "timeout after 6s"}
	bundle.VIX = nil
	bundle.VIXErr = &prefetch.Unavailable{Kind: "vix", Reason: "source down"}

	out := renderDefault(t, bundle, nil)
	assert.Contains(t, out, "UNAVAILABLE: timeout after 6s")
	assert.Contains(t, out, "UNAVAILABLE: source down")
}

func TestScheduledContextSection(t *testing.T) {
	sc := &queue.ScheduledContext{
		RetryCount:    1,
		DelayReason:   "await PCE release",
		DelayQuestion: "has the market absorbed the print?",
	}
	out := renderDefault(t, sampleBundle(), sc)

	assert.Contains(t, out, "SCHEDULED REANALYSIS (attempt #1)")
	assert.Contains(t, out, "await PCE release")
	assert.Contains(t, out, "has the market absorbed the print?")
}

func TestRenderIsDeterministic(t *testing.T) {
	bundle := sampleBundle()
	first := renderDefault(t, bundle, nil)
	second := renderDefault(t, bundle, nil)
	assert.Equal(t, first, second, "same bundle must render byte-identical output")
}

func TestViewTrimsExpiriesAndStrikes(t *testing.T) {
	view := BuildView(sampleBundle(), nil, rtconfig.NewSnapshotFromMap(nil))
	assert.Len(t, view.ExpirySlice, 5)
	assert.LessOrEqual(t, len(view.NearCalls), 8)
}

func TestRendererRejectsBadTemplate(t *testing.T) {
	_, err := NewRenderer("broken", "{{.Signal.")
	assert.Error(t, err)
}

func TestRenderErrorOnMissingField(t *testing.T) {
	renderer, err := NewRenderer("bad", "{{.DoesNotExist.Deeper}}")
	require.NoError(t, err)
	view := BuildView(sampleBundle(), nil, rtconfig.NewSnapshotFromMap(nil))
	_, err = renderer.Render(view)
	assert.Error(t, err)
}

func TestServiceFallsBackToDefaults(t *testing.T) {
	svc := NewService(nil)

	system := svc.SystemPrompt(context.Background())
	assert.Contains(t, system, "exactly one tool")

	renderer, err := svc.UserRenderer(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, renderer.Digest())
}

func TestRendererDigestStable(t *testing.T) {
	a, err := NewRenderer("x", "hello {{.Name}}")
	require.NoError(t, err)
	b, err := NewRenderer("x", "hello {{.Name}}")
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())

	c, err := NewRenderer("x", "hello {{.Name}}!")
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestMoneyCommaFormatting(t *testing.T) {
	fm := funcMap()
	moneyComma := fm["moneyComma"].(func(float64) string)
	assert.Equal(t, "$1,234,567.89", moneyComma(1234567.89))
	assert.Equal(t, "$950.00", moneyComma(950))
	assert.Equal(t, "$24,000.50", moneyComma(24000.50))
}

func TestTruncateFunc(t *testing.T) {
	fm := funcMap()
	trunc := fm["truncate"].(func(int, string) string)
	assert.Equal(t, "abc", trunc(5, "abc"))
	assert.Equal(t, "abcde", trunc(5, "abcdefg"))
	assert.False(t, strings.Contains(trunc(2, "xyz"), "z"))
}
