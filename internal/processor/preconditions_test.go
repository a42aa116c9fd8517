package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odte-agent/internal/decision"
	"odte-agent/internal/model"
	"odte-agent/internal/rtconfig"
)

func envWith(t *testing.T, cfg map[string]string, signal *model.Signal) *CheckEnv {
	t.Helper()
	return &CheckEnv{
		Config: rtconfig.NewSnapshotFromMap(cfg),
		Signal: signal,
		Ticker: signal.Ticker,
	}
}

func confidentSignal(ticker string, confidence float64) *model.Signal {
	sig := &model.Signal{
		ThreadID:   "t1",
		ThreadName: ticker,
		Ticker:     ticker,
		Messages:   []model.SignalMessage{{Content: "buy calls"}},
	}
	sig.Confidence = &confidence
	return sig
}

func TestChainOrder(t *testing.T) {
	names := make([]string, 0)
	for _, c := range Chain() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"emergency_stop", "ticker_present", "whitelist", "blacklist",
		"min_confidence", "vix_ceiling", "max_positions", "duplicate_position",
	}, names)
}

func TestEmergencyStopShortCircuits(t *testing.T) {
	env := envWith(t, map[string]string{
		"emergency_stop":    "true",
		"whitelist_tickers": `[]`,
	}, confidentSignal("SPY", 0.9))

	outcome := RunChain(context.Background(), Chain(), env, false)
	require.False(t, outcome.Pass)
	assert.Equal(t, decision.CategoryOther, outcome.Category)
	assert.Contains(t, outcome.Reason, "emergency")
}

func TestTickerPresent(t *testing.T) {
	sig := &model.Signal{ThreadID: "t1"}
	env := envWith(t, map[string]string{"whitelist_tickers": `[]`}, sig)

	outcome := RunChain(context.Background(), Chain(), env, false)
	require.False(t, outcome.Pass)
	assert.Equal(t, decision.CategoryNoSignal, outcome.Category)
}

func TestTickerAbsentButContentPresent(t *testing.T) {
	sig := &model.Signal{
		ThreadID: "t1",
		Messages: []model.SignalMessage{{Content: "watch for breakout"}},
	}
	env := envWith(t, map[string]string{"whitelist_tickers": `[]`}, sig)

	outcome := RunChain(context.Background(), Chain(), env, false)
	assert.True(t, outcome.Pass)
}

func TestWhitelist(t *testing.T) {
	env := envWith(t, map[string]string{
		"whitelist_tickers": `["SPY"]`,
	}, confidentSignal("NVDA", 0.8))

	outcome := RunChain(context.Background(), Chain(), env, false)
	require.False(t, outcome.Pass)
	assert.Contains(t, outcome.Reason, "whitelist")
}

func TestEmptyWhitelistAllowsAll(t *testing.T) {
	env := envWith(t, map[string]string{
		"whitelist_tickers": `[]`,
	}, confidentSignal("NVDA", 0.8))

	outcome := RunChain(context.Background(), Chain(), env, false)
	assert.True(t, outcome.Pass)
}

func TestBlacklist(t *testing.T) {
	env := envWith(t, map[string]string{
		"whitelist_tickers": `[]`,
		"blacklist_tickers": `["NVDA"]`,
	}, confidentSignal("NVDA", 0.8))

	outcome := RunChain(context.Background(), Chain(), env, false)
	require.False(t, outcome.Pass)
	assert.Contains(t, outcome.Reason, "blacklisted")
}

func TestMinConfidence(t *testing.T) {
	env := envWith(t, map[string]string{
		"whitelist_tickers":       `[]`,
		"min_ai_confidence_score": "0.6",
	}, confidentSignal("SPY", 0.4))

	outcome := RunChain(context.Background(), Chain(), env, false)
	require.False(t, outcome.Pass)
	assert.Equal(t, decision.CategoryLowConfidence, outcome.Category)
}

func TestMissingConfidencePasses(t *testing.T) {
	sig := confidentSignal("SPY", 0.9)
	sig.Confidence = nil
	env := envWith(t, map[string]string{"whitelist_tickers": `[]`}, sig)

	outcome := RunChain(context.Background(), Chain(), env, false)
	assert.True(t, outcome.Pass)
}

func TestLiveOnlyChecksSkippedInDryRun(t *testing.T) {
	env := envWith(t, map[string]string{"whitelist_tickers": `[]`}, confidentSignal("SPY", 0.9))
	env.VIX = func(ctx context.Context) (float64, error) {
		t.Fatal("vix must not be read in dry-run")
		return 0, nil
	}

	outcome := RunChain(context.Background(), Chain(), env, false)
	assert.True(t, outcome.Pass)
}

func TestVIXCeilingLive(t *testing.T) {
	env := envWith(t, map[string]string{
		"whitelist_tickers": `[]`,
		"max_vix_level":     "25",
	}, confidentSignal("SPY", 0.9))
	env.VIX = func(ctx context.Context) (float64, error) { return 27.5, nil }

	outcome := RunChain(context.Background(), Chain(), env, true)
	require.False(t, outcome.Pass)
	assert.Contains(t, outcome.Reason, "VIX")
}

func TestVIXFetchFailureFailsOpen(t *testing.T) {
	env := envWith(t, map[string]string{"whitelist_tickers": `[]`}, confidentSignal("SPY", 0.9))
	env.VIX = func(ctx context.Context) (float64, error) { return 0, errors.New("source down") }

	outcome := RunChain(context.Background(), Chain(), env, true)
	assert.True(t, outcome.Pass)
}

func TestMaxPositionsLive(t *testing.T) {
	env := envWith(t, map[string]string{
		"whitelist_tickers":        `[]`,
		"max_concurrent_positions": "2",
	}, confidentSignal("SPY", 0.9))
	env.VIX = func(ctx context.Context) (float64, error) { return 15, nil }
	env.PositionCount = func(ctx context.Context) (int, error) { return 2, nil }

	outcome := RunChain(context.Background(), Chain(), env, true)
	require.False(t, outcome.Pass)
	assert.Contains(t, outcome.Reason, "positions")
}

func TestDuplicatePositionLive(t *testing.T) {
	env := envWith(t, map[string]string{"whitelist_tickers": `[]`}, confidentSignal("SPY", 0.9))
	env.VIX = func(ctx context.Context) (float64, error) { return 15, nil }
	env.PositionCount = func(ctx context.Context) (int, error) { return 0, nil }
	env.OpenTrade = func(ctx context.Context, ticker string) (bool, error) { return true, nil }

	outcome := RunChain(context.Background(), Chain(), env, true)
	require.False(t, outcome.Pass)
	assert.Equal(t, decision.CategoryPositionExists, outcome.Category)
}
