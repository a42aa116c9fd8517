// Package rtconfig exposes the dashboard-editable trading configuration
// stored in redis. The dashboard writes; this process only reads. Every task
// takes a fresh Snapshot so edits apply without a restart.
package rtconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"odte-agent/internal/cache"
)

// Recognized option names, in the order they appear in MGET reads.
var optionNames = []string{
	"emergency_stop",
	"execute_orders",
	"max_concurrent_positions",
	"max_vix_level",
	"min_ai_confidence_score",
	"whitelist_tickers",
	"blacklist_tickers",
	"max_loss_per_trade_percent",
	"max_daily_trades",
	"max_loss_per_day_percent",
	"default_stop_loss_percent",
	"default_take_profit_percent",
	"trailing_stop_enabled",
	"trailing_stop_activation_percent",
	"trailing_stop_distance_percent",
	"max_position_size_percent",
	"current_llm_model",
}

// Store reads runtime config values from redis.
type Store struct {
	rdb redis.UniversalClient
}

// NewStore constructs a Store over the given redis client.
func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Snapshot reads every recognized option in one round-trip. Missing keys fall
// back to their defaults at getter time.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	keys := make([]string, len(optionNames))
	for i, name := range optionNames {
		keys[i] = cache.ConfigKey(name)
	}

	raw, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("rtconfig: mget: %w", err)
	}

	values := make(map[string]string, len(optionNames))
	for i, v := range raw {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			values[optionNames[i]] = str
		}
	}
	return &Snapshot{values: values}, nil
}

// Snapshot is an immutable view of the runtime config at one point in time.
type Snapshot struct {
	values map[string]string
}

func (s *Snapshot) boolOr(key string, def bool) bool {
	raw, ok := s.values[key]
	if !ok {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

func (s *Snapshot) intOr(key string, def int) int {
	raw, ok := s.values[key]
	if !ok {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func (s *Snapshot) floatOr(key string, def float64) float64 {
	raw, ok := s.values[key]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

func (s *Snapshot) listOr(key string, def []string) []string {
	raw, ok := s.values[key]
	if !ok {
		return def
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return def
	}
	return out
}

func (s *Snapshot) stringOr(key, def string) string {
	raw, ok := s.values[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	return raw
}

// EmergencyStop forces a Skip on every task when set.
func (s *Snapshot) EmergencyStop() bool { return s.boolOr("emergency_stop", false) }

// ExecuteOrders selects live submission; false means dry-run.
func (s *Snapshot) ExecuteOrders() bool { return s.boolOr("execute_orders", false) }

func (s *Snapshot) MaxConcurrentPositions() int { return s.intOr("max_concurrent_positions", 5) }

func (s *Snapshot) MaxVIXLevel() float64 { return s.floatOr("max_vix_level", 25) }

func (s *Snapshot) MinAIConfidenceScore() float64 { return s.floatOr("min_ai_confidence_score", 0.5) }

// WhitelistTickers returns the allowed tickers. Empty means unrestricted.
func (s *Snapshot) WhitelistTickers() []string {
	return s.listOr("whitelist_tickers", []string{"SPY", "QQQ"})
}

func (s *Snapshot) BlacklistTickers() []string { return s.listOr("blacklist_tickers", nil) }

func (s *Snapshot) MaxLossPerTradePercent() float64 { return s.floatOr("max_loss_per_trade_percent", 0.1) }

func (s *Snapshot) MaxDailyTrades() int { return s.intOr("max_daily_trades", 10) }

func (s *Snapshot) MaxLossPerDayPercent() float64 { return s.floatOr("max_loss_per_day_percent", 0.1) }

func (s *Snapshot) DefaultStopLossPercent() float64 { return s.floatOr("default_stop_loss_percent", 0.3) }

func (s *Snapshot) DefaultTakeProfitPercent() float64 {
	return s.floatOr("default_take_profit_percent", 0.5)
}

func (s *Snapshot) TrailingStopEnabled() bool { return s.boolOr("trailing_stop_enabled", false) }

func (s *Snapshot) TrailingStopActivationPercent() float64 {
	return s.floatOr("trailing_stop_activation_percent", 0.2)
}

func (s *Snapshot) TrailingStopDistancePercent() float64 {
	return s.floatOr("trailing_stop_distance_percent", 0.1)
}

func (s *Snapshot) MaxPositionSizePercent() float64 { return s.floatOr("max_position_size_percent", 0.2) }

func (s *Snapshot) CurrentLLMModel() string {
	return s.stringOr("current_llm_model", "deepseek/deepseek-reasoner")
}

// NewSnapshotFromMap builds a Snapshot from raw values; tests use this to
// avoid a redis round-trip.
func NewSnapshotFromMap(values map[string]string) *Snapshot {
	if values == nil {
		values = map[string]string{}
	}
	return &Snapshot{values: values}
}
