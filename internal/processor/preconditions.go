package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/decision"
	"odte-agent/internal/model"
	"odte-agent/internal/rtconfig"
)

// Outcome is the result of one precondition check.
type Outcome struct {
	Pass     bool
	Reason   string
	Category string
}

func pass() Outcome { return Outcome{Pass: true} }

func skip(category, format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...), Category: category}
}

// CheckEnv is the shared context handed to every check.
type CheckEnv struct {
	Config *rtconfig.Snapshot
	Signal *model.Signal
	Ticker string

	// Live-only dependencies; nil in dry-run.
	VIX           func(ctx context.Context) (float64, error)
	PositionCount func(ctx context.Context) (int, error)
	OpenTrade     func(ctx context.Context, ticker string) (bool, error)
}

// Check is one deterministic gate. LiveOnly checks are skipped entirely in
// dry-run. The registered order defines short-circuit precedence: the first
// non-pass becomes the final decision without any LLM call.
type Check struct {
	Name     string
	LiveOnly bool
	Run      func(ctx context.Context, env *CheckEnv) Outcome
}

// Chain returns the ordered precondition list.
func Chain() []Check {
	return []Check{
		{
			Name: "emergency_stop",
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				if env.Config.EmergencyStop() {
					return skip(decision.CategoryOther, "emergency stop is active")
				}
				return pass()
			},
		},
		{
			Name: "ticker_present",
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				if env.Ticker == "" && env.Signal.FullContent() == "" {
					return skip(decision.CategoryNoSignal, "no ticker and no signal content")
				}
				return pass()
			},
		},
		{
			Name: "whitelist",
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				whitelist := env.Config.WhitelistTickers()
				if len(whitelist) == 0 || env.Ticker == "" {
					return pass()
				}
				for _, allowed := range whitelist {
					if strings.EqualFold(allowed, env.Ticker) {
						return pass()
					}
				}
				return skip(decision.CategoryOther, "ticker %s not in whitelist %v", env.Ticker, whitelist)
			},
		},
		{
			Name: "blacklist",
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				for _, blocked := range env.Config.BlacklistTickers() {
					if env.Ticker != "" && strings.EqualFold(blocked, env.Ticker) {
						return skip(decision.CategoryOther, "ticker %s is blacklisted", env.Ticker)
					}
				}
				return pass()
			},
		},
		{
			Name: "min_confidence",
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				if env.Signal.Confidence == nil {
					return pass()
				}
				floor := env.Config.MinAIConfidenceScore()
				if *env.Signal.Confidence < floor {
					return skip(decision.CategoryLowConfidence,
						"signal confidence %.2f below floor %.2f", *env.Signal.Confidence, floor)
				}
				return pass()
			},
		},
		{
			Name:     "vix_ceiling",
			LiveOnly: true,
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				if env.VIX == nil {
					return pass()
				}
				value, err := env.VIX(ctx)
				if err != nil {
					// The ceiling cannot be verified; the model sees the gap
					// in the bundle and weighs it there.
					logx.WithContext(ctx).Slowf("precondition vix_ceiling: fetch failed: %v", err)
					return pass()
				}
				ceiling := env.Config.MaxVIXLevel()
				if value >= ceiling {
					return skip(decision.CategoryOther, "VIX %.2f at or above ceiling %.2f", value, ceiling)
				}
				return pass()
			},
		},
		{
			Name:     "max_positions",
			LiveOnly: true,
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				if env.PositionCount == nil {
					return pass()
				}
				count, err := env.PositionCount(ctx)
				if err != nil {
					logx.WithContext(ctx).Slowf("precondition max_positions: fetch failed: %v", err)
					return pass()
				}
				limit := env.Config.MaxConcurrentPositions()
				if count >= limit {
					return skip(decision.CategoryOther, "open positions %d at limit %d", count, limit)
				}
				return pass()
			},
		},
		{
			Name:     "duplicate_position",
			LiveOnly: true,
			Run: func(ctx context.Context, env *CheckEnv) Outcome {
				if env.OpenTrade == nil || env.Ticker == "" {
					return pass()
				}
				exists, err := env.OpenTrade(ctx, env.Ticker)
				if err != nil {
					logx.WithContext(ctx).Slowf("precondition duplicate_position: lookup failed: %v", err)
					return pass()
				}
				if exists {
					return skip(decision.CategoryPositionExists, "open trade for %s already exists", env.Ticker)
				}
				return pass()
			},
		},
	}
}

// RunChain evaluates the checks in order, returning the first non-pass.
func RunChain(ctx context.Context, checks []Check, env *CheckEnv, live bool) Outcome {
	for _, check := range checks {
		if check.LiveOnly && !live {
			continue
		}
		outcome := check.Run(ctx, env)
		if !outcome.Pass {
			logx.WithContext(ctx).Infof("precondition %s blocked %s: %s",
				check.Name, env.Signal.ThreadID, outcome.Reason)
			return outcome
		}
	}
	return pass()
}
