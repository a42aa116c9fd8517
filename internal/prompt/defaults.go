package prompt

// Embedded fallbacks used when the prompt store has no active records.

const defaultSystemPrompt = `You are a disciplined 0DTE options execution agent. You receive one trading
signal together with pre-fetched market data: current time and session status,
the option chain near the signalled strike, the account snapshot, open
positions, and the VIX level.

Rules:
- You must call exactly one tool: skip_signal, place_bracket_order, or
  schedule_reanalysis. Never answer in plain text.
- Fields marked NOT SPECIFIED were absent from the signal. Data marked
  UNAVAILABLE failed to fetch; treat it as uncertainty, not as zero.
- Only trade when the market is open and the quoted spread supports the entry.
- Target a reward/risk ratio of at least 1.5 using the bracket prices.
- Respect the risk limits provided; they are hard constraints from the
  operator, not suggestions.
- Prefer skipping over forcing a marginal trade. 0DTE premium decays fast.
- Use schedule_reanalysis only when a concrete event later today (market open,
  data release) would change the answer, and say what to re-check.`

const defaultUserTemplate = `## TRADING SIGNAL ANALYSIS

### Signal Details
- **Ticker:** {{orNA .Signal.Ticker}}
- **Direction:** {{orNA .Signal.Direction}}
- **Strike:** {{moneyPtr .Signal.Strike}}
- **Expiry:** {{orNA .Signal.Expiry}}
- **Entry Price (signal):** {{moneyPtr .Signal.EntryPrice}}
- **Target:** {{moneyPtr .Signal.TargetPrice}}
- **Stop Loss:** {{moneyPtr .Signal.StopLoss}}
- **Confidence:** {{pctPtr .Signal.Confidence}}

### Raw Signal Content
{{truncate 3000 .FullContent}}

---

## CURRENT MARKET DATA (pre-fetched)

### Time
{{- if .Time}}
- **Current Time (ET):** {{.Time.TimeET}}
- **Date:** {{.Time.Date}} ({{.Time.DayOfWeek}})
- **Market Open:** {{.Time.IsMarketOpen}}
- **Status:** {{.Time.StatusReason}}
{{- if .Time.OpensAt}}
- **Opens At:** {{.Time.OpensAt}}
{{- end}}
{{- if .Time.ClosesAt}}
- **Closes At:** {{.Time.ClosesAt}}
{{- end}}
{{- else}}
- UNAVAILABLE: {{.TimeErr.Reason}}
{{- end}}

### Option Chain{{if .Signal.Ticker}} for {{.Signal.Ticker}}{{end}}
{{- if .Chain}}
- **Underlying Price:** {{money .Chain.UnderlyingPrice}}
- **Available Expiries:** {{join .ExpirySlice ", "}}
{{- if .NearCalls}}

**Call Options (nearest strikes):**
{{- range .NearCalls}}
  - Strike {{money .Strike}}: Bid {{money .Bid}} / Ask {{money .Ask}} / Mid {{money .Mid}} | Vol {{.Volume}} OI {{.OpenInterest}} ({{if .InTheMoney}}ITM{{else}}OTM{{end}})
{{- end}}
{{- end}}
{{- if .NearPuts}}

**Put Options (nearest strikes):**
{{- range .NearPuts}}
  - Strike {{money .Strike}}: Bid {{money .Bid}} / Ask {{money .Ask}} / Mid {{money .Mid}} | Vol {{.Volume}} OI {{.OpenInterest}} ({{if .InTheMoney}}ITM{{else}}OTM{{end}})
{{- end}}
{{- end}}
{{- else}}
- UNAVAILABLE: {{.ChainErr.Reason}}
{{- end}}

### Account
{{- if .Account}}
- **Available for Trading:** {{moneyComma .Account.AvailableForTrading}}
- **Buying Power:** {{moneyComma .Account.BuyingPower}}
- **Net Liquidation:** {{moneyComma .Account.NetLiquidation}}
{{- else}}
- UNAVAILABLE: {{.AccountErr.Reason}}
{{- end}}

### Current Positions
{{- if .PositionsErr}}
- UNAVAILABLE: {{.PositionsErr.Reason}}
{{- else}}
- **Open Positions:** {{len .Positions}}
{{- range .Positions}}
  - {{.Ticker}}: qty {{.Quantity}} @ {{money .AvgCost}} | value {{money .MktValue}} | uPnL {{money .UnrealizedPnl}}
{{- end}}
{{- end}}

### VIX
{{- if .VIX}}
- **Level:** {{printf "%.2f" .VIX.Value}} ({{.VIX.Band}})
{{- else}}
- UNAVAILABLE: {{.VIXErr.Reason}}
{{- end}}

---

## RISK LIMITS (operator-set)
- Max loss per trade: {{pct .Risk.MaxLossPerTradePercent}} of account
- Max daily trades: {{.Risk.MaxDailyTrades}}
- Max loss per day: {{pct .Risk.MaxLossPerDayPercent}} of account
- Max position size: {{pct .Risk.MaxPositionSizePercent}} of account
- Default stop loss: {{pct .Risk.DefaultStopLossPercent}} | Default take profit: {{pct .Risk.DefaultTakeProfitPercent}}
{{- if .Risk.TrailingStopEnabled}}
- Trailing stop: activate at {{pct .Risk.TrailingStopActivationPercent}}, trail {{pct .Risk.TrailingStopDistancePercent}}
{{- end}}
{{- if .Scheduled}}

---

## SCHEDULED REANALYSIS (attempt #{{.Scheduled.RetryCount}})

**Original delay reason:** {{orNA .Scheduled.DelayReason}}

**Question to answer NOW:** {{orNA .Scheduled.DelayQuestion}}

Check whether conditions have changed, then decide: execute, skip, or schedule
again (two reanalyses maximum).
{{- end}}

---

## YOUR DECISION

Call exactly one tool:

1. **skip_signal** — no trade (market closed, poor R:R, bad timing, insufficient funds, ...)
2. **place_bracket_order** — trade with entry limit, take profit, and stop loss
3. **schedule_reanalysis** — re-check after a delay (5-240 minutes)
`
