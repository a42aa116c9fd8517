package decision

// Action is the terminal choice for one signal.
type Action string

const (
	ActionSkip    Action = "skip"
	ActionExecute Action = "execute"
	ActionDelay   Action = "schedule"
)

// Skip categories the model may supply; parse failures use CategoryOther.
const (
	CategoryNoSignal       = "no_signal"
	CategoryMarketClosed   = "market_closed"
	CategoryBadRR          = "bad_rr"
	CategoryLowConfidence  = "low_confidence"
	CategoryTiming         = "timing"
	CategoryPositionExists = "position_exists"
	CategoryOther          = "other"
)

// Well-known skip reasons produced by the core rather than the model.
const (
	ReasonFormatError    = "ai_format_error"
	ReasonInvalidBracket = "invalid_bracket"
	ReasonTemplateError  = "template_error"
)

// Skip declines the signal.
type Skip struct {
	Reason   string `json:"reason" validate:"required"`
	Category string `json:"category" validate:"required,oneof=no_signal market_closed bad_rr low_confidence timing position_exists other"`
}

// Execute places a bracket order.
type Execute struct {
	Ticker     string  `json:"ticker" validate:"required"`
	Expiry     string  `json:"expiry" validate:"required,datetime=2006-01-02"`
	Strike     float64 `json:"strike" validate:"required,gt=0"`
	Direction  string  `json:"direction" validate:"required,oneof=CALL PUT"`
	Side       string  `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity   int     `json:"quantity" validate:"required,gte=1"`
	EntryPrice float64 `json:"entry_price" validate:"required,gt=0"`
	TakeProfit float64 `json:"take_profit" validate:"required,gt=0"`
	StopLoss   float64 `json:"stop_loss" validate:"required,gt=0"`
	Reasoning  string  `json:"reasoning"`
}

// Delay schedules a reanalysis after delay_minutes.
type Delay struct {
	DelayMinutes int                `json:"delay_minutes" validate:"required"`
	Reason       string             `json:"reason" validate:"required"`
	Question     string             `json:"question" validate:"required"`
	KeyLevels    map[string]float64 `json:"key_levels,omitempty"`
}

// Delay bounds; outside them the decision degrades to a format-error skip.
const (
	MinDelayMinutes = 5
	MaxDelayMinutes = 240
)

// Decision is the tagged union produced by the runner. Exactly one of the
// variant pointers matching Action is set.
type Decision struct {
	Action  Action
	Skip    *Skip
	Execute *Execute
	Delay   *Delay

	Reasoning string
	ModelUsed string
	TraceID   string
	RawArgs   string
}

// NewSkip builds a core-originated skip decision.
func NewSkip(reason, category string) *Decision {
	return &Decision{
		Action:    ActionSkip,
		Skip:      &Skip{Reason: reason, Category: category},
		Reasoning: reason,
	}
}
