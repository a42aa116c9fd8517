package decision

import "odte-agent/pkg/llm"

// Tool names the model chooses between. Exactly one call is honored.
const (
	ToolSkipSignal         = "skip_signal"
	ToolPlaceBracketOrder  = "place_bracket_order"
	ToolScheduleReanalysis = "schedule_reanalysis"
)

// DecisionTools returns the three tool schemas offered on every call.
func DecisionTools() []llm.Tool {
	return []llm.Tool{
		{
			Name:        ToolSkipSignal,
			Description: "Skip this signal - do not trade",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Why skipping",
					},
					"category": map[string]any{
						"type": "string",
						"enum": []string{
							CategoryNoSignal, CategoryMarketClosed, CategoryBadRR,
							CategoryLowConfidence, CategoryTiming, CategoryPositionExists,
							CategoryOther,
						},
					},
				},
				"required": []string{"reason", "category"},
			},
		},
		{
			Name:        ToolPlaceBracketOrder,
			Description: "Execute this trade with a bracket order (entry limit + take profit + stop loss)",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ticker": map[string]any{
						"type":        "string",
						"description": "Underlying ticker, e.g. SPY",
					},
					"expiry": map[string]any{
						"type":        "string",
						"description": "Option expiry date, YYYY-MM-DD",
					},
					"strike": map[string]any{
						"type":        "number",
						"description": "Option strike price",
					},
					"direction": map[string]any{
						"type": "string",
						"enum": []string{"CALL", "PUT"},
					},
					"side": map[string]any{
						"type": "string",
						"enum": []string{"BUY", "SELL"},
					},
					"quantity": map[string]any{
						"type":        "integer",
						"description": "Number of contracts, at least 1",
					},
					"entry_price": map[string]any{
						"type":        "number",
						"description": "Limit entry price per contract",
					},
					"take_profit": map[string]any{
						"type":        "number",
						"description": "Take profit limit price",
					},
					"stop_loss": map[string]any{
						"type":        "number",
						"description": "Stop loss trigger price",
					},
					"reasoning": map[string]any{
						"type":        "string",
						"description": "Why executing this trade",
					},
				},
				"required": []string{
					"ticker", "expiry", "strike", "direction", "side",
					"quantity", "entry_price", "take_profit", "stop_loss",
				},
			},
		},
		{
			Name: ToolScheduleReanalysis,
			Description: "Schedule this signal for reanalysis after a delay. Use when the entry " +
				"will be valid later today (event release, market open settling). Do not use " +
				"when the event is more than 4 hours away or the signal is stale.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"delay_minutes": map[string]any{
						"type":        "integer",
						"description": "Minutes to wait before reanalysis, between 5 and 240",
					},
					"reason": map[string]any{
						"type":        "string",
						"description": "Why scheduling a delay",
					},
					"question": map[string]any{
						"type":        "string",
						"description": "Question to answer when reanalyzing",
					},
					"key_levels": map[string]any{
						"type":        "object",
						"description": "Key price levels to check on reanalysis",
						"properties": map[string]any{
							"entry_price":      map[string]any{"type": "number"},
							"target_price":     map[string]any{"type": "number"},
							"stop_loss":        map[string]any{"type": "number"},
							"underlying_price": map[string]any{"type": "number"},
						},
					},
				},
				"required": []string{"delay_minutes", "reason", "question"},
			},
		},
	}
}
