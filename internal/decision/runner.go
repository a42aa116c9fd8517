// Package decision makes exactly one LLM call per task and converts the
// model's single tool invocation into a typed Decision. The three-way choice
// is parsed in one place; nothing downstream sees untyped argument maps.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/pkg/llm"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.3
	defaultMaxTokens   = 2000
)

// Runner performs the single-shot decision call.
type Runner struct {
	client   llm.LLMClient
	timeout  time.Duration
	validate *validator.Validate
}

// RunnerOption customises the runner.
type RunnerOption func(*Runner)

// WithTimeout overrides the LLM call deadline.
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewRunner constructs a decision runner.
func NewRunner(client llm.LLMClient, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:   client,
		timeout:  defaultTimeout,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide issues one chat request with tool_choice required and maps the reply
// to a Decision. Transport and timeout errors return as errors (the task-level
// retriable path); malformed model output degrades to a format-error Skip.
func (r *Runner) Decide(ctx context.Context, systemPrompt, userPrompt, modelID string) (*Decision, error) {
	temperature := defaultTemperature
	maxTokens := defaultMaxTokens
	req := &llm.ChatRequest{
		Model: modelID,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Tools:       DecisionTools(),
		ToolChoice:  "required",
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Chat(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("decision: llm call timed out after %s: %w", r.timeout, err)
		}
		return nil, fmt.Errorf("decision: llm call: %w", err)
	}

	d := r.mapResponse(ctx, resp)
	d.ModelUsed = modelID
	d.TraceID = resp.RequestID
	return d, nil
}

func (r *Runner) mapResponse(ctx context.Context, resp *llm.ChatResponse) *Decision {
	call, ok := resp.FirstToolCall()
	if !ok {
		logx.WithContext(ctx).Slowf("decision: model returned no tool call (content %q)", firstContent(resp))
		return NewSkip(ReasonFormatError, CategoryOther)
	}
	if extra := len(resp.Choices[0].ToolCalls) - 1; extra > 0 {
		logx.WithContext(ctx).Slowf("decision: ignoring %d extra tool calls", extra)
	}
	return r.ParseToolCall(call)
}

// ParseToolCall converts one tool invocation into a Decision. Unknown tools
// and schema violations map to a format-error Skip; invalid bracket ordering
// maps to an invalid-bracket Skip.
func (r *Runner) ParseToolCall(call llm.ToolCall) *Decision {
	args := call.Function.Arguments

	switch call.Function.Name {
	case ToolSkipSignal:
		var skip Skip
		if err := r.decode(args, &skip); err != nil {
			return formatError(args)
		}
		return &Decision{Action: ActionSkip, Skip: &skip, Reasoning: skip.Reason, RawArgs: args}

	case ToolPlaceBracketOrder:
		var exec Execute
		if err := r.decode(args, &exec); err != nil {
			return formatError(args)
		}
		if err := validateBracket(&exec); err != nil {
			d := NewSkip(ReasonInvalidBracket, CategoryOther)
			d.Reasoning = err.Error()
			d.RawArgs = args
			return d
		}
		return &Decision{Action: ActionExecute, Execute: &exec, Reasoning: exec.Reasoning, RawArgs: args}

	case ToolScheduleReanalysis:
		var delay Delay
		if err := r.decode(args, &delay); err != nil {
			return formatError(args)
		}
		if delay.DelayMinutes < MinDelayMinutes || delay.DelayMinutes > MaxDelayMinutes {
			return formatError(args)
		}
		return &Decision{Action: ActionDelay, Delay: &delay, Reasoning: delay.Reason, RawArgs: args}

	default:
		return formatError(args)
	}
}

func (r *Runner) decode(args string, target any) error {
	if err := json.Unmarshal([]byte(args), target); err != nil {
		return fmt.Errorf("decision: decode tool arguments: %w", err)
	}
	if err := r.validate.Struct(target); err != nil {
		return fmt.Errorf("decision: validate tool arguments: %w", err)
	}
	return nil
}

// validateBracket enforces price ordering: stop below entry below target for
// buys, mirrored for sells.
func validateBracket(exec *Execute) error {
	if strings.EqualFold(exec.Side, "SELL") {
		if !(exec.TakeProfit < exec.EntryPrice && exec.EntryPrice < exec.StopLoss) {
			return fmt.Errorf("sell bracket requires TP %.2f < entry %.2f < SL %.2f",
				exec.TakeProfit, exec.EntryPrice, exec.StopLoss)
		}
		return nil
	}
	if !(exec.StopLoss < exec.EntryPrice && exec.EntryPrice < exec.TakeProfit) {
		return fmt.Errorf("buy bracket requires SL %.2f < entry %.2f < TP %.2f",
			exec.StopLoss, exec.EntryPrice, exec.TakeProfit)
	}
	return nil
}

func formatError(args string) *Decision {
	d := NewSkip(ReasonFormatError, CategoryOther)
	d.RawArgs = args
	return d
}

func firstContent(resp *llm.ChatResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	content := resp.Choices[0].Message.Content
	if len(content) > 200 {
		content = content[:200]
	}
	return content
}
