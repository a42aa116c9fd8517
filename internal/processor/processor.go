// Package processor orchestrates one task end to end: preconditions,
// prefetch, prompt, decision, dispatch, persistence. It is the only layer
// that catches errors; everything below propagates them.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/broker"
	"odte-agent/internal/decision"
	"odte-agent/internal/market"
	"odte-agent/internal/model"
	"odte-agent/internal/prefetch"
	"odte-agent/internal/prompt"
	"odte-agent/internal/queue"
	"odte-agent/internal/rtconfig"
	"odte-agent/pkg/journal"
)

// A Delay decision past this many reanalyses degrades to a timing skip.
const maxReanalysisRetries = 2

// ConfigSource provides a fresh runtime config snapshot per task.
type ConfigSource interface {
	Snapshot(ctx context.Context) (*rtconfig.Snapshot, error)
}

// BrokerClient is the execution-path dependency on the gateway.
type BrokerClient interface {
	ResolveOptionConid(ctx context.Context, ticker string, expiry time.Time, right string, strike float64) (int64, error)
	PlaceBracket(ctx context.Context, spec broker.BracketSpec) (*broker.BracketResult, error)
	Positions(ctx context.Context) ([]broker.Position, error)
}

// DecisionRunner is the single-shot LLM stage.
type DecisionRunner interface {
	Decide(ctx context.Context, systemPrompt, userPrompt, modelID string) (*decision.Decision, error)
}

// Prefetcher gathers the bundle.
type Prefetcher interface {
	Fetch(ctx context.Context, signal *model.Signal) *prefetch.Bundle
}

// PromptSource resolves prompts and the user template renderer.
type PromptSource interface {
	SystemPrompt(ctx context.Context) string
	UserRenderer(ctx context.Context) (*prompt.Renderer, error)
}

// DelayScheduler defers a thread for reanalysis.
type DelayScheduler interface {
	Schedule(ctx context.Context, threadID string, dueAt time.Time, sc *queue.ScheduledContext) error
}

// VIXReader is the live-precondition market dependency.
type VIXReader interface {
	VIX(ctx context.Context) (*market.VIXReading, error)
}

// Processor wires the stages for one worker.
type Processor struct {
	signals   model.SignalsModel
	trades    model.TradesModel
	config    ConfigSource
	prompts   PromptSource
	prefetch  Prefetcher
	runner    DecisionRunner
	broker    BrokerClient
	market    VIXReader
	scheduler DelayScheduler
	journal   *journal.Writer
	checks    []Check
	nowFn     func() time.Time
}

// Deps bundles the processor dependencies.
type Deps struct {
	Signals   model.SignalsModel
	Trades    model.TradesModel
	Config    ConfigSource
	Prompts   PromptSource
	Prefetch  Prefetcher
	Runner    DecisionRunner
	Broker    BrokerClient
	Market    VIXReader
	Scheduler DelayScheduler
	Journal   *journal.Writer
}

// New constructs a Processor.
func New(deps Deps) *Processor {
	return &Processor{
		signals:   deps.Signals,
		trades:    deps.Trades,
		config:    deps.Config,
		prompts:   deps.Prompts,
		prefetch:  deps.Prefetch,
		runner:    deps.Runner,
		broker:    deps.Broker,
		market:    deps.Market,
		scheduler: deps.Scheduler,
		journal:   deps.Journal,
		checks:    Chain(),
		nowFn:     time.Now,
	}
}

// Process runs one task to a terminal outcome and tells the consumer how to
// settle it.
func (p *Processor) Process(ctx context.Context, task *queue.Task) queue.Result {
	start := p.nowFn()
	result := p.process(ctx, task)

	rec := &journal.Record{
		ThreadID:   task.ThreadID,
		ThreadName: task.ThreadName,
		RetryCount: task.RetryCount(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	switch result.Outcome {
	case queue.OutcomeComplete:
		rec.Act = result.Message
	case queue.OutcomeFail:
		rec.Act = "fail"
		rec.ErrorKind = result.ErrorKind
		rec.Error = result.Message
	case queue.OutcomeDeadLetter:
		rec.Act = "dead_letter"
		rec.Error = result.Message
	}
	if p.journal != nil {
		if err := p.journal.Append(rec); err != nil {
			logx.WithContext(ctx).Slowf("processor: journal append: %v", err)
		}
	}
	return result
}

func (p *Processor) process(ctx context.Context, task *queue.Task) queue.Result {
	row, err := p.signals.FindOneByThreadId(ctx, task.ThreadID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fail(KindSignalNotFound, "signal not found for thread "+task.ThreadID)
		}
		return p.failOrDeadline(ctx, KindSignalNotFound, err)
	}

	signal, err := model.ParseSignal(row)
	if err != nil {
		return queue.Result{Outcome: queue.OutcomeDeadLetter, Message: err.Error()}
	}

	// Fresh snapshot every task so dashboard edits apply without restart.
	cfg, err := p.config.Snapshot(ctx)
	if err != nil {
		return p.failOrDeadline(ctx, KindConfigUnavail, err)
	}
	live := cfg.ExecuteOrders()

	env := &CheckEnv{
		Config: cfg,
		Signal: signal,
		Ticker: signal.Ticker,
	}
	if live {
		env.VIX = func(ctx context.Context) (float64, error) {
			reading, err := p.market.VIX(ctx)
			if err != nil {
				return 0, err
			}
			return reading.Value, nil
		}
		env.PositionCount = func(ctx context.Context) (int, error) {
			positions, err := p.broker.Positions(ctx)
			if err != nil {
				return 0, err
			}
			return len(positions), nil
		}
		env.OpenTrade = func(ctx context.Context, ticker string) (bool, error) {
			open, err := p.trades.OpenByTicker(ctx, ticker)
			if err != nil {
				return false, err
			}
			return len(open) > 0, nil
		}
	}

	if outcome := RunChain(ctx, p.checks, env, live); !outcome.Pass {
		d := decision.NewSkip(outcome.Reason, outcome.Category)
		return p.persistAndComplete(ctx, task, signal, d, nil, nil)
	}

	bundle := p.prefetch.Fetch(ctx, signal)

	renderer, err := p.prompts.UserRenderer(ctx)
	if err != nil {
		return p.templateError(ctx, task, signal, err)
	}
	view := prompt.BuildView(bundle, task.ScheduledContext, cfg)
	userPrompt, err := renderer.Render(view)
	if err != nil {
		return p.templateError(ctx, task, signal, err)
	}
	systemPrompt := p.prompts.SystemPrompt(ctx)

	d, err := p.runner.Decide(ctx, systemPrompt, userPrompt, cfg.CurrentLLMModel())
	if err != nil {
		if ctx.Err() != nil {
			return fail(KindDeadlineExceeded, err.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(KindLLMTimeout, err.Error())
		}
		return fail(KindLLMTransport, err.Error())
	}

	switch d.Action {
	case decision.ActionDelay:
		return p.handleDelay(ctx, task, signal, d)

	case decision.ActionExecute:
		tradeResult, err := p.executeTrade(ctx, signal, d, live)
		if err != nil {
			if ctx.Err() != nil {
				return fail(KindDeadlineExceeded, err.Error())
			}
			if errors.Is(err, broker.ErrUnreachable) {
				return fail(KindBrokerUnreached, err.Error())
			}
			if errors.Is(err, errOrphanedTrade) {
				return fail(KindStoreWriteError, err.Error())
			}
			return fail(KindStoreWriteError, err.Error())
		}
		return p.persistAndComplete(ctx, task, signal, d, tradeResult, nil)

	default:
		return p.persistAndComplete(ctx, task, signal, d, nil, nil)
	}
}

func (p *Processor) handleDelay(ctx context.Context, task *queue.Task, signal *model.Signal, d *decision.Decision) queue.Result {
	retryCount := task.RetryCount()
	if retryCount >= maxReanalysisRetries {
		logx.WithContext(ctx).Infof("processor: %s exhausted reanalysis retries", task.ThreadID)
		skipDecision := decision.NewSkip("maximum reanalysis retries reached", decision.CategoryTiming)
		skipDecision.ModelUsed = d.ModelUsed
		skipDecision.TraceID = d.TraceID
		return p.persistAndComplete(ctx, task, signal, skipDecision, nil, nil)
	}

	dueAt := p.nowFn().Add(time.Duration(d.Delay.DelayMinutes) * time.Minute)
	sc := &queue.ScheduledContext{
		ThreadName:    threadName(task, signal),
		RetryCount:    retryCount + 1,
		DelayReason:   d.Delay.Reason,
		DelayQuestion: d.Delay.Question,
		KeyLevels:     d.Delay.KeyLevels,
		ReanalyzeAt:   dueAt.UTC().Format(time.RFC3339),
	}
	if err := p.scheduler.Schedule(ctx, task.ThreadID, dueAt, sc); err != nil {
		// The thread would be lost in limbo; degrade to a recorded skip.
		logx.WithContext(ctx).Errorf("processor: schedule %s failed: %v", task.ThreadID, err)
		skipDecision := decision.NewSkip("schedule failed: "+err.Error(), decision.CategoryOther)
		skipDecision.ModelUsed = d.ModelUsed
		skipDecision.TraceID = d.TraceID
		return p.persistAndComplete(ctx, task, signal, skipDecision, nil, nil)
	}

	scheduled := &model.ScheduledReanalysis{
		DueAt:        sc.ReanalyzeAt,
		DelayMinutes: d.Delay.DelayMinutes,
		Question:     d.Delay.Question,
	}
	return p.persistAndComplete(ctx, task, signal, d, nil, scheduled)
}

func (p *Processor) templateError(ctx context.Context, task *queue.Task, signal *model.Signal, err error) queue.Result {
	logx.WithContext(ctx).Errorf("processor: template error for %s: %v", task.ThreadID, err)
	d := decision.NewSkip(decision.ReasonTemplateError, decision.CategoryOther)
	d.Reasoning = err.Error()
	return p.persistAndComplete(ctx, task, signal, d, nil, nil)
}

// persistAndComplete writes the decision envelope and settles the task. Every
// terminal outcome updates the signal record so dashboards see a consistent
// state; a write failure is the retriable store_write_error path.
func (p *Processor) persistAndComplete(ctx context.Context, task *queue.Task, signal *model.Signal, d *decision.Decision, tradeResult *TradeResult, scheduled *model.ScheduledReanalysis) queue.Result {
	envelope, err := buildEnvelope(d, tradeResult, p.nowFn())
	if err != nil {
		return fail(KindStoreWriteError, err.Error())
	}
	if err := p.signals.SaveResult(ctx, task.ThreadID, envelope, scheduled); err != nil {
		if ctx.Err() != nil {
			return fail(KindDeadlineExceeded, err.Error())
		}
		msg := err.Error()
		if tradeResult != nil && tradeResult.Success && !tradeResult.Simulated {
			msg = "orphaned trade " + tradeResult.OrderID + ": " + msg
		}
		return fail(KindStoreWriteError, msg)
	}

	logx.WithContext(ctx).Infof("processor: %s -> %s (%s)", task.ThreadID, d.Action, d.Reasoning)
	return queue.Result{Outcome: queue.OutcomeComplete, Message: string(d.Action)}
}

func (p *Processor) failOrDeadline(ctx context.Context, kind string, err error) queue.Result {
	if ctx.Err() != nil {
		return fail(KindDeadlineExceeded, err.Error())
	}
	return fail(kind, err.Error())
}

func buildEnvelope(d *decision.Decision, tradeResult *TradeResult, now time.Time) (*model.ResultEnvelope, error) {
	var variant any
	switch d.Action {
	case decision.ActionSkip:
		variant = d.Skip
	case decision.ActionExecute:
		variant = d.Execute
	case decision.ActionDelay:
		variant = d.Delay
	}
	decisionJSON, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}

	envelope := &model.ResultEnvelope{
		Act:       string(d.Action),
		Reasoning: d.Reasoning,
		Decision:  decisionJSON,
		ModelUsed: d.ModelUsed,
		Timestamp: now.UTC().Format(time.RFC3339),
		TraceID:   d.TraceID,
	}
	if tradeResult != nil {
		tradeJSON, err := json.Marshal(tradeResult)
		if err != nil {
			return nil, err
		}
		envelope.TradeResult = tradeJSON
	}
	return envelope, nil
}

func threadName(task *queue.Task, signal *model.Signal) string {
	if task.ThreadName != "" {
		return task.ThreadName
	}
	return signal.ThreadName
}

func fail(kind, message string) queue.Result {
	return queue.Result{Outcome: queue.OutcomeFail, ErrorKind: kind, Message: message}
}
