package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/broker"
	"odte-agent/internal/decision"
	"odte-agent/internal/model"
)

// TradeResult is the execution outcome recorded in the decision envelope.
type TradeResult struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"order_id,omitempty"`
	OccSymbol string `json:"occ_symbol,omitempty"`
	Error     string `json:"error,omitempty"`
	Simulated bool   `json:"simulated"`
	Timestamp string `json:"timestamp"`
}

// errOrphanedTrade marks a live submission whose persistence failed. The
// broker holds an order the store does not know about; the failed record
// carries the order id for manual reconciliation.
var errOrphanedTrade = errors.New("processor: orphaned trade")

// executeTrade turns an Execute decision into a bracket order, honoring
// dry-run parity: the simulated path runs the same logic minus the network
// submission. The returned error is non-nil only for retriable failures
// (broker unreachable, store write); broker rejections and contract
// resolution failures resolve within the task as success=false.
func (p *Processor) executeTrade(ctx context.Context, signal *model.Signal, d *decision.Decision, live bool) (*TradeResult, error) {
	exec := d.Execute
	now := p.nowFn().UTC()
	result := &TradeResult{
		Simulated: !live,
		Timestamp: now.Format(time.RFC3339),
	}

	// At most one open trade per thread.
	if existing, err := p.trades.OpenByThreadId(ctx, signal.ThreadID); err == nil && existing != nil {
		result.Error = fmt.Sprintf("open trade %s already exists for thread", existing.Id)
		return result, nil
	} else if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("processor: open trade lookup: %w", err)
	}

	expiry, err := time.ParseInLocation("2006-01-02", exec.Expiry, time.UTC)
	if err != nil {
		result.Error = fmt.Sprintf("invalid expiry %q", exec.Expiry)
		return result, nil
	}

	right := broker.RightFromDirection(exec.Direction)
	occSymbol := broker.BuildOCCSymbol(exec.Ticker, expiry, right, exec.Strike)
	result.OccSymbol = occSymbol

	var (
		orderID string
		conid   sql.NullString
	)
	if live {
		resolved, err := p.broker.ResolveOptionConid(ctx, exec.Ticker, expiry, right, exec.Strike)
		if err != nil {
			if errors.Is(err, broker.ErrUnreachable) {
				return nil, err
			}
			result.Error = err.Error()
			return result, nil
		}
		conid = sql.NullString{String: fmt.Sprintf("%d", resolved), Valid: true}

		placed, err := p.broker.PlaceBracket(ctx, broker.BracketSpec{
			Conid:      resolved,
			Side:       exec.Side,
			Quantity:   exec.Quantity,
			EntryPrice: exec.EntryPrice,
			TakeProfit: exec.TakeProfit,
			StopLoss:   exec.StopLoss,
		})
		if err != nil {
			if errors.Is(err, broker.ErrUnreachable) {
				return nil, err
			}
			var reject *broker.RejectError
			if errors.As(err, &reject) {
				result.Error = fmt.Sprintf("broker rejected: %s", truncateBody(reject.Body))
				return result, nil
			}
			result.Error = err.Error()
			return result, nil
		}
		orderID = placed.ParentOrderID
		logx.WithContext(ctx).Infof("broker accepted bracket %s for %s", orderID, occSymbol)
	} else {
		orderID = "sim-" + uuid.NewString()
		logx.WithContext(ctx).Infof("dry-run bracket %s for %s: entry %.2f tp %.2f sl %.2f",
			orderID, occSymbol, exec.EntryPrice, exec.TakeProfit, exec.StopLoss)
	}

	trade := &model.Trades{
		Id:         uuid.NewString(),
		ThreadId:   signal.ThreadID,
		OrderId:    orderID,
		OccSymbol:  occSymbol,
		Conid:      conid,
		Ticker:     exec.Ticker,
		Side:       exec.Side,
		Quantity:   int64(exec.Quantity),
		EntryPrice: exec.EntryPrice,
		TakeProfit: exec.TakeProfit,
		StopLoss:   exec.StopLoss,
		Status:     model.TradeStatusOpen,
		Simulated:  !live,
		EntryTime:  now,
	}
	if d.ModelUsed != "" {
		trade.ModelId = sql.NullString{String: d.ModelUsed, Valid: true}
	}
	if signal.Confidence != nil {
		trade.Confidence = sql.NullFloat64{Float64: *signal.Confidence, Valid: true}
	}

	if err := p.trades.Insert(ctx, trade); err != nil {
		if live {
			return nil, fmt.Errorf("%w: order %s persisted nowhere: %v", errOrphanedTrade, orderID, err)
		}
		return nil, fmt.Errorf("processor: persist trade: %w", err)
	}

	result.Success = true
	result.OrderID = orderID
	return result, nil
}

func truncateBody(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
