package processor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/broker"
	"odte-agent/internal/model"
)

const defaultMonitorInterval = 30 * time.Second

// LiveOrderReader is the fill monitor's gateway dependency.
type LiveOrderReader interface {
	LiveOrders(ctx context.Context) ([]broker.LiveOrder, error)
}

// FillMonitor reconciles open trades against broker order state on a poll.
// Matching is by the parent order id stored at placement; children reference
// it through their parentId. Simulated trades are never reconciled.
type FillMonitor struct {
	trades   model.TradesModel
	gateway  LiveOrderReader
	interval time.Duration
	nowFn    func() time.Time
}

// MonitorOption customises the monitor.
type MonitorOption func(*FillMonitor)

// WithMonitorInterval overrides the poll cadence.
func WithMonitorInterval(interval time.Duration) MonitorOption {
	return func(m *FillMonitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithMonitorNow overrides the time source (testing).
func WithMonitorNow(nowFn func() time.Time) MonitorOption {
	return func(m *FillMonitor) {
		if nowFn != nil {
			m.nowFn = nowFn
		}
	}
}

// NewFillMonitor constructs the monitor.
func NewFillMonitor(trades model.TradesModel, gateway LiveOrderReader, opts ...MonitorOption) *FillMonitor {
	m := &FillMonitor{
		trades:   trades,
		gateway:  gateway,
		interval: defaultMonitorInterval,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until the context is cancelled. Intended for its own goroutine.
func (m *FillMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.Info("fill monitor: stopped")
			return
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				logx.WithContext(ctx).Errorf("fill monitor: reconcile: %v", err)
			}
		}
	}
}

// Reconcile closes trades whose bracket children have resolved.
func (m *FillMonitor) Reconcile(ctx context.Context) error {
	open, err := m.trades.OpenTrades(ctx)
	if err != nil {
		return err
	}
	live := make([]model.Trades, 0, len(open))
	for _, t := range open {
		if !t.Simulated {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil
	}

	orders, err := m.gateway.LiveOrders(ctx)
	if err != nil {
		return err
	}

	for i := range live {
		m.reconcileTrade(ctx, &live[i], orders)
	}
	return nil
}

func (m *FillMonitor) reconcileTrade(ctx context.Context, trade *model.Trades, orders []broker.LiveOrder) {
	var parent *broker.LiveOrder
	var children []broker.LiveOrder
	for i := range orders {
		o := &orders[i]
		if strconv.FormatInt(o.OrderID, 10) == trade.OrderId {
			parent = o
			continue
		}
		if o.ParentID == trade.OrderId {
			children = append(children, *o)
		}
	}

	// A filled child resolves the bracket.
	for _, child := range children {
		if !strings.EqualFold(child.Status, "Filled") {
			continue
		}
		status := model.TradeStatusClosedSL
		reason := "stop loss filled"
		if child.OrderType == "LMT" {
			status = model.TradeStatusClosedTP
			reason = "take profit filled"
		}
		m.closeTrade(ctx, trade, status, child.AvgPrice, reason)
		return
	}

	// Parent still working or filled with live children: nothing to do yet.
	if parent != nil || len(children) > 0 {
		return
	}

	// No trace of the bracket at the broker.
	if m.expired(trade) {
		m.closeTrade(ctx, trade, model.TradeStatusClosedExpired, 0, "option expired worthless")
		return
	}
	m.closeTrade(ctx, trade, model.TradeStatusClosedManual, 0, "orders no longer at broker")
}

func (m *FillMonitor) closeTrade(ctx context.Context, trade *model.Trades, status string, exitPrice float64, reason string) {
	pnl := tradePnL(trade, exitPrice)
	if err := m.trades.Close(ctx, trade.Id, status, exitPrice, m.nowFn().UTC(), pnl, reason); err != nil {
		logx.WithContext(ctx).Errorf("fill monitor: close trade %s: %v", trade.Id, err)
		return
	}
	logx.WithContext(ctx).Infof("fill monitor: %s %s -> %s @ %.2f (pnl %.2f)",
		trade.Ticker, trade.Id, status, exitPrice, pnl)
}

// expired reports whether the current UTC calendar date is later than the
// option's expiry date (from the OCC symbol).
func (m *FillMonitor) expired(trade *model.Trades) bool {
	if len(trade.OccSymbol) < 12 {
		return false
	}
	expiry, err := time.ParseInLocation("060102", trade.OccSymbol[6:12], time.UTC)
	if err != nil {
		return false
	}
	today := m.nowFn().UTC().Truncate(24 * time.Hour)
	return expiry.Before(today)
}

// tradePnL computes realized PnL at 100 shares per contract.
func tradePnL(trade *model.Trades, exitPrice float64) float64 {
	perContract := exitPrice - trade.EntryPrice
	if strings.EqualFold(trade.Side, "SELL") {
		perContract = trade.EntryPrice - exitPrice
	}
	return perContract * float64(trade.Quantity) * 100
}
