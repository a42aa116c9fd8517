package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ TradesModel = (*defaultTradesModel)(nil)

// Trade lifecycle statuses.
const (
	TradeStatusOpen          = "open"
	TradeStatusClosedTP      = "closed_tp"
	TradeStatusClosedSL      = "closed_sl"
	TradeStatusClosedManual  = "closed_manual"
	TradeStatusClosedExpired = "closed_expired"
)

// Trades mirrors one row of the trades table.
type Trades struct {
	Id         string          `db:"id"` // core-assigned UUID
	ThreadId   string          `db:"thread_id"`
	OrderId    string          `db:"order_id"` // broker parent order id, or sim-<uuid>
	OccSymbol  string          `db:"occ_symbol"`
	Conid      sql.NullString  `db:"conid"`
	Ticker     string          `db:"ticker"`
	Side       string          `db:"side"`
	Quantity   int64           `db:"quantity"`
	EntryPrice float64         `db:"entry_price"`
	TakeProfit float64         `db:"take_profit"`
	StopLoss   float64         `db:"stop_loss"`
	ModelId    sql.NullString  `db:"model_id"`
	Confidence sql.NullFloat64 `db:"confidence"`
	Status     string          `db:"status"`
	Simulated  bool            `db:"simulated"`
	EntryTime  time.Time       `db:"entry_time"`
	ExitTime   sql.NullTime    `db:"exit_time"`
	ExitPrice  sql.NullFloat64 `db:"exit_price"`
	ExitReason sql.NullString  `db:"exit_reason"`
	Pnl        sql.NullFloat64 `db:"pnl"`
	CreatedAt  sql.NullTime    `db:"created_at"`
}

type (
	// TradesModel persists executed trades and their lifecycle updates.
	TradesModel interface {
		Insert(ctx context.Context, trade *Trades) error
		FindOneByOrderId(ctx context.Context, orderID string) (*Trades, error)
		OpenTrades(ctx context.Context) ([]Trades, error)
		OpenByTicker(ctx context.Context, ticker string) ([]Trades, error)
		OpenByThreadId(ctx context.Context, threadID string) (*Trades, error)
		Close(ctx context.Context, id, status string, exitPrice float64, exitTime time.Time, pnl float64, exitReason string) error
	}

	defaultTradesModel struct {
		conn sqlx.SqlConn
	}
)

// NewTradesModel returns a model for the trades table.
func NewTradesModel(conn sqlx.SqlConn) TradesModel {
	return &defaultTradesModel{conn: conn}
}

const tradesColumns = `
    id, thread_id, order_id, occ_symbol, conid, ticker, side, quantity,
    entry_price, take_profit, stop_loss, model_id, confidence, status,
    simulated, entry_time, exit_time, exit_price, exit_reason, pnl, created_at`

func (m *defaultTradesModel) Insert(ctx context.Context, trade *Trades) error {
	const query = `
INSERT INTO public.trades (
    id, thread_id, order_id, occ_symbol, conid, ticker, side, quantity,
    entry_price, take_profit, stop_loss, model_id, confidence, status,
    simulated, entry_time
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := m.conn.ExecCtx(ctx, query,
		trade.Id, trade.ThreadId, trade.OrderId, trade.OccSymbol, trade.Conid,
		trade.Ticker, trade.Side, trade.Quantity, trade.EntryPrice,
		trade.TakeProfit, trade.StopLoss, trade.ModelId, trade.Confidence,
		trade.Status, trade.Simulated, trade.EntryTime,
	)
	if err != nil {
		return fmt.Errorf("trades.Insert exec: %w", err)
	}
	return nil
}

func (m *defaultTradesModel) FindOneByOrderId(ctx context.Context, orderID string) (*Trades, error) {
	query := `SELECT` + tradesColumns + `
FROM public.trades
WHERE order_id = $1
LIMIT 1`

	var row Trades
	err := m.conn.QueryRowCtx(ctx, &row, query, orderID)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("trades.FindOneByOrderId query: %w", err)
	}
}

func (m *defaultTradesModel) OpenTrades(ctx context.Context) ([]Trades, error) {
	query := `SELECT` + tradesColumns + `
FROM public.trades
WHERE status = $1
ORDER BY entry_time ASC`

	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, TradeStatusOpen); err != nil {
		return nil, fmt.Errorf("trades.OpenTrades query: %w", err)
	}
	return rows, nil
}

func (m *defaultTradesModel) OpenByTicker(ctx context.Context, ticker string) ([]Trades, error) {
	query := `SELECT` + tradesColumns + `
FROM public.trades
WHERE status = $1 AND ticker = $2
ORDER BY entry_time ASC`

	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, TradeStatusOpen, ticker); err != nil {
		return nil, fmt.Errorf("trades.OpenByTicker query: %w", err)
	}
	return rows, nil
}

// OpenByThreadId enforces the at-most-one-open-trade-per-thread invariant at
// read time; callers check before inserting.
func (m *defaultTradesModel) OpenByThreadId(ctx context.Context, threadID string) (*Trades, error) {
	query := `SELECT` + tradesColumns + `
FROM public.trades
WHERE status = $1 AND thread_id = $2
LIMIT 1`

	var row Trades
	err := m.conn.QueryRowCtx(ctx, &row, query, TradeStatusOpen, threadID)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("trades.OpenByThreadId query: %w", err)
	}
}

func (m *defaultTradesModel) Close(ctx context.Context, id, status string, exitPrice float64, exitTime time.Time, pnl float64, exitReason string) error {
	const query = `
UPDATE public.trades
SET status = $2, exit_price = $3, exit_time = $4, pnl = $5, exit_reason = $6
WHERE id = $1 AND status = $7`

	result, err := m.conn.ExecCtx(ctx, query, id, status, exitPrice, exitTime, pnl, exitReason, TradeStatusOpen)
	if err != nil {
		return fmt.Errorf("trades.Close exec: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("trades.Close rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
