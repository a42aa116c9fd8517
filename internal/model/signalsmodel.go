package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ SignalsModel = (*defaultSignalsModel)(nil)

// ErrNotFound aliases the sqlx sentinel so callers need not import sqlx.
var ErrNotFound = sqlx.ErrNotFound

// ResultEnvelope is the decision record appended to a signal after processing.
type ResultEnvelope struct {
	Act         string          `json:"act"` // execute | skip | schedule
	Reasoning   string          `json:"reasoning"`
	Decision    json.RawMessage `json:"decision"`
	TradeResult json.RawMessage `json:"trade_result,omitempty"`
	ModelUsed   string          `json:"model_used"`
	Timestamp   string          `json:"timestamp"`
	TraceID     string          `json:"trace_id,omitempty"`
}

// ScheduledReanalysis marks a signal that will re-enter the queue later.
type ScheduledReanalysis struct {
	DueAt        string `json:"due_at"`
	DelayMinutes int    `json:"delay_minutes"`
	Question     string `json:"question"`
}

// Signals mirrors one row of the signals table.
type Signals struct {
	Id                  int64          `db:"id"`
	ThreadId            string         `db:"thread_id"`
	ThreadName          string         `db:"thread_name"`
	ForumName           sql.NullString `db:"forum_name"`
	Messages            []byte         `db:"messages"` // jsonb array of SignalMessage
	CreatedAt           sql.NullTime   `db:"created_at"`
	AiProcessed         bool           `db:"ai_processed"`
	AiProcessedAt       sql.NullTime   `db:"ai_processed_at"`
	AiResult            []byte         `db:"ai_result"`
	ScheduledReanalysis []byte         `db:"scheduled_reanalysis"`
	TraceId             sql.NullString `db:"trace_id"`
}

type (
	// SignalsModel reads and updates signal records. Signals are created by
	// the upstream collector; this process only appends decision results.
	SignalsModel interface {
		FindOneByThreadId(ctx context.Context, threadID string) (*Signals, error)
		SaveResult(ctx context.Context, threadID string, envelope *ResultEnvelope, scheduled *ScheduledReanalysis) error
	}

	defaultSignalsModel struct {
		conn sqlx.SqlConn
	}
)

// NewSignalsModel returns a model for the signals table.
func NewSignalsModel(conn sqlx.SqlConn) SignalsModel {
	return &defaultSignalsModel{conn: conn}
}

func (m *defaultSignalsModel) FindOneByThreadId(ctx context.Context, threadID string) (*Signals, error) {
	const query = `
SELECT id, thread_id, thread_name, forum_name, messages, created_at,
       ai_processed, ai_processed_at, ai_result, scheduled_reanalysis, trace_id
FROM public.signals
WHERE thread_id = $1
LIMIT 1`

	var row Signals
	err := m.conn.QueryRowCtx(ctx, &row, query, threadID)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("signals.FindOneByThreadId query: %w", err)
	}
}

// SaveResult writes the decision envelope onto the signal row. The update is
// keyed by thread_id, so replaying the same envelope leaves the row unchanged.
func (m *defaultSignalsModel) SaveResult(ctx context.Context, threadID string, envelope *ResultEnvelope, scheduled *ScheduledReanalysis) error {
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("signals.SaveResult marshal envelope: %w", err)
	}

	var scheduledJSON []byte
	if scheduled != nil {
		scheduledJSON, err = json.Marshal(scheduled)
		if err != nil {
			return fmt.Errorf("signals.SaveResult marshal scheduled: %w", err)
		}
	}

	var traceID sql.NullString
	if envelope.TraceID != "" {
		traceID = sql.NullString{String: envelope.TraceID, Valid: true}
	}

	const query = `
UPDATE public.signals
SET ai_processed = TRUE,
    ai_processed_at = $2,
    ai_result = $3,
    scheduled_reanalysis = $4,
    trace_id = $5
WHERE thread_id = $1`

	// ai_processed_at comes from the envelope so a replay writes the same value.
	processedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, envelope.Timestamp); err == nil {
		processedAt = ts.UTC()
	}

	result, err := m.conn.ExecCtx(ctx, query, threadID, processedAt, envelopeJSON, scheduledJSON, traceID)
	if err != nil {
		return fmt.Errorf("signals.SaveResult exec: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("signals.SaveResult rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ParseSignal converts a row into the domain Signal, decoding the message
// payload and deriving the best-effort parsed fields.
func ParseSignal(row *Signals) (*Signal, error) {
	if row == nil {
		return nil, fmt.Errorf("model: nil signal row")
	}

	var messages []SignalMessage
	if len(row.Messages) > 0 {
		if err := json.Unmarshal(row.Messages, &messages); err != nil {
			return nil, fmt.Errorf("model: decode signal messages: %w", err)
		}
	}

	sig := &Signal{
		ThreadID:   row.ThreadId,
		ThreadName: row.ThreadName,
		ForumName:  row.ForumName.String,
		Messages:   messages,
	}
	if row.CreatedAt.Valid {
		sig.CreatedAt = row.CreatedAt.Time.UTC().Format(time.RFC3339)
	}
	sig.ParseContent()
	return sig, nil
}
