package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PromptsModel = (*defaultPromptsModel)(nil)

// Prompt record types.
const (
	PromptTypeSystem       = "system_prompt"
	PromptTypeUserTemplate = "user_template"
)

// Prompts mirrors one row of the prompts table.
type Prompts struct {
	Id      int64  `db:"id"`
	Type    string `db:"type"`
	Content string `db:"content"`
	Active  bool   `db:"active"`
}

type (
	// PromptsModel reads the active prompt records edited by the dashboard.
	PromptsModel interface {
		FindActiveByType(ctx context.Context, promptType string) (*Prompts, error)
	}

	defaultPromptsModel struct {
		conn sqlx.SqlConn
	}
)

// NewPromptsModel returns a model for the prompts table.
func NewPromptsModel(conn sqlx.SqlConn) PromptsModel {
	return &defaultPromptsModel{conn: conn}
}

func (m *defaultPromptsModel) FindActiveByType(ctx context.Context, promptType string) (*Prompts, error) {
	const query = `
SELECT id, type, content, active
FROM public.prompts
WHERE type = $1 AND active = TRUE
ORDER BY id DESC
LIMIT 1`

	var row Prompts
	err := m.conn.QueryRowCtx(ctx, &row, query, promptType)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("prompts.FindActiveByType query: %w", err)
	}
}
