// Package prompt loads the system prompt and user template from the prompt
// store (dashboard-edited) and renders the user prompt for one task.
package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/model"
)

// Service resolves active prompts with embedded defaults as fallback.
type Service struct {
	prompts model.PromptsModel
}

// NewService constructs the prompt service. A nil model always serves the
// embedded defaults.
func NewService(prompts model.PromptsModel) *Service {
	return &Service{prompts: prompts}
}

// SystemPrompt returns the active system prompt, or the embedded default when
// the store has none. Store errors degrade to the default: a broken prompt
// store must not halt trading decisions.
func (s *Service) SystemPrompt(ctx context.Context) string {
	if s.prompts == nil {
		return defaultSystemPrompt
	}
	record, err := s.prompts.FindActiveByType(ctx, model.PromptTypeSystem)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logx.WithContext(ctx).Errorf("prompt: load system prompt, using default: %v", err)
		}
		return defaultSystemPrompt
	}
	return record.Content
}

// UserRenderer returns a renderer for the active user template. A template
// that fails to parse is an error; the caller maps it to a template-error
// skip for the current task.
func (s *Service) UserRenderer(ctx context.Context) (*Renderer, error) {
	text := defaultUserTemplate
	if s.prompts != nil {
		record, err := s.prompts.FindActiveByType(ctx, model.PromptTypeUserTemplate)
		switch {
		case err == nil:
			text = record.Content
		case errors.Is(err, model.ErrNotFound):
		default:
			logx.WithContext(ctx).Errorf("prompt: load user template, using default: %v", err)
		}
	}

	renderer, err := NewRenderer("user_template", text)
	if err != nil {
		return nil, fmt.Errorf("prompt: user template: %w", err)
	}
	return renderer, nil
}
