package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gardener-chat-be/pkg/store"
)

// Responder turns a prompt into reply text, bounding every call with a timeout.
// All failures, including the deadline, are reported as store.ErrAIGeneration.
type Responder struct {
	provider LLMProvider
	timeout  time.Duration
	options  []Option
}

func NewResponder(provider LLMProvider, timeout time.Duration, opts ...Option) *Responder {
	return &Responder{provider: provider, timeout: timeout, options: opts}
}

func (r *Responder) Generate(ctx context.Context, prompt string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.provider.Generate(ctx, prompt, r.options...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrAIGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", store.ErrAIGeneration)
	}
	return text, nil
}
