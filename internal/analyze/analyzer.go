// Package analyze fans prompts out to an external text-generation
// collaborator over a bounded worker pool.
package analyze

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/time-capsule/internal/resilience"
	"github.com/sells-group/time-capsule/pkg/anthropic"
)

// Analyzer turns one prompt into free-form response text.
type Analyzer interface {
	Analyze(ctx context.Context, model, prompt string) (string, error)
}

// AnalyzerFunc adapts a plain function to Analyzer.
type AnalyzerFunc func(ctx context.Context, model, prompt string) (string, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Anthropic adapts an anthropic.Client to Analyzer.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropic wraps client. maxTokens caps each response.
func NewAnthropic(client anthropic.Client, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, maxTokens: maxTokens}
}

// Analyze sends prompt as a single user turn. Overload and rate-limit
// responses come back as transient errors so the dispatcher's breaker
// counts them. A truncated answer is still returned; it is logged.
func (a *Anthropic) Analyze(ctx context.Context, model, prompt string) (string, error) {
	c, err := a.client.Complete(ctx, anthropic.Request{
		Model:     model,
		MaxTokens: a.maxTokens,
		Prompt:    prompt,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
			return "", resilience.NewTransientError(err, code)
		}
		return "", eris.Wrap(err, "analyze: create message")
	}

	log := zap.L().With(zap.String("item_id", itemIDFromContext(ctx)))
	log.Info("analyze: usage", c.Usage.Fields(model)...)
	if c.Truncated() {
		log.Warn("analyze: response hit max_tokens", zap.Int64("max_tokens", a.maxTokens))
	}
	return c.Text, nil
}
