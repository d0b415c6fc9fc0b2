// Package oracle provides the fallback parser used when no header line in a
// block matches. Every implementation degrades to an empty result instead of
// returning an error.
package oracle

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/pkg/anthropic"
)

// Oracle parses a raw block into the structured result shape.
type Oracle interface {
	Parse(ctx context.Context, text string) model.ParseResult
}

// Noop always returns an empty, zero-confidence result.
type Noop struct{}

// Parse returns an empty result preserving text.
func (Noop) Parse(_ context.Context, text string) model.ParseResult {
	return model.EmptyResult(text)
}

// New selects the hosted oracle when an API key is configured and the no-op
// oracle otherwise. client may be nil, in which case an SDK client is built
// from the key.
func New(cfg config.AnthropicConfig, client anthropic.Client) Oracle {
	if cfg.Key == "" {
		zap.L().Info("oracle: no anthropic key configured, using no-op fallback")
		return Noop{}
	}
	if client == nil {
		client = anthropic.NewClient(cfg.Key)
	}
	return NewHosted(client, cfg)
}
