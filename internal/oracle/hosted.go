package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/metrics"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/resilience"
	"github.com/sells-group/activity-cli/pkg/anthropic"
)

const systemPrompt = `You are a JSON-only parser for WhatsApp activity messages.
Parse the message block you are given and extract structured data.
Return ONLY valid JSON (no explanation, no extra keys) matching this exact schema:
{
  "source_block": "<original text>",
  "parsed_items": [
    {
      "item_id": "<string>",
      "source_sender": "<string or null>",
      "source_timestamp": "<RFC3339 datetime or null>",
      "activity_date": "<YYYY-MM-DD or null>",
      "start_time": "<HH:MM or null>",
      "end_time": "<HH:MM or null>",
      "description": "<string>",
      "is_client_activity": true or false,
      "client_candidates": [
        {"client_name": "<string>", "client_match_score": <0.0-1.0>}
      ],
      "deal_candidates": [
        {"deal_name": "<string>", "deal_match_score": <0.0-1.0>}
      ],
      "parsing_notes": "<string or null>",
      "confidence": <0.0-1.0>
    }
  ],
  "overall_confidence": <0.0-1.0>
}`

// Hosted asks a hosted model to parse the block. It makes one attempt per
// call; any failure yields the no-op result.
type Hosted struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
}

// NewHosted creates a hosted oracle from cfg.
func NewHosted(client anthropic.Client, cfg config.AnthropicConfig) *Hosted {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}

	return &Hosted{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
		limiter:   rate.NewLimiter(limit, 1),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			ResetTimeout:     time.Duration(cfg.BreakerResetSecs) * time.Second,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("oracle: circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

// Parse implements Oracle.
func (h *Hosted) Parse(ctx context.Context, text string) model.ParseResult {
	log := zap.L().With(zap.String("component", "oracle"), zap.String("model", h.model))

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	reply, err := resilience.ExecuteVal(ctx, h.breaker, func(ctx context.Context) (string, error) {
		return h.call(ctx, text)
	})
	if err != nil {
		outcome := metrics.OracleError
		if eris.Is(err, resilience.ErrCircuitOpen) || resilience.IsTransient(err) {
			outcome = metrics.OracleUnavailable
		}
		metrics.RecordOracle(outcome)
		log.Warn("oracle: call failed, using empty result",
			zap.String("outcome", outcome),
			zap.String("breaker", h.breaker.State().String()),
			zap.Error(err),
		)
		return model.EmptyResult(text)
	}

	res, err := decodeResult(reply)
	if err != nil {
		metrics.RecordOracle(metrics.OracleMalformed)
		log.Warn("oracle: malformed reply, using empty result", zap.Error(err))
		return model.EmptyResult(text)
	}

	metrics.RecordOracle(metrics.OracleOK)
	res.SourceBlock = text
	return res
}

func (h *Hosted) call(ctx context.Context, text string) (string, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "oracle: rate limit wait")
	}

	resp, err := h.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     h.model,
		MaxTokens: h.maxTokens,
		System:    anthropic.CachedSystem(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Input message:\n" + text + "\n\nReturn JSON only:"},
		},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(h.model, "oracle")
	return resp.Text(), nil
}

// decodeResult parses a reply strictly: unknown keys, trailing data or an
// invalid item reject the whole reply. The overall confidence is recomputed
// as the maximum item confidence.
func decodeResult(reply string) (model.ParseResult, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFences(reply))))
	dec.DisallowUnknownFields()

	var res model.ParseResult
	if err := dec.Decode(&res); err != nil {
		return model.ParseResult{}, eris.Wrap(err, "oracle: decode reply")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.ParseResult{}, eris.New("oracle: trailing data after reply")
	}
	if res.ParsedItems == nil {
		return model.ParseResult{}, eris.New("oracle: reply has no parsed_items")
	}
	if !inUnitRange(res.OverallConfidence) {
		return model.ParseResult{}, eris.Errorf("oracle: overall_confidence %v out of range", res.OverallConfidence)
	}

	res.OverallConfidence = 0
	for i := range res.ParsedItems {
		it := &res.ParsedItems[i]
		if err := validateItem(*it); err != nil {
			return model.ParseResult{}, eris.Wrapf(err, "oracle: item %d", i)
		}
		it.Normalize()
		res.OverallConfidence = max(res.OverallConfidence, it.Confidence)
	}
	return res, nil
}

func validateItem(it model.ParsedItem) error {
	if strings.TrimSpace(it.ItemID) == "" {
		return eris.New("empty item_id")
	}
	if !inUnitRange(it.Confidence) {
		return eris.Errorf("confidence %v out of range", it.Confidence)
	}
	for _, c := range it.ClientCandidates {
		if strings.TrimSpace(c.Name) == "" || !inUnitRange(c.MatchScore) {
			return eris.Errorf("invalid client candidate %q", c.Name)
		}
	}
	for _, d := range it.DealCandidates {
		if strings.TrimSpace(d.Name) == "" || !inUnitRange(d.MatchScore) {
			return eris.Errorf("invalid deal candidate %q", d.Name)
		}
	}
	return nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}

// stripFences removes a ``` or ```json fence around the reply.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
