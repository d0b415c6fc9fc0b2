package parse

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/metrics"
	"github.com/sells-group/activity-cli/internal/model"
)

// Confidence assigned by the deterministic pass.
const (
	EnumeratedConfidence = 0.90
	SingleConfidence     = 0.85
)

// Fallback parses a block the deterministic pass could not handle. It must
// never fail: problems degrade to an empty result.
type Fallback interface {
	Parse(ctx context.Context, text string) model.ParseResult
}

// Parser runs the deterministic pass and delegates to the fallback when it
// finds nothing.
type Parser struct {
	fallback Fallback
}

// NewParser returns a Parser. A nil fallback yields empty results for blocks
// without recognizable headers.
func NewParser(fallback Fallback) *Parser {
	return &Parser{fallback: fallback}
}

// Parse extracts activity items from block.
func (p *Parser) Parse(ctx context.Context, block string) model.ParseResult {
	res := ParseDeterministic(block)
	if len(res.ParsedItems) > 0 {
		metrics.RecordParse(metrics.SourceDeterministic, len(res.ParsedItems))
		return res
	}

	if p.fallback == nil {
		metrics.RecordParse(metrics.SourceEmpty, 0)
		return res
	}

	zap.L().Debug("parse: no header lines matched, delegating to fallback",
		zap.Int("block_len", len(block)),
	)
	out := p.fallback.Parse(ctx, block)
	if len(out.ParsedItems) == 0 {
		metrics.RecordParse(metrics.SourceEmpty, 0)
	} else {
		metrics.RecordParse(metrics.SourceOracle, len(out.ParsedItems))
	}
	return out
}

// ParseDeterministic runs only the pattern-based pass over block.
func ParseDeterministic(block string) model.ParseResult {
	res := model.EmptyResult(block)

	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		h, ok := MatchHeader(line)
		if !ok {
			continue
		}

		var date *model.Date
		if d, ok := NormalizeDate(h.Date); ok {
			date = &d
		}

		items, ok := SplitItems(h.Message)
		confidence := EnumeratedConfidence
		if !ok {
			items = []Item{{Label: DefaultItemLabel, Text: h.Message}}
			confidence = SingleConfidence
		}

		for _, it := range items {
			res.ParsedItems = append(res.ParsedItems, newItem(h.Sender, date, it, confidence))
			res.OverallConfidence = max(res.OverallConfidence, confidence)
		}
	}

	return res
}

func newItem(sender string, date *model.Date, it Item, confidence float64) model.ParsedItem {
	item := model.ParsedItem{
		ItemID:           it.Label,
		SourceSender:     model.StringPtr(sender),
		Description:      it.Text,
		ClientCandidates: ExtractMentions(it.Text),
		DealCandidates:   []model.DealCandidate{},
		ParsingNotes:     model.StringPtr(model.ParsingNotesDeterministic),
		Confidence:       confidence,
	}
	if date != nil {
		d := *date
		item.ActivityDate = &d
	}
	item.Normalize()
	return item
}
