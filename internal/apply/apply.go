// Package apply exposes the preview and apply operations callers run on a
// raw chat block.
package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/events"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
)

// Parser turns a raw block into items. It never fails.
type Parser interface {
	Parse(ctx context.Context, block string) model.ParseResult
}

// Merger folds one item into the stored records.
type Merger interface {
	Merge(ctx context.Context, item model.ParsedItem, rawBlock string) (*model.ActivityRecord, error)
}

// Error reports a failed apply. Items before FailedIndex were committed and
// their record IDs are in Applied.
type Error struct {
	Applied     []string
	FailedIndex int
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("apply: item %d failed after %d applied: %v", e.FailedIndex, len(e.Applied), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Service runs preview and apply requests.
type Service struct {
	parser    Parser
	merger    Merger
	store     store.Store
	publisher events.Publisher
}

// NewService creates a Service. A nil publisher disables events.
func NewService(parser Parser, merger Merger, st store.Store, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		parser:    parser,
		merger:    merger,
		store:     st,
		publisher: publisher,
	}
}

// Preview parses block and records a pending audit entry. Activity records
// are never touched, and a failed audit write does not fail the preview.
func (s *Service) Preview(ctx context.Context, block string) model.ParseResult {
	res := s.parser.Parse(ctx, block)

	log := zap.L().With(zap.Int("items", len(res.ParsedItems)))
	snapshot, err := json.Marshal(res)
	if err != nil {
		log.Warn("apply: marshal preview snapshot", zap.Error(err))
		return res
	}
	if err := s.store.AppendParseLog(ctx, &model.ParseLog{
		RawBlock:     block,
		ParsedResult: string(snapshot),
		Status:       model.ParseLogPending,
	}); err != nil {
		log.Warn("apply: write preview audit entry", zap.Error(err))
	}
	return res
}

// Apply parses block and merges every item in order. It returns the record
// ID for each item, or an *Error naming the first item that failed.
func (s *Service) Apply(ctx context.Context, block string) ([]string, error) {
	res := s.parser.Parse(ctx, block)

	ids := make([]string, 0, len(res.ParsedItems))
	records := make([]model.ActivityRecord, 0, len(res.ParsedItems))
	for i, item := range res.ParsedItems {
		rec, err := s.merger.Merge(ctx, item, block)
		if err != nil {
			s.publish(ctx, records)
			return nil, &Error{Applied: ids, FailedIndex: i, Err: err}
		}
		ids = append(ids, rec.ID)
		records = append(records, *rec)
	}

	s.publish(ctx, records)
	zap.L().Info("apply: block merged",
		zap.Int("items", len(res.ParsedItems)),
		zap.Float64("overall_confidence", res.OverallConfidence),
	)
	return ids, nil
}

// publish emits events for committed records. Failures are logged only.
func (s *Service) publish(ctx context.Context, records []model.ActivityRecord) {
	if err := s.publisher.Publish(ctx, records); err != nil {
		zap.L().Warn("apply: publish merge events",
			zap.Int("records", len(records)),
			zap.Error(eris.Wrap(err, "apply: publish")),
		)
	}
}
