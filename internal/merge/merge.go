// Package merge reconciles parsed items with the stored per-staff, per-day
// activity records.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/metrics"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/resilience"
	"github.com/sells-group/activity-cli/internal/store"
)

// Engine merges parsed items into activity records.
type Engine struct {
	store store.Store
	locks *keyedMutex
	retry resilience.RetryConfig
}

// NewEngine creates a merge engine over st.
func NewEngine(st store.Store, cfg config.MergeConfig) *Engine {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	retry.ShouldRetry = func(err error) bool {
		return errors.Is(err, store.ErrConflict)
	}
	retry.OnRetry = func(attempt int, err error) {
		metrics.RecordMerge(metrics.MergeConflict)
		resilience.RetryLogger("merge")(attempt, err)
	}

	return &Engine{
		store: st,
		locks: newKeyedMutex(),
		retry: retry,
	}
}

// Merge finds or creates the record for the item's (staff, date) pair and
// appends the item to it. Everything, including the audit entry, is written
// in one transaction. A transaction that loses a race on the unique key is
// retried from the start.
func (e *Engine) Merge(ctx context.Context, item model.ParsedItem, rawBlock string) (*model.ActivityRecord, error) {
	if item.SourceSender != nil && item.ActivityDate != nil {
		unlock := e.locks.Lock(*item.SourceSender + "|" + item.ActivityDate.String())
		defer unlock()
	}

	snapshot, err := json.Marshal(item)
	if err != nil {
		return nil, eris.Wrap(err, "merge: marshal item snapshot")
	}

	var created bool
	rec, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*model.ActivityRecord, error) {
		var out *model.ActivityRecord
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			out, created, err = mergeTx(ctx, tx, item, rawBlock)
			if err != nil {
				return err
			}
			return tx.AppendParseLog(ctx, &model.ParseLog{
				RawBlock:     rawBlock,
				ParsedResult: string(snapshot),
				Status:       model.ParseLogProcessed,
			})
		})
		return out, err
	})
	if err != nil {
		metrics.RecordMerge(metrics.MergeError)
		zap.L().Error("merge: failed",
			zap.String("item_id", item.ItemID),
			zap.String("sender", item.Sender()),
			zap.Error(err),
		)
		return nil, eris.Wrapf(err, "merge: item %s", item.ItemID)
	}

	outcome := metrics.MergeAppended
	if created {
		outcome = metrics.MergeCreated
	}
	metrics.RecordMerge(outcome)
	zap.L().Debug("merge: applied",
		zap.String("record_id", rec.ID),
		zap.String("outcome", outcome),
	)
	return rec, nil
}

func mergeTx(ctx context.Context, tx store.Tx, item model.ParsedItem, rawBlock string) (*model.ActivityRecord, bool, error) {
	staff, err := resolveStaff(ctx, tx, item.Sender())
	if err != nil {
		return nil, false, err
	}
	plan := IsPlan(rawBlock)

	var existing *model.ActivityRecord
	if staff != nil && item.ActivityDate != nil {
		existing, err = tx.FindActivity(ctx, staff.ID, *item.ActivityDate)
		if err != nil {
			return nil, false, err
		}
	}

	if existing != nil {
		appendItem(existing, item, rawBlock, plan)
		if err := tx.UpdateActivity(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	rec := newRecord(item, rawBlock, plan)
	if staff != nil {
		rec.StaffID = &staff.ID
	}
	if err := tx.CreateActivity(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// resolveStaff matches sender against staff codes, then aliases. No match
// is not an error.
func resolveStaff(ctx context.Context, tx store.Tx, sender string) (*model.Staff, error) {
	if sender == "" {
		return nil, nil
	}
	staff, err := tx.FindStaffByCode(ctx, sender)
	if err != nil || staff != nil {
		return staff, err
	}
	return tx.FindStaffByAlias(ctx, sender)
}

func appendItem(rec *model.ActivityRecord, item model.ParsedItem, rawBlock string, plan bool) {
	rec.Description = AppendUnique(rec.Description, item.Description)
	if plan {
		rec.PlannedActivities = model.StringPtr(AppendUnique(model.Deref(rec.PlannedActivities), item.Description))
	} else {
		rec.ExecutedActivities = model.StringPtr(AppendUnique(model.Deref(rec.ExecutedActivities), item.Description))
	}
	rec.RawText = model.StringPtr(AppendRaw(model.Deref(rec.RawText), rawChunk(item, rawBlock)))
	rec.Confidence = max(rec.Confidence, item.Confidence)
	rec.Status = model.ActivityStatusParsed
}

func newRecord(item model.ParsedItem, rawBlock string, plan bool) *model.ActivityRecord {
	rec := &model.ActivityRecord{
		ActivityDate:    item.ActivityDate,
		SourceSenderRaw: item.SourceSender,
		Description:     item.Description,
		RawText:         model.StringPtr(rawChunk(item, rawBlock)),
		Confidence:      item.Confidence,
		Status:          model.ActivityStatusParsed,
	}
	if plan {
		rec.PlannedActivities = model.StringPtr(item.Description)
	} else {
		rec.ExecutedActivities = model.StringPtr(item.Description)
	}
	return rec
}

// rawChunk is the provenance text recorded for one item.
func rawChunk(item model.ParsedItem, rawBlock string) string {
	if item.Description != "" {
		return item.Description
	}
	return rawBlock
}
