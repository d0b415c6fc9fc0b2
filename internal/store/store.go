// Package store persists staff, activity records and the parse audit log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/model"
)

var (
	// ErrConflict is returned when a write loses a race on the
	// (staff_id, activity_date) unique key. The caller may retry.
	ErrConflict = eris.New("store: activity already exists for staff and date")

	// ErrNotFound is returned by lookups of a single row by ID.
	ErrNotFound = eris.New("store: not found")
)

// ActivityFilter specifies criteria for listing activity records.
type ActivityFilter struct {
	StaffID  string      `json:"staff_id,omitempty"`
	DateFrom *model.Date `json:"date_from,omitempty"`
	DateTo   *model.Date `json:"date_to,omitempty"`
	Status   string      `json:"status,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Offset   int         `json:"offset,omitempty"`
}

// Store defines the persistence interface for the activity pipeline.
type Store interface {
	// InTx runs fn in a transaction, committing if fn returns nil. Unique
	// violations on commit are reported as ErrConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Activities
	ListActivities(ctx context.Context, filter ActivityFilter) ([]model.ActivityRecord, error)
	GetActivity(ctx context.Context, id string) (*model.ActivityRecord, error)

	// Audit log
	AppendParseLog(ctx context.Context, entry *model.ParseLog) error
	ListParseLogs(ctx context.Context, limit int) ([]model.ParseLog, error)

	// Staff
	UpsertStaff(ctx context.Context, staff []model.Staff) (int64, error)
	ListStaff(ctx context.Context) ([]model.Staff, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional view the merge engine works through.
type Tx interface {
	// FindStaffByCode returns the active staff member with exactly this
	// code, or nil.
	FindStaffByCode(ctx context.Context, code string) (*model.Staff, error)
	// FindStaffByAlias returns the first active staff member whose alias
	// list contains sender as a substring, or nil.
	FindStaffByAlias(ctx context.Context, sender string) (*model.Staff, error)
	// FindActivity returns the record for the (staff, date) pair, or nil.
	FindActivity(ctx context.Context, staffID string, date model.Date) (*model.ActivityRecord, error)
	CreateActivity(ctx context.Context, rec *model.ActivityRecord) error
	UpdateActivity(ctx context.Context, rec *model.ActivityRecord) error
	AppendParseLog(ctx context.Context, entry *model.ParseLog) error
}
