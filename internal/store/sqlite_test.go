package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedStaff(t *testing.T, st *SQLiteStore) map[string]model.Staff {
	t.Helper()
	_, err := st.UpsertStaff(context.Background(), []model.Staff{
		{Code: "Staff-01", Name: "Jane Doe", Aliases: []string{"Jane", "+44 7700 900123"}},
		{Code: "Staff-02", Name: "Tom Lee", Aliases: []string{"Tommy"}},
	})
	require.NoError(t, err)
	list, err := st.ListStaff(context.Background())
	require.NoError(t, err)
	out := make(map[string]model.Staff, len(list))
	for _, s := range list {
		out[s.Code] = s
	}
	return out
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_UpsertAndListStaff(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	staff := seedStaff(t, st)

	require.Len(t, staff, 2)
	jane := staff["Staff-01"]
	assert.Equal(t, "Jane Doe", jane.Name)
	assert.Equal(t, []string{"Jane", "+44 7700 900123"}, jane.Aliases)
	assert.True(t, jane.Active)

	// Re-importing by code updates in place.
	_, err := st.UpsertStaff(ctx, []model.Staff{{Code: "Staff-01", Name: "Jane Smith", Email: "jane@example.com"}})
	require.NoError(t, err)
	list, err := st.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Jane Smith", list[0].Name)
	assert.Equal(t, jane.ID, list[0].ID)
	assert.Equal(t, "jane@example.com", list[0].Email)
}

func TestSQLite_FindStaff(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	staff := seedStaff(t, st)

	err := st.InTx(ctx, func(tx Tx) error {
		got, err := tx.FindStaffByCode(ctx, "Staff-02")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, staff["Staff-02"].ID, got.ID)

		got, err = tx.FindStaffByCode(ctx, "staff-02")
		require.NoError(t, err)
		assert.Nil(t, got, "code match is exact")

		got, err = tx.FindStaffByAlias(ctx, "+44 7700 900123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Staff-01", got.Code)

		got, err = tx.FindStaffByAlias(ctx, "Tom")
		require.NoError(t, err)
		require.NotNil(t, got, "substring of an alias matches")
		assert.Equal(t, "Staff-02", got.Code)

		got, err = tx.FindStaffByAlias(ctx, "Nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLite_ActivityLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	staffID := seedStaff(t, st)["Staff-01"].ID
	date := model.Date{Year: 2025, Month: time.October, Day: 12}
	planned := "Follow up client A"

	var id string
	err := st.InTx(ctx, func(tx Tx) error {
		rec := &model.ActivityRecord{
			StaffID:           &staffID,
			ActivityDate:      &date,
			SourceSenderRaw:   model.StringPtr("Staff-01"),
			Description:       planned,
			PlannedActivities: &planned,
			RawText:           &planned,
			Confidence:        0.9,
		}
		if err := tx.CreateActivity(ctx, rec); err != nil {
			return err
		}
		id = rec.ID
		return nil
	})
	require.NoError(t, err)

	err = st.InTx(ctx, func(tx Tx) error {
		rec, err := tx.FindActivity(ctx, staffID, date)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, id, rec.ID)
		rec.Description += "\nattend meeting"
		rec.Confidence = 0.95
		return tx.UpdateActivity(ctx, rec)
	})
	require.NoError(t, err)

	got, err := st.GetActivity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Follow up client A\nattend meeting", got.Description)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.Equal(t, "2025-10-12", got.ActivityDate.String())
	assert.Equal(t, planned, model.Deref(got.PlannedActivities))
	assert.Nil(t, got.ExecutedActivities)
	assert.Equal(t, model.ActivityStatusParsed, got.Status)
	assert.NotNil(t, got.UpdatedAt)

	_, err = st.GetActivity(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UniqueStaffDate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	staffID := seedStaff(t, st)["Staff-01"].ID
	date := model.Date{Year: 2025, Month: time.October, Day: 12}

	create := func() error {
		return st.InTx(ctx, func(tx Tx) error {
			return tx.CreateActivity(ctx, &model.ActivityRecord{StaffID: &staffID, ActivityDate: &date, Description: "x"})
		})
	}
	require.NoError(t, create())
	assert.ErrorIs(t, create(), ErrConflict)

	// Unattributed or undated records never collide.
	for i := 0; i < 2; i++ {
		err := st.InTx(ctx, func(tx Tx) error {
			return tx.CreateActivity(ctx, &model.ActivityRecord{ActivityDate: &date, Description: "y"})
		})
		require.NoError(t, err)
	}
	recs, err := st.ListActivities(ctx, ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestSQLite_InTxRollback(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.CreateActivity(ctx, &model.ActivityRecord{Description: "gone"}))
		require.NoError(t, tx.AppendParseLog(ctx, &model.ParseLog{RawBlock: "b", Status: model.ParseLogProcessed}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	recs, err := st.ListActivities(ctx, ActivityFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	logs, err := st.ListParseLogs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSQLite_ListActivitiesFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	staff := seedStaff(t, st)
	jane, tom := staff["Staff-01"].ID, staff["Staff-02"].ID

	add := func(staffID *string, day int) {
		var d *model.Date
		if day > 0 {
			d = &model.Date{Year: 2025, Month: time.October, Day: day}
		}
		require.NoError(t, st.InTx(ctx, func(tx Tx) error {
			return tx.CreateActivity(ctx, &model.ActivityRecord{StaffID: staffID, ActivityDate: d, Description: "x"})
		}))
	}
	add(&jane, 10)
	add(&jane, 12)
	add(&tom, 11)
	add(nil, 0)

	all, err := st.ListActivities(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 12, all[0].ActivityDate.Day)
	assert.Nil(t, all[3].ActivityDate, "undated records sort last")

	from := model.Date{Year: 2025, Month: time.October, Day: 11}
	got, err := st.ListActivities(ctx, ActivityFilter{DateFrom: &from})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.ListActivities(ctx, ActivityFilter{StaffID: jane, DateTo: &from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].ActivityDate.Day)

	got, err = st.ListActivities(ctx, ActivityFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.ListActivities(ctx, ActivityFilter{Status: "archived"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_ParseLogs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendParseLog(ctx, &model.ParseLog{RawBlock: "first", ParsedResult: `{}`, Status: model.ParseLogPending}))
	require.NoError(t, st.AppendParseLog(ctx, &model.ParseLog{RawBlock: "second", Status: model.ParseLogProcessed}))

	logs, err := st.ListParseLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].RawBlock)
	assert.Equal(t, model.ParserVersion, logs[0].ParserVersion)
	assert.Equal(t, `{}`, logs[1].ParsedResult)
}
