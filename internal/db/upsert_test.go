package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var staffCfg = UpsertConfig{
	Table:        "staff",
	Columns:      []string{"id", "code", "name"},
	ConflictKeys: []string{"code"},
	UpdateCols:   []string{"name"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, staffCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "staff", ConflictKeys: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{Table: "staff", Columns: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{{"id-1", "S01", "Jane"}, {"id-2", "S02", "Tom"}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_staff"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_staff"}, []string{"id", "code", "name"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "staff"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, staffCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_staff"}, []string{"id", "code", "name"}).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, staffCfg, [][]any{{"id-1", "S01", "Jane"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for staff")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL(UpsertConfig{
		Table:        "public.staff",
		Columns:      []string{"id", "code", "name"},
		ConflictKeys: []string{"code"},
	}, "_tmp")
	assert.Equal(t,
		`INSERT INTO "public"."staff" ("id", "code", "name") SELECT "id", "code", "name" FROM "_tmp" ON CONFLICT ("code") DO UPDATE SET "id" = EXCLUDED."id", "name" = EXCLUDED."name"`,
		got)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"staff"`, sanitizeTable("staff"))
	assert.Equal(t, `"public"."staff"`, sanitizeTable("public.staff"))
}
