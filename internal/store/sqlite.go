package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/sells-group/activity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Writes go through a single connection so transactions never contend for
// the database lock.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS staff (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	whatsapp_aliases TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	active           INTEGER NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME
);

CREATE TABLE IF NOT EXISTS daily_activities (
	id                  TEXT PRIMARY KEY,
	staff_id            TEXT REFERENCES staff(id),
	activity_date       TEXT,
	source_sender_raw   TEXT,
	description         TEXT NOT NULL DEFAULT '',
	planned_activities  TEXT,
	executed_activities TEXT,
	raw_text            TEXT,
	confidence          REAL NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'parsed',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME,
	UNIQUE (staff_id, activity_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_activities_date ON daily_activities(activity_date);
CREATE INDEX IF NOT EXISTS idx_daily_activities_status ON daily_activities(status);

CREATE TABLE IF NOT EXISTS activity_parse_logs (
	id             TEXT PRIMARY KEY,
	raw_block      TEXT NOT NULL,
	parsed_result  TEXT,
	parser_version TEXT,
	status         TEXT NOT NULL,
	received_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return sqliteError(err, "sqlite: commit tx")
	}
	return nil
}

func sqliteError(err error, msg string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return eris.Wrap(ErrConflict, msg)
	}
	return eris.Wrap(err, msg)
}

type sqliteTx struct {
	q sqlQuerier
}

func (t *sqliteTx) FindStaffByCode(ctx context.Context, code string) (*model.Staff, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE code = ? AND active = 1`, code)
	st, err := scanSQLiteStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, eris.Wrapf(err, "sqlite: find staff by code %s", code)
}

func (t *sqliteTx) FindStaffByAlias(ctx context.Context, sender string) (*model.Staff, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE active = 1 AND instr(whatsapp_aliases, ?) > 0 ORDER BY code LIMIT 1`, sender)
	st, err := scanSQLiteStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, eris.Wrapf(err, "sqlite: find staff by alias %q", sender)
}

func (t *sqliteTx) FindActivity(ctx context.Context, staffID string, date model.Date) (*model.ActivityRecord, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM daily_activities WHERE staff_id = ? AND activity_date = ?`,
		staffID, date.String())
	rec, err := scanSQLiteActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, eris.Wrapf(err, "sqlite: find activity %s/%s", staffID, date)
}

func (t *sqliteTx) CreateActivity(ctx context.Context, rec *model.ActivityRecord) error {
	prepareActivity(rec, time.Now().UTC())
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO daily_activities (id, staff_id, activity_date, source_sender_raw, description,
			planned_activities, executed_activities, raw_text, confidence, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StaffID, sqliteDate(rec.ActivityDate), rec.SourceSenderRaw, rec.Description,
		rec.PlannedActivities, rec.ExecutedActivities, rec.RawText, rec.Confidence, rec.Status,
		rec.CreatedAt, *rec.UpdatedAt,
	)
	if err != nil {
		return sqliteError(err, "sqlite: insert activity")
	}
	return nil
}

func (t *sqliteTx) UpdateActivity(ctx context.Context, rec *model.ActivityRecord) error {
	now := time.Now().UTC()
	res, err := t.q.ExecContext(ctx,
		`UPDATE daily_activities SET description = ?, planned_activities = ?, executed_activities = ?,
			raw_text = ?, confidence = ?, status = ?, updated_at = ? WHERE id = ?`,
		rec.Description, rec.PlannedActivities, rec.ExecutedActivities, rec.RawText,
		rec.Confidence, rec.Status, now, rec.ID,
	)
	if err != nil {
		return sqliteError(err, "sqlite: update activity "+rec.ID)
	}
	if err := checkRowsAffected(res, "activity", rec.ID); err != nil {
		return err
	}
	rec.UpdatedAt = &now
	return nil
}

func (t *sqliteTx) AppendParseLog(ctx context.Context, entry *model.ParseLog) error {
	return insertSQLiteParseLog(ctx, t.q, entry)
}

func (s *SQLiteStore) AppendParseLog(ctx context.Context, entry *model.ParseLog) error {
	return insertSQLiteParseLog(ctx, s.db, entry)
}

func insertSQLiteParseLog(ctx context.Context, q sqlQuerier, entry *model.ParseLog) error {
	prepareParseLog(entry, time.Now().UTC())
	_, err := q.ExecContext(ctx,
		`INSERT INTO activity_parse_logs (id, raw_block, parsed_result, parser_version, status, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RawBlock, entry.ParsedResult, entry.ParserVersion, entry.Status, entry.ReceivedAt,
	)
	return eris.Wrap(err, "sqlite: insert parse log")
}

func (s *SQLiteStore) ListParseLogs(ctx context.Context, limit int) ([]model.ParseLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, raw_block, COALESCE(parsed_result, ''), COALESCE(parser_version, ''), status, received_at
		FROM activity_parse_logs ORDER BY received_at DESC, rowid DESC LIMIT ?`, clampLimit(limit, 50, 1000))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parse logs")
	}
	defer rows.Close() //nolint:errcheck

	var logs []model.ParseLog
	for rows.Next() {
		var l model.ParseLog
		if err := rows.Scan(&l.ID, &l.RawBlock, &l.ParsedResult, &l.ParserVersion, &l.Status, &l.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parse log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: iterate parse logs")
}

func (s *SQLiteStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]model.ActivityRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.StaffID != "" {
		where = append(where, "staff_id = ?")
		args = append(args, filter.StaffID)
	}
	if filter.DateFrom != nil {
		where = append(where, "activity_date >= ?")
		args = append(args, filter.DateFrom.String())
	}
	if filter.DateTo != nil {
		where = append(where, "activity_date <= ?")
		args = append(args, filter.DateTo.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + activityColumns + ` FROM daily_activities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY activity_date IS NULL, activity_date DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, clampLimit(filter.Limit, 100, 10000), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ActivityRecord
	for rows.Next() {
		rec, err := scanSQLiteActivity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate activities")
}

func (s *SQLiteStore) GetActivity(ctx context.Context, id string) (*model.ActivityRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM daily_activities WHERE id = ?`, id)
	rec, err := scanSQLiteActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get activity %s", id)
	}
	return rec, eris.Wrapf(err, "sqlite: get activity %s", id)
}

func (s *SQLiteStore) UpsertStaff(ctx context.Context, staff []model.Staff) (int64, error) {
	if len(staff) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin staff upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, st := range staff {
		id := st.ID
		if id == "" {
			id = uuid.New().String()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO staff (id, code, name, whatsapp_aliases, email, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT (code) DO UPDATE SET name = excluded.name, whatsapp_aliases = excluded.whatsapp_aliases,
				email = excluded.email, active = 1, updated_at = excluded.updated_at`,
			id, st.Code, st.Name, joinAliases(st.Aliases), st.Email, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert staff %s", st.Code)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit staff upsert")
	}
	return n, nil
}

func (s *SQLiteStore) ListStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list staff")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Staff
	for rows.Next() {
		st, err := scanSQLiteStaff(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan staff")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate staff")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteStaff(row scannable) (*model.Staff, error) {
	var (
		st        model.Staff
		aliases   string
		updatedAt sql.NullTime
	)
	if err := row.Scan(&st.ID, &st.Code, &st.Name, &aliases, &st.Email, &st.Active, &st.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	st.Aliases = splitAliases(aliases)
	if updatedAt.Valid {
		st.UpdatedAt = &updatedAt.Time
	}
	return &st, nil
}

func scanSQLiteActivity(row scannable) (*model.ActivityRecord, error) {
	var (
		rec       model.ActivityRecord
		date      sql.NullString
		updatedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.StaffID, &date, &rec.SourceSenderRaw, &rec.Description,
		&rec.PlannedActivities, &rec.ExecutedActivities, &rec.RawText, &rec.Confidence,
		&rec.Status, &rec.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if date.Valid {
		d, err := model.ParseDate(date.String)
		if err != nil {
			return nil, err
		}
		rec.ActivityDate = &d
	}
	if updatedAt.Valid {
		rec.UpdatedAt = &updatedAt.Time
	}
	return &rec, nil
}

func sqliteDate(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}
