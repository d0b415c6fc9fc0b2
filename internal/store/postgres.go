package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/db"
	"github.com/sells-group/activity-cli/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS staff (
	id               TEXT PRIMARY KEY,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	whatsapp_aliases TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS daily_activities (
	id                  TEXT PRIMARY KEY,
	staff_id            TEXT REFERENCES staff(id),
	activity_date       DATE,
	source_sender_raw   TEXT,
	description         TEXT NOT NULL DEFAULT '',
	planned_activities  TEXT,
	executed_activities TEXT,
	raw_text            TEXT,
	confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'parsed',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ,
	UNIQUE (staff_id, activity_date)
);

CREATE INDEX IF NOT EXISTS idx_daily_activities_date ON daily_activities(activity_date);
CREATE INDEX IF NOT EXISTS idx_daily_activities_status ON daily_activities(status);

CREATE TABLE IF NOT EXISTS activity_parse_logs (
	id             TEXT PRIMARY KEY,
	raw_block      TEXT NOT NULL,
	parsed_result  JSONB,
	parser_version TEXT,
	status         TEXT NOT NULL,
	received_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_parse_logs_received ON activity_parse_logs(received_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pgError(err, "postgres: commit tx")
	}
	return nil
}

// pgError maps unique violations to ErrConflict and wraps everything else.
func pgError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return eris.Wrap(ErrConflict, msg)
	}
	return eris.Wrap(err, msg)
}

type pgTx struct {
	q querier
}

const staffColumns = `id, code, name, whatsapp_aliases, email, active, created_at, updated_at`

func (t *pgTx) FindStaffByCode(ctx context.Context, code string) (*model.Staff, error) {
	row := t.q.QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE code = $1 AND active`, code)
	st, err := scanPgStaff(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return st, eris.Wrapf(err, "postgres: find staff by code %s", code)
}

func (t *pgTx) FindStaffByAlias(ctx context.Context, sender string) (*model.Staff, error) {
	row := t.q.QueryRow(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE active AND strpos(whatsapp_aliases, $1) > 0 ORDER BY code LIMIT 1`, sender)
	st, err := scanPgStaff(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return st, eris.Wrapf(err, "postgres: find staff by alias %q", sender)
}

const activityColumns = `id, staff_id, activity_date, source_sender_raw, description, planned_activities,
	executed_activities, raw_text, confidence, status, created_at, updated_at`

func (t *pgTx) FindActivity(ctx context.Context, staffID string, date model.Date) (*model.ActivityRecord, error) {
	row := t.q.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM daily_activities WHERE staff_id = $1 AND activity_date = $2 FOR UPDATE`,
		staffID, date.Time())
	rec, err := scanPgActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, eris.Wrapf(err, "postgres: find activity %s/%s", staffID, date)
}

func (t *pgTx) CreateActivity(ctx context.Context, rec *model.ActivityRecord) error {
	prepareActivity(rec, time.Now().UTC())
	_, err := t.q.Exec(ctx,
		`INSERT INTO daily_activities (id, staff_id, activity_date, source_sender_raw, description,
			planned_activities, executed_activities, raw_text, confidence, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.StaffID, pgDate(rec.ActivityDate), rec.SourceSenderRaw, rec.Description,
		rec.PlannedActivities, rec.ExecutedActivities, rec.RawText, rec.Confidence, rec.Status,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return pgError(err, "postgres: insert activity")
	}
	return nil
}

func (t *pgTx) UpdateActivity(ctx context.Context, rec *model.ActivityRecord) error {
	now := time.Now().UTC()
	tag, err := t.q.Exec(ctx,
		`UPDATE daily_activities SET description = $1, planned_activities = $2, executed_activities = $3,
			raw_text = $4, confidence = $5, status = $6, updated_at = $7 WHERE id = $8`,
		rec.Description, rec.PlannedActivities, rec.ExecutedActivities, rec.RawText,
		rec.Confidence, rec.Status, now, rec.ID,
	)
	if err != nil {
		return pgError(err, "postgres: update activity "+rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update activity %s", rec.ID)
	}
	rec.UpdatedAt = &now
	return nil
}

func (t *pgTx) AppendParseLog(ctx context.Context, entry *model.ParseLog) error {
	return insertPgParseLog(ctx, t.q, entry)
}

func (s *PostgresStore) AppendParseLog(ctx context.Context, entry *model.ParseLog) error {
	return insertPgParseLog(ctx, s.pool, entry)
}

func insertPgParseLog(ctx context.Context, q querier, entry *model.ParseLog) error {
	prepareParseLog(entry, time.Now().UTC())
	var result any
	if entry.ParsedResult != "" {
		result = entry.ParsedResult
	}
	_, err := q.Exec(ctx,
		`INSERT INTO activity_parse_logs (id, raw_block, parsed_result, parser_version, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.RawBlock, result, entry.ParserVersion, entry.Status, entry.ReceivedAt,
	)
	return eris.Wrap(err, "postgres: insert parse log")
}

func (s *PostgresStore) ListParseLogs(ctx context.Context, limit int) ([]model.ParseLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, raw_block, COALESCE(parsed_result::text, ''), COALESCE(parser_version, ''), status, received_at
		FROM activity_parse_logs ORDER BY received_at DESC LIMIT $1`, clampLimit(limit, 50, 1000))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parse logs")
	}
	defer rows.Close()

	var logs []model.ParseLog
	for rows.Next() {
		var l model.ParseLog
		if err := rows.Scan(&l.ID, &l.RawBlock, &l.ParsedResult, &l.ParserVersion, &l.Status, &l.ReceivedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parse log")
		}
		logs = append(logs, l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: iterate parse logs")
}

func (s *PostgresStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]model.ActivityRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.StaffID != "" {
		add("staff_id = $%d", filter.StaffID)
	}
	if filter.DateFrom != nil {
		add("activity_date >= $%d", filter.DateFrom.Time())
	}
	if filter.DateTo != nil {
		add("activity_date <= $%d", filter.DateTo.Time())
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	query := `SELECT ` + activityColumns + ` FROM daily_activities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(filter.Limit, 100, 10000), max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY activity_date DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activities")
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		rec, err := scanPgActivity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate activities")
}

func (s *PostgresStore) GetActivity(ctx context.Context, id string) (*model.ActivityRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM daily_activities WHERE id = $1`, id)
	rec, err := scanPgActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get activity %s", id)
	}
	return rec, eris.Wrapf(err, "postgres: get activity %s", id)
}

// UpsertStaff inserts or updates staff by code with a COPY-backed bulk upsert.
func (s *PostgresStore) UpsertStaff(ctx context.Context, staff []model.Staff) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(staff))
	for _, st := range staff {
		id := st.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, st.Code, st.Name, joinAliases(st.Aliases), st.Email, true, now, now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "staff",
		Columns:      []string{"id", "code", "name", "whatsapp_aliases", "email", "active", "created_at", "updated_at"},
		ConflictKeys: []string{"code"},
		UpdateCols:   []string{"name", "whatsapp_aliases", "email", "active", "updated_at"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert staff")
}

func (s *PostgresStore) ListStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+staffColumns+` FROM staff ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list staff")
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		st, err := scanPgStaff(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan staff")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate staff")
}

func scanPgStaff(row pgx.Row) (*model.Staff, error) {
	var (
		st      model.Staff
		aliases string
	)
	if err := row.Scan(&st.ID, &st.Code, &st.Name, &aliases, &st.Email, &st.Active, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Aliases = splitAliases(aliases)
	return &st, nil
}

func scanPgActivity(row pgx.Row) (*model.ActivityRecord, error) {
	var (
		rec  model.ActivityRecord
		date *time.Time
	)
	err := row.Scan(&rec.ID, &rec.StaffID, &date, &rec.SourceSenderRaw, &rec.Description,
		&rec.PlannedActivities, &rec.ExecutedActivities, &rec.RawText, &rec.Confidence,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if date != nil {
		d := model.DateOf(*date)
		rec.ActivityDate = &d
	}
	return &rec, nil
}

func pgDate(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.Time()
}
