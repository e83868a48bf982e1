package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mentor-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers and keeps temp tables visible.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jotform_signups (
	submission_id  TEXT PRIMARY KEY,
	mn_id          TEXT NOT NULL DEFAULT '',
	first_name     TEXT NOT NULL DEFAULT '',
	middle_name    TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	preferred_name TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	personal_email TEXT NOT NULL DEFAULT '',
	uw_email       TEXT NOT NULL DEFAULT '',
	submitted_at   DATETIME
);

CREATE TABLE IF NOT EXISTS jotform_setup (
	submission_id TEXT PRIMARY KEY,
	mn_id         TEXT NOT NULL DEFAULT '',
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	submitted_at  DATETIME
);

CREATE TABLE IF NOT EXISTS givebutter_members (
	member_id  INTEGER PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	amount     REAL NOT NULL DEFAULT 0,
	goal       REAL NOT NULL DEFAULT 0,
	donors     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS givebutter_contacts (
	contact_id  INTEGER PRIMARY KEY,
	external_id TEXT NOT NULL DEFAULT '',
	first_name  TEXT NOT NULL DEFAULT '',
	last_name   TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS mentors (
	mn_id                TEXT PRIMARY KEY,
	is_placeholder_id    BOOLEAN NOT NULL DEFAULT 0,
	phone                TEXT NOT NULL,
	personal_email       TEXT NOT NULL DEFAULT '',
	uw_email             TEXT NOT NULL DEFAULT '',
	first_name           TEXT NOT NULL DEFAULT '',
	middle_name          TEXT NOT NULL DEFAULT '',
	last_name            TEXT NOT NULL DEFAULT '',
	preferred_name       TEXT NOT NULL DEFAULT '',
	gb_contact_id        INTEGER,
	gb_member_id         INTEGER,
	amount               REAL NOT NULL DEFAULT 0,
	is_fundraiser        BOOLEAN NOT NULL DEFAULT 0,
	has_setup            BOOLEAN NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	signup_submission_id TEXT NOT NULL,
	setup_submission_id  TEXT NOT NULL DEFAULT '',
	updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mentors_status ON mentors(status);

CREATE TABLE IF NOT EXISTS mentor_identities (
	mn_id         TEXT PRIMARY KEY,
	gb_contact_id INTEGER,
	gb_member_id  INTEGER,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mn_errors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	severity   TEXT NOT NULL,
	error_type TEXT NOT NULL,
	mn_id      TEXT,
	message    TEXT NOT NULL,
	payload    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mn_errors_severity ON mn_errors(severity);
CREATE INDEX IF NOT EXISTS idx_mn_errors_type ON mn_errors(error_type);

CREATE TABLE IF NOT EXISTS mn_gb_import (
	mn_id           TEXT PRIMARY KEY,
	gb_contact_id   INTEGER,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	status_category TEXT NOT NULL,
	tags            TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	dry_run      BOOLEAN NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	stats        TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_log_started_at ON sync_log(started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- raw sources ---

func (s *SQLiteStore) SignupPage(ctx context.Context, offset, limit int) ([]model.RawSignup, error) {
	return sqlitePage(ctx, s.db, signupTable, offset, limit, scanSignup)
}

func (s *SQLiteStore) SetupPage(ctx context.Context, offset, limit int) ([]model.RawSetupRecord, error) {
	return sqlitePage(ctx, s.db, setupTable, offset, limit, scanSetup)
}

func (s *SQLiteStore) MemberPage(ctx context.Context, offset, limit int) ([]model.RawFundraisingMember, error) {
	return sqlitePage(ctx, s.db, memberTable, offset, limit, scanMember)
}

func (s *SQLiteStore) ContactPage(ctx context.Context, offset, limit int) ([]model.RawContact, error) {
	return sqlitePage(ctx, s.db, contactTable, offset, limit, scanContact)
}

func (s *SQLiteStore) UpsertSignups(ctx context.Context, rows []model.RawSignup) (int64, error) {
	return sqliteUpsert(ctx, s.db, signupTable, rows, func(r model.RawSignup) ([]any, error) { return signupRow(r), nil })
}

func (s *SQLiteStore) UpsertSetups(ctx context.Context, rows []model.RawSetupRecord) (int64, error) {
	return sqliteUpsert(ctx, s.db, setupTable, rows, func(r model.RawSetupRecord) ([]any, error) { return setupRow(r), nil })
}

func (s *SQLiteStore) UpsertMembers(ctx context.Context, rows []model.RawFundraisingMember) (int64, error) {
	return sqliteUpsert(ctx, s.db, memberTable, rows, func(r model.RawFundraisingMember) ([]any, error) { return memberRow(r), nil })
}

func (s *SQLiteStore) UpsertContacts(ctx context.Context, rows []model.RawContact) (int64, error) {
	return sqliteUpsert(ctx, s.db, contactTable, rows, contactRow)
}

func (s *SQLiteStore) PruneRaw(ctx context.Context, name string, keep []string) (int64, error) {
	t, err := rawTable(name)
	if err != nil {
		return 0, err
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", t.keys[0], t.name))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: list %s keys", t.name)
	}
	var stale [][]any
	for rows.Next() {
		var key any
		if err := rows.Scan(&key); err != nil {
			rows.Close() //nolint:errcheck
			return 0, eris.Wrapf(err, "sqlite: scan %s key", t.name)
		}
		if b, ok := key.([]byte); ok {
			key = string(b)
		}
		if _, ok := keepSet[fmt.Sprint(key)]; !ok {
			stale = append(stale, []any{key})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck
		return 0, eris.Wrapf(err, "sqlite: iterate %s keys", t.name)
	}
	rows.Close() //nolint:errcheck

	n, err := execEach(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.keys[0]), stale)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prune %s", t.name)
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit")
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func sqlitePage[T any](ctx context.Context, q sqlQuerier, t table, offset, limit int, scan func(scanner) (T, error)) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT ? OFFSET ?", t.selectList(), t.name, t.orderBy)
	return sqliteCollect(ctx, q, t.name, query, scan, limit, offset)
}

func sqliteCollect[T any](ctx context.Context, q sqlQuerier, what, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", what)
}

// upsertStatement builds INSERT ... ON CONFLICT DO UPDATE for t. Columns in
// keepExisting are never overwritten with NULL.
func upsertStatement(t table, keepExisting ...string) string {
	keep := make(map[string]bool, len(keepExisting))
	for _, c := range keepExisting {
		keep[c] = true
	}
	isKey := make(map[string]bool, len(t.keys))
	for _, k := range t.keys {
		isKey[k] = true
	}

	var sets []string
	for _, c := range t.columns {
		switch {
		case isKey[c]:
		case keep[c]:
			sets = append(sets, fmt.Sprintf("%s = COALESCE(excluded.%s, %s.%s)", c, c, t.name, c))
		default:
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		t.name, t.selectList(), placeholders(len(t.columns)), strings.Join(t.keys, ", "), strings.Join(sets, ", "))
}

func insertStatement(t table) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, t.selectList(), placeholders(len(t.columns)))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sqliteUpsert[T any](ctx context.Context, db *sql.DB, t table, rows []T, build func(T) ([]any, error)) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	values, err := buildRows(rows, build)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := execEach(ctx, tx, upsertStatement(t), values)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert %s", t.name)
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit")
}

func execEach(ctx context.Context, tx *sql.Tx, query string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var total int64
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, r...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// --- canonical output ---

func (s *SQLiteStore) PriorIdentities(ctx context.Context) (map[string]model.Identity, error) {
	ids, err := sqliteCollect(ctx, s.db, identityTable.name,
		`SELECT mn_id, gb_contact_id, gb_member_id FROM mentor_identities`, scanIdentity)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Identity, len(ids))
	for _, id := range ids {
		out[id.MnID] = id
	}
	return out, nil
}

// WriteRun replaces the run outputs in one transaction. The canonical table
// is rebuilt by delete and insert; the identity ledger is upserted.
func (s *SQLiteStore) WriteRun(ctx context.Context, out RunOutput) error {
	conflicts, err := buildRows(out.Conflicts, conflictRow)
	if err != nil {
		return err
	}
	mentors := make([][]any, len(out.Mentors))
	for i, m := range out.Mentors {
		mentors[i] = mentorRow(m)
	}
	staging := make([][]any, len(out.Staging))
	for i, r := range out.Staging {
		staging[i] = stagingRow(r)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: write run: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	steps := []struct {
		name  string
		query string
		rows  [][]any
	}{
		{"clear conflicts", `DELETE FROM mn_errors`, [][]any{{}}},
		{"insert conflicts", insertStatement(conflictTable), conflicts},
		{"clear mentors", `DELETE FROM mentors`, [][]any{{}}},
		{"insert mentors", insertStatement(mentorTable), mentors},
		{"upsert identities", upsertStatement(identityTable, "gb_contact_id", "gb_member_id"), identityRows(out.Mentors)},
		{"clear staging", `DELETE FROM mn_gb_import`, [][]any{{}}},
		{"insert staging", insertStatement(stagingTable), staging},
	}
	for _, step := range steps {
		if _, err := execEach(ctx, tx, step.query, step.rows); err != nil {
			return eris.Wrapf(err, "sqlite: write run: %s", step.name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: write run: commit")
}

func (s *SQLiteStore) ListMentors(ctx context.Context, filter MentorFilter) ([]model.Mentor, error) {
	query := fmt.Sprintf("SELECT %s FROM mentors WHERE 1=1", mentorTable.selectList())
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY mn_id LIMIT ? OFFSET ?"
	args = append(args, listLimit(filter.Limit), filter.Offset)
	return sqliteCollect(ctx, s.db, mentorTable.name, query, scanMentor, args...)
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.Conflict, error) {
	query := fmt.Sprintf("SELECT id, %s FROM mn_errors WHERE 1=1", conflictTable.selectList())
	var args []any
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if filter.Type != "" {
		query += " AND error_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.MnID != "" {
		query += " AND mn_id = ?"
		args = append(args, filter.MnID)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, listLimit(filter.Limit))
	return sqliteCollect(ctx, s.db, conflictTable.name, query, scanConflict, args...)
}

func (s *SQLiteStore) ListStaging(ctx context.Context) ([]model.StagingRow, error) {
	query := fmt.Sprintf("SELECT %s FROM mn_gb_import ORDER BY mn_id", stagingTable.selectList())
	return sqliteCollect(ctx, s.db, stagingTable.name, query, scanStaging)
}

// --- run log ---

func (s *SQLiteStore) StartRun(ctx context.Context, kind string, dryRun bool) (*model.Run, error) {
	r := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, kind, status, dry_run, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Kind, string(r.Status), r.DryRun, r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: start %s run", kind)
	}
	return r, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, stats = ? WHERE id = ?`,
		string(model.RunStatusComplete), time.Now().UTC(), statsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := "SELECT " + runColumns + " FROM sync_log WHERE 1=1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, listLimit(filter.Limit))
	runs, err := sqliteCollect(ctx, s.db, "sync_log", query, scanRun, args...)
	if err != nil || filter.StartedAfter.IsZero() {
		return runs, err
	}
	// Timestamps are stored as text; compare them after scanning.
	kept := runs[:0]
	for _, r := range runs {
		if !r.StartedAt.Before(filter.StartedAfter) {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
