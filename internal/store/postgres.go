package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/db"
	"github.com/sells-group/mentor-sync/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID keys the session advisory lock held while migrating.
const migrationLockID int64 = 7_340_221

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationFS, "migrations", migrationLockID), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- raw sources ---

func (s *PostgresStore) SignupPage(ctx context.Context, offset, limit int) ([]model.RawSignup, error) {
	return pgPage(ctx, s.pool, signupTable, offset, limit, scanSignup)
}

func (s *PostgresStore) SetupPage(ctx context.Context, offset, limit int) ([]model.RawSetupRecord, error) {
	return pgPage(ctx, s.pool, setupTable, offset, limit, scanSetup)
}

func (s *PostgresStore) MemberPage(ctx context.Context, offset, limit int) ([]model.RawFundraisingMember, error) {
	return pgPage(ctx, s.pool, memberTable, offset, limit, scanMember)
}

func (s *PostgresStore) ContactPage(ctx context.Context, offset, limit int) ([]model.RawContact, error) {
	return pgPage(ctx, s.pool, contactTable, offset, limit, scanContact)
}

func (s *PostgresStore) UpsertSignups(ctx context.Context, rows []model.RawSignup) (int64, error) {
	return pgUpsert(ctx, s.pool, signupTable, rows, func(r model.RawSignup) ([]any, error) { return signupRow(r), nil })
}

func (s *PostgresStore) UpsertSetups(ctx context.Context, rows []model.RawSetupRecord) (int64, error) {
	return pgUpsert(ctx, s.pool, setupTable, rows, func(r model.RawSetupRecord) ([]any, error) { return setupRow(r), nil })
}

func (s *PostgresStore) UpsertMembers(ctx context.Context, rows []model.RawFundraisingMember) (int64, error) {
	return pgUpsert(ctx, s.pool, memberTable, rows, func(r model.RawFundraisingMember) ([]any, error) { return memberRow(r), nil })
}

func (s *PostgresStore) UpsertContacts(ctx context.Context, rows []model.RawContact) (int64, error) {
	return pgUpsert(ctx, s.pool, contactTable, rows, contactRow)
}

func (s *PostgresStore) PruneRaw(ctx context.Context, name string, keep []string) (int64, error) {
	t, err := rawTable(name)
	if err != nil {
		return 0, err
	}
	if keep == nil {
		keep = []string{}
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE NOT (%s::text = ANY($1))", t.name, t.keys[0])
	tag, err := s.pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, eris.Wrapf(err, "store: prune %s", t.name)
	}
	return tag.RowsAffected(), nil
}

func pgPage[T any](ctx context.Context, q db.Querier, t table, offset, limit int, scan func(scanner) (T, error)) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT $1 OFFSET $2", t.selectList(), t.name, t.orderBy)
	return pgCollect(ctx, q, t.name, query, scan, limit, offset)
}

func pgCollect[T any](ctx context.Context, q db.Querier, what, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", what)
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
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", what)
}

func pgUpsert[T any](ctx context.Context, pool db.Pool, t table, rows []T, build func(T) ([]any, error)) (int64, error) {
	values, err := buildRows(rows, build)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        t.name,
		Columns:      t.columns,
		ConflictKeys: t.keys,
	}, values)
	return n, eris.Wrapf(err, "postgres: upsert %s", t.name)
}

func buildRows[T any](rows []T, build func(T) ([]any, error)) ([][]any, error) {
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		v, err := build(r)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// --- canonical output ---

func (s *PostgresStore) PriorIdentities(ctx context.Context) (map[string]model.Identity, error) {
	ids, err := pgCollect(ctx, s.pool, identityTable.name,
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

// WriteRun performs the whole write phase in one transaction, so readers
// never observe a half-written run.
func (s *PostgresStore) WriteRun(ctx context.Context, out RunOutput) error {
	log := zap.L().With(zap.String("component", "store.postgres"))

	conflicts, err := buildRows(out.Conflicts, conflictRow)
	if err != nil {
		return err
	}
	mentors := make([][]any, len(out.Mentors))
	keep := make([]string, len(out.Mentors))
	for i, m := range out.Mentors {
		mentors[i] = mentorRow(m)
		keep[i] = m.MnID
	}
	staging := make([][]any, len(out.Staging))
	for i, r := range out.Staging {
		staging[i] = stagingRow(r)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: write run: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM mn_errors`); err != nil {
		return eris.Wrap(err, "postgres: write run: clear conflicts")
	}
	if _, err := db.CopyFrom(ctx, tx, conflictTable.name, conflictTable.columns, conflicts); err != nil {
		return eris.Wrap(err, "postgres: write run: insert conflicts")
	}

	if _, err := db.BulkUpsertTx(ctx, tx, db.UpsertConfig{
		Table:        mentorTable.name,
		Columns:      mentorTable.columns,
		ConflictKeys: mentorTable.keys,
	}, mentors); err != nil {
		return eris.Wrap(err, "postgres: write run: upsert mentors")
	}
	tag, err := tx.Exec(ctx, `DELETE FROM mentors WHERE NOT (mn_id = ANY($1))`, keep)
	if err != nil {
		return eris.Wrap(err, "postgres: write run: prune mentors")
	}
	pruned := tag.RowsAffected()

	if _, err := db.BulkUpsertTx(ctx, tx, db.UpsertConfig{
		Table:        identityTable.name,
		Columns:      identityTable.columns,
		ConflictKeys: identityTable.keys,
		KeepExisting: []string{"gb_contact_id", "gb_member_id"},
	}, identityRows(out.Mentors)); err != nil {
		return eris.Wrap(err, "postgres: write run: upsert identities")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM mn_gb_import`); err != nil {
		return eris.Wrap(err, "postgres: write run: clear staging")
	}
	if _, err := db.CopyFrom(ctx, tx, stagingTable.name, stagingTable.columns, staging); err != nil {
		return eris.Wrap(err, "postgres: write run: insert staging")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: write run: commit")
	}

	log.Info("run written",
		zap.Int("mentors", len(mentors)),
		zap.Int64("pruned", pruned),
		zap.Int("conflicts", len(conflicts)),
		zap.Int("staging", len(staging)),
	)
	return nil
}

func (s *PostgresStore) ListMentors(ctx context.Context, filter MentorFilter) ([]model.Mentor, error) {
	query := fmt.Sprintf("SELECT %s FROM mentors WHERE true", mentorTable.selectList())
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY mn_id LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return pgCollect(ctx, s.pool, mentorTable.name, query, scanMentor, args...)
}

func (s *PostgresStore) ListConflicts(ctx context.Context, filter ConflictFilter) ([]model.Conflict, error) {
	query := fmt.Sprintf("SELECT id, %s FROM mn_errors WHERE true", conflictTable.selectList())
	var args []any
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND error_type = $%d", len(args))
	}
	if filter.MnID != "" {
		args = append(args, filter.MnID)
		query += fmt.Sprintf(" AND mn_id = $%d", len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	return pgCollect(ctx, s.pool, conflictTable.name, query, scanConflict, args...)
}

func (s *PostgresStore) ListStaging(ctx context.Context) ([]model.StagingRow, error) {
	query := fmt.Sprintf("SELECT %s FROM mn_gb_import ORDER BY mn_id", stagingTable.selectList())
	return pgCollect(ctx, s.pool, stagingTable.name, query, scanStaging)
}

// --- run log ---

func (s *PostgresStore) StartRun(ctx context.Context, kind string, dryRun bool) (*model.Run, error) {
	r := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (id, kind, status, dry_run, started_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Kind, string(r.Status), r.DryRun, r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: start %s run", kind)
	}
	return r, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats *model.RunStats) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, completed_at = $2, stats = $3 WHERE id = $4`,
		string(model.RunStatusComplete), time.Now().UTC(), statsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(model.RunStatusFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := "SELECT " + runColumns + " FROM sync_log WHERE true"
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !filter.StartedAfter.IsZero() {
		args = append(args, filter.StartedAfter)
		query += fmt.Sprintf(" AND started_at >= $%d", len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))
	return pgCollect(ctx, s.pool, "sync_log", query, scanRun, args...)
}
