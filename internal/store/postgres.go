package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geocode-cli/internal/db"
	"github.com/sells-group/geocode-cli/internal/model"
)

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

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO geocode_runs (id, input_path, output_path, provider, status, row_limit, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"finish_run": `UPDATE geocode_runs SET status = $1, attempted = $2, succeeded = $3, failed = $4, error = $5, updated_at = $6 WHERE id = $7`,
	"get_run":    `SELECT id, input_path, output_path, provider, status, row_limit, attempted, succeeded, failed, error, created_at, updated_at FROM geocode_runs WHERE id = $1`,
	"list_rows":  `SELECT run_id, row_idx, name, query, status, match_addr, lat, lon, error, created_at FROM geocode_rows WHERE run_id = $1 ORDER BY row_idx ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocode_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input_path  TEXT NOT NULL,
	output_path TEXT NOT NULL,
	provider    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	row_limit   INTEGER NOT NULL DEFAULT 0,
	attempted   INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS geocode_rows (
	run_id     TEXT NOT NULL REFERENCES geocode_runs(id),
	row_idx    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	query      TEXT NOT NULL,
	status     TEXT NOT NULL,
	match_addr TEXT,
	lat        DOUBLE PRECISION,
	lon        DOUBLE PRECISION,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, row_idx)
);

CREATE INDEX IF NOT EXISTS idx_geocode_runs_status ON geocode_runs(status);
CREATE INDEX IF NOT EXISTS idx_geocode_runs_provider ON geocode_runs(provider);
CREATE INDEX IF NOT EXISTS idx_geocode_rows_run_id ON geocode_rows(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunStatusRunning
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_runs (id, input_path, output_path, provider, status, row_limit, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.InputPath, run.OutputPath, run.Provider, string(run.Status), run.RowLimit, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.Summary, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE geocode_runs SET status = $1, attempted = $2, succeeded = $3, failed = $4, error = $5, updated_at = $6 WHERE id = $7`,
		string(status), summary.Attempted, summary.Succeeded, summary.Failed,
		nullableString(errMsg), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var errMsg *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, input_path, output_path, provider, status, row_limit, attempted, succeeded, failed, error, created_at, updated_at FROM geocode_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.InputPath, &r.OutputPath, &r.Provider, &r.Status, &r.RowLimit,
		&r.Summary.Attempted, &r.Summary.Succeeded, &r.Summary.Failed, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, input_path, output_path, provider, status, row_limit, attempted, succeeded, failed, error, created_at, updated_at FROM geocode_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var errMsg *string

		if err := rows.Scan(&r.ID, &r.InputPath, &r.OutputPath, &r.Provider, &r.Status, &r.RowLimit,
			&r.Summary.Attempted, &r.Summary.Succeeded, &r.Summary.Failed, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// rowColumns is the column list used for bulk-loading geocode_rows.
var rowColumns = []string{"run_id", "row_idx", "name", "query", "status", "match_addr", "lat", "lon", "error", "created_at"}

func (s *PostgresStore) RecordRows(ctx context.Context, runID string, results []model.RowResult) error {
	if len(results) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			runID, r.Row, r.Name, r.Query, string(r.Status),
			nullableString(r.MatchAddr), nullableFloat(r.Lat, r.Status), nullableFloat(r.Lon, r.Status),
			nullableString(r.Error), createdAt,
		})
	}

	// Upsert keyed on (run_id, row_idx) keeps re-recording idempotent.
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "geocode_rows",
		Columns:      rowColumns,
		ConflictKeys: []string{"run_id", "row_idx"},
	}, rows)
	return eris.Wrapf(err, "postgres: record rows for run %s", runID)
}

func (s *PostgresStore) ListRows(ctx context.Context, runID string) ([]model.RowResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, row_idx, name, query, status, match_addr, lat, lon, error, created_at FROM geocode_rows WHERE run_id = $1 ORDER BY row_idx ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list rows for run %s", runID)
	}
	defer rows.Close()

	var results []model.RowResult
	for rows.Next() {
		var r model.RowResult
		var matchAddr, errMsg *string
		var lat, lon *float64

		if err := rows.Scan(&r.RunID, &r.Row, &r.Name, &r.Query, &r.Status,
			&matchAddr, &lat, &lon, &errMsg, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row result")
		}
		if matchAddr != nil {
			r.MatchAddr = *matchAddr
		}
		if lat != nil {
			r.Lat = *lat
		}
		if lon != nil {
			r.Lon = *lon
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list rows iterate")
}
