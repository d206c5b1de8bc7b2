package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geocode-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_runs (
	id          TEXT PRIMARY KEY,
	input_path  TEXT NOT NULL,
	output_path TEXT NOT NULL,
	provider    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	row_limit   INTEGER NOT NULL DEFAULT 0,
	attempted   INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS geocode_rows (
	run_id     TEXT NOT NULL REFERENCES geocode_runs(id),
	row_idx    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	query      TEXT NOT NULL,
	status     TEXT NOT NULL,
	match_addr TEXT,
	lat        REAL,
	lon        REAL,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, row_idx)
);

CREATE INDEX IF NOT EXISTS idx_geocode_runs_status ON geocode_runs(status);
CREATE INDEX IF NOT EXISTS idx_geocode_runs_provider ON geocode_runs(provider);
CREATE INDEX IF NOT EXISTS idx_geocode_rows_run_id ON geocode_rows(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunStatusRunning
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_runs (id, input_path, output_path, provider, status, row_limit, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InputPath, run.OutputPath, run.Provider, string(run.Status), run.RowLimit, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary model.Summary, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE geocode_runs SET status = ?, attempted = ?, succeeded = ?, failed = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(status), summary.Attempted, summary.Succeeded, summary.Failed,
		nullableString(errMsg), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input_path, output_path, provider, status, row_limit, attempted, succeeded, failed, error, created_at, updated_at
		 FROM geocode_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, input_path, output_path, provider, status, row_limit, attempted, succeeded, failed, error, created_at, updated_at
	          FROM geocode_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordRows(ctx context.Context, runID string, results []model.RowResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, r := range results {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO geocode_rows (run_id, row_idx, name, query, status, match_addr, lat, lon, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Row, r.Name, r.Query, string(r.Status),
			nullableString(r.MatchAddr), nullableFloat(r.Lat, r.Status), nullableFloat(r.Lon, r.Status),
			nullableString(r.Error), createdAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert row %d for run %s", r.Row, runID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit rows")
}

func (s *SQLiteStore) ListRows(ctx context.Context, runID string) ([]model.RowResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, row_idx, name, query, status, match_addr, lat, lon, error, created_at
		 FROM geocode_rows WHERE run_id = ? ORDER BY row_idx ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list rows for run %s", runID)
	}
	defer rows.Close()

	var results []model.RowResult
	for rows.Next() {
		r, err := scanRowResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list rows iterate")
}

// helpers

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

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableFloat stores coordinates only for successful rows so a
// failed row never carries a misleading 0,0 location.
func nullableFloat(v float64, status model.RowStatus) any {
	if status != model.RowStatusOK {
		return nil
	}
	return v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var errMsg sql.NullString

	err := row.Scan(&r.ID, &r.InputPath, &r.OutputPath, &r.Provider, &r.Status, &r.RowLimit,
		&r.Summary.Attempted, &r.Summary.Succeeded, &r.Summary.Failed, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return &r, nil
}

func scanRowResult(row scannable) (*model.RowResult, error) {
	var r model.RowResult
	var matchAddr, errMsg sql.NullString
	var lat, lon sql.NullFloat64

	err := row.Scan(&r.RunID, &r.Row, &r.Name, &r.Query, &r.Status,
		&matchAddr, &lat, &lon, &errMsg, &r.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan row result")
	}

	if matchAddr.Valid {
		r.MatchAddr = matchAddr.String
	}
	if lat.Valid {
		r.Lat = lat.Float64
	}
	if lon.Valid {
		r.Lon = lon.Float64
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return &r, nil
}
