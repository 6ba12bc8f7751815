// Package database stores analysis history in PostgreSQL.
//
// Only derived counters are written. Uploaded rows never reach the database.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/ThreatBoard/internal/config"
	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

const createSchema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id              UUID PRIMARY KEY,
	session_id      TEXT NOT NULL,
	file_name       TEXT NOT NULL,
	total_threats   INTEGER NOT NULL,
	severity_levels JSONB NOT NULL,
	attack_types    JSONB NOT NULL,
	confidence      JSONB NOT NULL,
	ip_address      TEXT,
	user_agent      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analysis_runs_created_at_idx ON analysis_runs (created_at DESC);
`

const selectRuns = `SELECT id, session_id, file_name, total_threats, severity_levels,
	attack_types, confidence, ip_address, user_agent, created_at
	FROM analysis_runs ORDER BY created_at DESC LIMIT $1`

// NewPool parses cfg, applies the pool limits and verifies the connection.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// HistoryRepo is a core.HistoryStore backed by the analysis_runs table.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

var _ core.HistoryStore = (*HistoryRepo)(nil)

// NewHistoryRepo wraps pool. Call Migrate before first use.
func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// Migrate creates the analysis_runs table and index if missing.
func (r *HistoryRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createSchema); err != nil {
		return fmt.Errorf("create analysis_runs: %w", err)
	}
	return nil
}

// Ping checks database connectivity for health reporting.
func (r *HistoryRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Record inserts one analysis run.
func (r *HistoryRepo) Record(ctx context.Context, run core.AnalysisRun) error {
	args, err := insertArgs(run)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `INSERT INTO analysis_runs
		(id, session_id, file_name, total_threats, severity_levels, attack_types,
		 confidence, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, args...)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

// List returns up to limit runs, newest first.
func (r *HistoryRepo) List(ctx context.Context, limit int) ([]core.AnalysisRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.pool.Query(ctx, selectRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("query analysis runs: %w", err)
	}
	defer rows.Close()

	runs := make([]core.AnalysisRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PurgeOlderThan deletes runs created before cutoff.
func (r *HistoryRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM analysis_runs WHERE created_at < $1",
		pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("purge analysis runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// insertArgs returns the positional arguments for the INSERT statement.
func insertArgs(run core.AnalysisRun) ([]any, error) {
	id := toPgUUID(run.ID)
	if !id.Valid {
		return nil, fmt.Errorf("invalid run id %q", run.ID)
	}

	severity, err := json.Marshal(run.SeverityLevels)
	if err != nil {
		return nil, fmt.Errorf("encode severity levels: %w", err)
	}
	attacks, err := json.Marshal(run.AttackTypes)
	if err != nil {
		return nil, fmt.Errorf("encode attack types: %w", err)
	}
	confidence, err := json.Marshal(run.Confidence)
	if err != nil {
		return nil, fmt.Errorf("encode confidence: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return []any{
		id,
		run.SessionID,
		run.FileName,
		int32(run.TotalThreats),
		severity,
		attacks,
		confidence,
		toPgText(run.IPAddress),
		toPgText(run.UserAgent),
		pgtype.Timestamptz{Time: createdAt, Valid: true},
	}, nil
}

// scanRun reads one row in selectRuns column order.
func scanRun(row pgx.Row) (core.AnalysisRun, error) {
	var (
		run        core.AnalysisRun
		id         pgtype.UUID
		total      int32
		severity   []byte
		attacks    []byte
		confidence []byte
		ip, ua     pgtype.Text
		createdAt  pgtype.Timestamptz
	)

	if err := row.Scan(&id, &run.SessionID, &run.FileName, &total, &severity,
		&attacks, &confidence, &ip, &ua, &createdAt); err != nil {
		return core.AnalysisRun{}, fmt.Errorf("scan analysis run: %w", err)
	}

	run.ID = pgUUIDToString(id)
	run.TotalThreats = int(total)
	run.IPAddress = ip.String
	run.UserAgent = ua.String
	run.CreatedAt = createdAt.Time

	run.SeverityLevels = map[string]int{}
	if err := json.Unmarshal(severity, &run.SeverityLevels); err != nil {
		return core.AnalysisRun{}, fmt.Errorf("decode severity levels: %w", err)
	}
	run.AttackTypes = map[threat.AttackType]threat.AttackCounts{}
	if err := json.Unmarshal(attacks, &run.AttackTypes); err != nil {
		return core.AnalysisRun{}, fmt.Errorf("decode attack types: %w", err)
	}
	if err := json.Unmarshal(confidence, &run.Confidence); err != nil {
		return core.AnalysisRun{}, fmt.Errorf("decode confidence: %w", err)
	}

	return run, nil
}
