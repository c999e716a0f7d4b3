package gatewaysync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS probe_results (
    id BIGSERIAL PRIMARY KEY,
    probe_id TEXT NOT NULL,
    gateway_id TEXT NOT NULL,
    status TEXT NOT NULL,
    response_time INTEGER,
    status_code INTEGER,
    error_message TEXT,
    response_body TEXT,
    checked_at TEXT NOT NULL,
    synced BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_probe_results_synced ON probe_results(synced);
CREATE INDEX IF NOT EXISTS idx_probe_results_checked_at ON probe_results(checked_at);
`

// PostgresSpool stores results in a shared Postgres instance. It is used by
// Core (NetView-hosted) gateways, where several replicas share one spool.
type PostgresSpool struct {
	pool *pgxpool.Pool
}

// NewPostgresSpool prepares the spool schema on the given pool. The pool is
// owned by the caller; Close releases it.
func NewPostgresSpool(ctx context.Context, pool *pgxpool.Pool) (*PostgresSpool, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("initialize spool schema: %w", err)
	}
	return &PostgresSpool{pool: pool}, nil
}

func (s *PostgresSpool) Store(ctx context.Context, result backend.ProbeResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO probe_results
		    (probe_id, gateway_id, status, response_time, status_code,
		     error_message, response_body, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ProbeID, result.GatewayID, result.Status, result.ResponseTime,
		result.StatusCode, result.ErrorMessage, result.ResponseBody, result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *PostgresSpool) Unsynced(ctx context.Context) ([]StoredResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, probe_id, gateway_id, status, response_time, status_code,
		       error_message, response_body, checked_at, synced
		FROM probe_results
		WHERE synced = FALSE
		ORDER BY checked_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list unsynced results: %w", err)
	}
	return scanStored(rows)
}

func (s *PostgresSpool) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE probe_results SET synced = TRUE WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark results synced: %w", err)
	}
	return nil
}

func (s *PostgresSpool) Recent(ctx context.Context, limit int) ([]StoredResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, probe_id, gateway_id, status, response_time, status_code,
		       error_message, response_body, checked_at, synced
		FROM probe_results
		ORDER BY checked_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent results: %w", err)
	}
	return scanStored(rows)
}

func (s *PostgresSpool) Stats(ctx context.Context) (SpoolStats, error) {
	var stats SpoolStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE synced),
		       COUNT(*) FILTER (WHERE NOT synced)
		FROM probe_results`).Scan(&stats.Total, &stats.Synced, &stats.Unsynced)
	if err != nil {
		return SpoolStats{}, fmt.Errorf("count spooled results: %w", err)
	}
	return stats, nil
}

func (s *PostgresSpool) Cleanup(ctx context.Context, max int) (int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM probe_results`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count spooled results: %w", err)
	}
	if total <= max {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM probe_results
		WHERE id IN (
		    SELECT id FROM probe_results
		    WHERE synced = TRUE
		    ORDER BY checked_at ASC
		    LIMIT $1
		)`, total-max)
	if err != nil {
		return 0, fmt.Errorf("cleanup spool: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresSpool) Close() error {
	s.pool.Close()
	return nil
}

func scanStored(rows pgx.Rows) ([]StoredResult, error) {
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var r StoredResult
		var result backend.ProbeResult
		if err := rows.Scan(
			&r.ID, &result.ProbeID, &result.GatewayID, &result.Status,
			&result.ResponseTime, &result.StatusCode, &result.ErrorMessage,
			&result.ResponseBody, &result.CheckedAt, &r.Synced,
		); err != nil {
			return nil, fmt.Errorf("scan spooled result: %w", err)
		}
		r.ProbeResult = result
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spooled results: %w", err)
	}
	return out, nil
}
