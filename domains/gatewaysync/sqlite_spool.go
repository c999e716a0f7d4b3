package gatewaysync

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS probe_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    probe_id TEXT NOT NULL,
    gateway_id TEXT NOT NULL,
    status TEXT NOT NULL,
    response_time INTEGER,
    status_code INTEGER,
    error_message TEXT,
    response_body TEXT,
    checked_at TEXT NOT NULL,
    synced BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_probe_results_synced ON probe_results(synced);
CREATE INDEX IF NOT EXISTS idx_probe_results_checked_at ON probe_results(checked_at);
`

// SQLiteSpool stores results in a local SQLite file. It is the default spool
// for Custom (on-prem) gateways.
type SQLiteSpool struct {
	db *sqlx.DB
}

// NewSQLiteSpool opens (and if needed initializes) the spool database at path.
func NewSQLiteSpool(path string) (*SQLiteSpool, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open spool database: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent probe stores.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize spool schema: %w", err)
	}
	return &SQLiteSpool{db: db}, nil
}

type sqliteRow struct {
	ID           int64   `db:"id"`
	ProbeID      string  `db:"probe_id"`
	GatewayID    string  `db:"gateway_id"`
	Status       string  `db:"status"`
	ResponseTime int     `db:"response_time"`
	StatusCode   *int    `db:"status_code"`
	ErrorMessage *string `db:"error_message"`
	ResponseBody *string `db:"response_body"`
	CheckedAt    string  `db:"checked_at"`
	Synced       bool    `db:"synced"`
}

func (r sqliteRow) stored() StoredResult {
	return StoredResult{
		ID: r.ID,
		ProbeResult: backend.ProbeResult{
			ProbeID:      r.ProbeID,
			GatewayID:    r.GatewayID,
			Status:       r.Status,
			ResponseTime: r.ResponseTime,
			StatusCode:   r.StatusCode,
			ErrorMessage: r.ErrorMessage,
			ResponseBody: r.ResponseBody,
			CheckedAt:    r.CheckedAt,
		},
		Synced: r.Synced,
	}
}

func (s *SQLiteSpool) Store(ctx context.Context, result backend.ProbeResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO probe_results
		    (probe_id, gateway_id, status, response_time, status_code,
		     error_message, response_body, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ProbeID, result.GatewayID, result.Status, result.ResponseTime,
		result.StatusCode, result.ErrorMessage, result.ResponseBody, result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *SQLiteSpool) Unsynced(ctx context.Context) ([]StoredResult, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, probe_id, gateway_id, status, response_time, status_code,
		       error_message, response_body, checked_at, synced
		FROM probe_results
		WHERE synced = FALSE
		ORDER BY checked_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list unsynced results: %w", err)
	}
	return storedRows(rows), nil
}

func (s *SQLiteSpool) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE probe_results SET synced = TRUE WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build mark synced query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark results synced: %w", err)
	}
	return nil
}

func (s *SQLiteSpool) Recent(ctx context.Context, limit int) ([]StoredResult, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, probe_id, gateway_id, status, response_time, status_code,
		       error_message, response_body, checked_at, synced
		FROM probe_results
		ORDER BY checked_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent results: %w", err)
	}
	return storedRows(rows), nil
}

func (s *SQLiteSpool) Stats(ctx context.Context) (SpoolStats, error) {
	var stats SpoolStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN synced THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN synced THEN 0 ELSE 1 END), 0)
		FROM probe_results`).Scan(&stats.Total, &stats.Synced, &stats.Unsynced)
	if err != nil {
		return SpoolStats{}, fmt.Errorf("count spooled results: %w", err)
	}
	return stats, nil
}

func (s *SQLiteSpool) Cleanup(ctx context.Context, max int) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM probe_results`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count spooled results: %w", err)
	}
	if total <= max {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM probe_results
		WHERE id IN (
		    SELECT id FROM probe_results
		    WHERE synced = TRUE
		    ORDER BY checked_at ASC
		    LIMIT ?
		)`, total-max)
	if err != nil {
		return 0, fmt.Errorf("cleanup spool: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

func (s *SQLiteSpool) Close() error {
	return s.db.Close()
}

func storedRows(rows []sqliteRow) []StoredResult {
	out := make([]StoredResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.stored())
	}
	return out
}
