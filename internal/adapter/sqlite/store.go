// Package sqlite keeps the latest Rt table and the history of run
// summaries in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

//go:embed schema.sql
var schema string

// ErrNoRun is returned by LatestRun before any run was stored.
var ErrNoRun = domain.ErrNoRun

// Store provides SQLite-backed run and estimate persistence.
// It implements pipeline.ResultSink.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Name identifies the sink in logs.
func (s *Store) Name() string { return "sqlite" }

// WriteResults records the run and replaces the stored Rt table with rows,
// in one transaction.
func (s *Store) WriteResults(ctx context.Context, summary domain.RunSummary, rows domain.CombinedResult) error {
	processed, err := json.Marshal(summary.Processed)
	if err != nil {
		return fmt.Errorf("encode processed counties: %w", err)
	}
	skipped, err := json.Marshal(summary.Skipped)
	if err != nil {
		return fmt.Errorf("encode skipped counties: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, started_at, finished_at, processed, skipped, row_count)
VALUES (?, ?, ?, ?, ?, ?)
`,
		summary.RunID,
		summary.StartedAt.UTC().UnixMilli(),
		summary.FinishedAt.UTC().UnixMilli(),
		string(processed),
		string(skipped),
		summary.Rows,
	); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rt_estimates`); err != nil {
		return fmt.Errorf("clear estimates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO rt_estimates (county, date, rt, rt_lci, rt_uci, run_id)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range rows {
		if _, err := stmt.ExecContext(ctx,
			e.County, e.Date.Format(time.DateOnly), e.Rt, e.Lower, e.Upper, summary.RunID,
		); err != nil {
			return fmt.Errorf("insert %s %s: %w", e.County, e.Date.Format(time.DateOnly), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestRun returns the most recently finished run.
func (s *Store) LatestRun(ctx context.Context) (domain.RunSummary, error) {
	var (
		summary            domain.RunSummary
		started, finished  int64
		processed, skipped string
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT run_id, started_at, finished_at, processed, skipped, row_count
FROM runs
ORDER BY finished_at DESC, started_at DESC
LIMIT 1
`).Scan(&summary.RunID, &started, &finished, &processed, &skipped, &summary.Rows)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunSummary{}, ErrNoRun
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("latest run: %w", err)
	}

	summary.StartedAt = time.UnixMilli(started).UTC()
	summary.FinishedAt = time.UnixMilli(finished).UTC()
	if err := json.Unmarshal([]byte(processed), &summary.Processed); err != nil {
		return domain.RunSummary{}, fmt.Errorf("decode processed counties: %w", err)
	}
	if err := json.Unmarshal([]byte(skipped), &summary.Skipped); err != nil {
		return domain.RunSummary{}, fmt.Errorf("decode skipped counties: %w", err)
	}
	return summary, nil
}

// Estimates lists stored rows ordered by county and date. An empty county
// lists every county.
func (s *Store) Estimates(ctx context.Context, county string) (domain.CombinedResult, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT county, date, rt, rt_lci, rt_uci
FROM rt_estimates
WHERE ? = '' OR county = ?
ORDER BY county, date
`, county, county)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	var out domain.CombinedResult
	for rows.Next() {
		var (
			e    domain.Estimate
			date string
		)
		if err := rows.Scan(&e.County, &date, &e.Rt, &e.Lower, &e.Upper); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		if e.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimates: %w", err)
	}
	return out, nil
}
