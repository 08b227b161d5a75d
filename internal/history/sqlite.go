package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"cronward/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	maxRows    int
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 5000
	}
	st := &sqliteStore{db: db, log: log, maxRows: maxRows, pruneEvery: 200}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) SaveRun(ctx context.Context, r Record) error {
	succeeded := 0
	if r.Succeeded {
		succeeded = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, task, succeeded, started_at, duration_ms, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Task, succeeded, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(), r.Detail)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if n := s.opCount.Add(1); n%s.pruneEvery == 0 {
		s.prune(ctx)
	}
	return nil
}

// prune keeps the newest maxRows rows. Best effort; failures are logged.
func (s *sqliteStore) prune(ctx context.Context) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_runs WHERE id NOT IN (
			SELECT id FROM task_runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRows)
	if err != nil {
		s.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("history pruned", logx.Int64("rows", n))
	}
}

func (s *sqliteStore) RecentRuns(ctx context.Context, taskName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, task, succeeded, started_at, duration_ms, detail
		FROM task_runs`
	args := []any{}
	if taskName != "" {
		query += ` WHERE task = ?`
		args = append(args, taskName)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r          Record
			succeeded  int
			startedMs  int64
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &r.Task, &succeeded, &startedMs, &durationMs, &r.Detail); err != nil {
			return nil, err
		}
		r.Succeeded = succeeded != 0
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
