// Package history persists run outcomes so operators can inspect past
// invocations. The execution engine never writes here; records arrive via
// the event bus after a run has fully completed.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronward/pkg/logx"
)

// Record is one persisted task run.
type Record struct {
	ID        string
	Task      string
	Succeeded bool
	StartedAt time.Time
	Duration  time.Duration
	Detail    string
}

// Store persists and queries run records.
type Store interface {
	SaveRun(ctx context.Context, r Record) error
	// RecentRuns returns up to limit records for a task, newest first.
	// An empty task name matches all tasks.
	RecentRuns(ctx context.Context, taskName string, limit int) ([]Record, error)
	Close() error
}

// Config selects and tunes the backing store.
type Config struct {
	Driver      string // "sqlite", "none" or empty
	Path        string
	BusyTimeout time.Duration
	// MaxRows bounds retained rows per prune cycle (default 5000).
	MaxRows int
}

// Open builds a store from config. An empty or "none" driver yields a
// no-op store so callers never need nil checks.
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return nopStore{}, nil
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

type nopStore struct{}

func (nopStore) SaveRun(context.Context, Record) error { return nil }
func (nopStore) RecentRuns(context.Context, string, int) ([]Record, error) {
	return nil, nil
}
func (nopStore) Close() error { return nil }
