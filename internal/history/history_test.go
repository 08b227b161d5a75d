package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronward/internal/eventbus"
	"cronward/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "history.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveAndQueryRuns(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.SaveRun(ctx, Record{
			ID:        fmt.Sprintf("run-%d", i),
			Task:      "backup",
			Succeeded: i != 1,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Duration:  1500 * time.Millisecond,
			Detail:    "",
		}))
	}
	require.NoError(t, st.SaveRun(ctx, Record{
		ID: "other", Task: "cleanup", Succeeded: true, StartedAt: base,
	}))

	runs, err := st.RecentRuns(ctx, "backup", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// Newest first.
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-0", runs[2].ID)
	assert.False(t, runs[1].Succeeded)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.Equal(t, base.Add(2*time.Minute).UnixMilli(), runs[0].StartedAt.UnixMilli())

	all, err := st.RecentRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	limited, err := st.RecentRuns(ctx, "backup", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOpenDriverSelection(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "NONE"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		require.NoError(t, st.SaveRun(context.Background(), Record{ID: "x"}))
		runs, err := st.RecentRuns(context.Background(), "", 5)
		require.NoError(t, err)
		assert.Empty(t, runs)
		require.NoError(t, st.Close())
	}

	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err, "sqlite without a path must be rejected")
}

func TestRecorderPersistsBusEvents(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	bus := eventbus.New()
	rec := NewRecorder(st, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	started := time.Now()
	bus.Publish(eventbus.RunEvent{
		ID:        "ev-1",
		Task:      "backup",
		Started:   started,
		Duration:  2 * time.Second,
		Succeeded: false,
		Detail:    "exit 3",
	})

	require.Eventually(t, func() bool {
		runs, err := st.RecentRuns(context.Background(), "backup", 1)
		return err == nil && len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.Stop()
	rec.Stop() // idempotent

	runs, err := st.RecentRuns(context.Background(), "backup", 1)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", runs[0].ID)
	assert.Equal(t, "exit 3", runs[0].Detail)
	assert.False(t, runs[0].Succeeded)
}
