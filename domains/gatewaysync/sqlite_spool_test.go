package gatewaysync

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

func newTestSpool(t *testing.T) *SQLiteSpool {
	t.Helper()
	spool, err := NewSQLiteSpool(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = spool.Close() })
	return spool
}

func testResult(probeID, checkedAt string) backend.ProbeResult {
	code := 200
	return backend.ProbeResult{
		ProbeID:      probeID,
		GatewayID:    "gw-1",
		Status:       backend.StatusUp,
		ResponseTime: 42,
		StatusCode:   &code,
		CheckedAt:    checkedAt,
	}
}

func TestSQLiteSpoolStoreAndUnsynced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	spool := newTestSpool(t)

	require.NoError(t, spool.Store(ctx, testResult("p2", "2026-08-30T10:01:00Z")))
	require.NoError(t, spool.Store(ctx, testResult("p1", "2026-08-30T10:00:00Z")))

	pending, err := spool.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first so uploads preserve check order.
	require.Equal(t, "p1", pending[0].ProbeID)
	require.Equal(t, "p2", pending[1].ProbeID)
	require.False(t, pending[0].Synced)
	require.NotNil(t, pending[0].StatusCode)
	require.Equal(t, 200, *pending[0].StatusCode)
}

func TestSQLiteSpoolMarkSynced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	spool := newTestSpool(t)

	require.NoError(t, spool.Store(ctx, testResult("p1", "2026-08-30T10:00:00Z")))
	require.NoError(t, spool.Store(ctx, testResult("p2", "2026-08-30T10:01:00Z")))

	pending, err := spool.Unsynced(ctx)
	require.NoError(t, err)
	require.NoError(t, spool.MarkSynced(ctx, []int64{pending[0].ID}))

	pending, err = spool.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "p2", pending[0].ProbeID)

	stats, err := spool.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, SpoolStats{Total: 2, Synced: 1, Unsynced: 1}, stats)
}

func TestSQLiteSpoolMarkSyncedEmpty(t *testing.T) {
	t.Parallel()

	spool := newTestSpool(t)
	require.NoError(t, spool.MarkSynced(context.Background(), nil))
}

func TestSQLiteSpoolRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	spool := newTestSpool(t)

	for i := 0; i < 5; i++ {
		checkedAt := fmt.Sprintf("2026-08-30T10:0%d:00Z", i)
		require.NoError(t, spool.Store(ctx, testResult(fmt.Sprintf("p%d", i), checkedAt)))
	}

	recent, err := spool.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "p4", recent[0].ProbeID)
	require.Equal(t, "p2", recent[2].ProbeID)
}

func TestSQLiteSpoolCleanupKeepsUnsynced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	spool := newTestSpool(t)

	var ids []int64
	for i := 0; i < 10; i++ {
		checkedAt := fmt.Sprintf("2026-08-30T10:0%d:00Z", i)
		require.NoError(t, spool.Store(ctx, testResult(fmt.Sprintf("p%d", i), checkedAt)))
	}
	pending, err := spool.Unsynced(ctx)
	require.NoError(t, err)
	for _, r := range pending[:6] {
		ids = append(ids, r.ID)
	}
	require.NoError(t, spool.MarkSynced(ctx, ids))

	deleted, err := spool.Cleanup(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 5, deleted)

	stats, err := spool.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, stats.Total)
	// Unsynced rows are never deleted, only synced ones age out.
	require.Equal(t, 4, stats.Unsynced)

	deleted, err = spool.Cleanup(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, deleted)
}
