// Package gatewaysync keeps a gateway's probe results spooled locally and
// reconciles them with the NetView backend. Results survive backend outages
// in the spool and are uploaded in order once connectivity returns.
package gatewaysync

import (
	"context"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

// StoredResult is a probe result at rest in the spool, identified by a local
// row ID that never leaves the gateway.
type StoredResult struct {
	ID int64
	backend.ProbeResult
	Synced bool
}

// SpoolStats summarizes spool occupancy.
type SpoolStats struct {
	Total    int
	Synced   int
	Unsynced int
}

// Spool is the local result store. Custom gateways use SQLite, Core gateways
// share a Postgres instance.
type Spool interface {
	// Store appends a result in unsynced state.
	Store(ctx context.Context, result backend.ProbeResult) error
	// Unsynced returns pending results ordered oldest first.
	Unsynced(ctx context.Context) ([]StoredResult, error)
	// MarkSynced flips the given rows to synced.
	MarkSynced(ctx context.Context, ids []int64) error
	// Recent returns the newest results regardless of sync state.
	Recent(ctx context.Context, limit int) ([]StoredResult, error)
	// Stats counts spooled rows by sync state.
	Stats(ctx context.Context) (SpoolStats, error)
	// Cleanup deletes the oldest synced rows until at most max remain.
	// It returns the number of rows deleted.
	Cleanup(ctx context.Context, max int) (int, error)
	Close() error
}
