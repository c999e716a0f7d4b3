package gatewaysync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

// BackendAPI is the slice of the backend client the syncer uses.
type BackendAPI interface {
	GatewayProbes(ctx context.Context) ([]backend.Probe, error)
	PushResults(ctx context.Context, results []backend.ProbeResult) error
	PushHeartbeat(ctx context.Context, hb backend.Heartbeat) error
}

// GatewayInfo identifies this gateway in heartbeats.
type GatewayInfo struct {
	ID       string
	Type     string // Core or Custom
	Name     string
	Location string
}

// Syncer reconciles the local spool with the backend and reports liveness.
type Syncer struct {
	api     BackendAPI
	spool   Spool
	info    GatewayInfo
	logger  *zap.Logger
	started time.Time

	mu            sync.Mutex
	lastSync      time.Time
	lastHeartbeat time.Time
}

// NewSyncer builds a Syncer for the given gateway.
func NewSyncer(api BackendAPI, spool Spool, info GatewayInfo, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		api:     api,
		spool:   spool,
		info:    info,
		logger:  logger,
		started: time.Now(),
	}
}

// FetchProbes retrieves the probes currently assigned to this gateway.
func (s *Syncer) FetchProbes(ctx context.Context) ([]backend.Probe, error) {
	probes, err := s.api.GatewayProbes(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch probes: %w", err)
	}
	s.logger.Debug("fetched probes", zap.Int("count", len(probes)))
	return probes, nil
}

// SyncResults uploads all unsynced spool rows and marks them synced on
// success. It returns the number of results uploaded.
func (s *Syncer) SyncResults(ctx context.Context) (int, error) {
	pending, err := s.spool.Unsynced(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	results := make([]backend.ProbeResult, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, r := range pending {
		results = append(results, r.ProbeResult)
		ids = append(ids, r.ID)
	}

	if err := s.api.PushResults(ctx, results); err != nil {
		return 0, fmt.Errorf("push results: %w", err)
	}
	if err := s.spool.MarkSynced(ctx, ids); err != nil {
		// The backend has the batch; an unmarked row is re-sent next cycle.
		return len(results), err
	}

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()

	s.logger.Info("synced results", zap.Int("count", len(results)))
	return len(results), nil
}

// Heartbeat reports liveness, uptime and queue depth to the backend.
func (s *Syncer) Heartbeat(ctx context.Context) error {
	stats, err := s.spool.Stats(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var lastSync *float64
	if !s.lastSync.IsZero() {
		v := float64(s.lastSync.Unix())
		lastSync = &v
	}
	s.mu.Unlock()

	hb := backend.Heartbeat{
		GatewayID:   s.info.ID,
		GatewayType: s.info.Type,
		GatewayName: s.info.Name,
		Location:    s.info.Location,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Stats: backend.HeartbeatStats{
			Uptime:         time.Since(s.started).Seconds(),
			LastSync:       lastSync,
			PendingResults: stats.Unsynced,
		},
	}

	if err := s.api.PushHeartbeat(ctx, hb); err != nil {
		return fmt.Errorf("push heartbeat: %w", err)
	}

	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
	return nil
}

// LastSync returns the wall-clock time of the last successful result upload,
// zero if none has happened yet.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// LastHeartbeat returns the time of the last accepted heartbeat.
func (s *Syncer) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// Uptime reports how long this syncer has been running.
func (s *Syncer) Uptime() time.Duration {
	return time.Since(s.started)
}
