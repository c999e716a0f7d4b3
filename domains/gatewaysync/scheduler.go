package gatewaysync

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/netview-hq/netview-go/platform/go/backend"
)

// Executor runs a single probe; satisfied by the probes package.
type Executor interface {
	Execute(ctx context.Context, probe backend.Probe) backend.ProbeResult
}

// SchedulerConfig tunes the background loops.
type SchedulerConfig struct {
	ProbeInterval       time.Duration // pause between probe sweeps
	SyncInterval        time.Duration // pause between heartbeat+sync cycles
	MaxConcurrentProbes int
	MaxLocalResults     int           // spool cap enforced after each sweep
	ProbePacing         rate.Limit    // probe starts per second within a sweep
	ErrorBackoff        time.Duration // pause after a failed cycle
}

func (c *SchedulerConfig) defaults() {
	if c.ProbeInterval == 0 {
		c.ProbeInterval = time.Minute
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = 10 * time.Second
	}
	if c.MaxConcurrentProbes == 0 {
		c.MaxConcurrentProbes = 10
	}
	if c.MaxLocalResults == 0 {
		c.MaxLocalResults = 1000
	}
	if c.ProbePacing == 0 {
		c.ProbePacing = rate.Limit(1)
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = 30 * time.Second
	}
}

// Scheduler drives the probe sweep and sync loops for one gateway.
type Scheduler struct {
	cfg      SchedulerConfig
	executor Executor
	syncer   *Syncer
	spool    Spool
	logger   *zap.Logger
	limiter  *rate.Limiter
}

// NewScheduler wires the loops together. Zero config fields take the
// defaults the gateway has always shipped with.
func NewScheduler(cfg SchedulerConfig, executor Executor, syncer *Syncer, spool Spool, logger *zap.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		executor: executor,
		syncer:   syncer,
		spool:    spool,
		logger:   logger,
		limiter:  rate.NewLimiter(cfg.ProbePacing, 1),
	}
}

// Run blocks until ctx is cancelled, driving both loops.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.probeLoop(ctx) })
	g.Go(func() error { return s.syncLoop(ctx) })
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (s *Scheduler) probeLoop(ctx context.Context) error {
	for {
		pause := s.cfg.ProbeInterval
		if err := s.sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("probe sweep failed", zap.Error(err))
			pause = s.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// sweep fetches the assigned probes and executes the active ones with
// bounded concurrency, spooling every result.
func (s *Scheduler) sweep(ctx context.Context) error {
	probes, err := s.syncer.FetchProbes(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentProbes)

	for _, probe := range probes {
		if !probe.IsActive {
			continue
		}
		if err := s.limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			result := s.executor.Execute(gctx, probe)
			if err := s.spool.Store(gctx, result); err != nil {
				s.logger.Error("failed to spool result",
					zap.String("probe_id", probe.ID), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if deleted, err := s.spool.Cleanup(ctx, s.cfg.MaxLocalResults); err != nil {
		s.logger.Error("spool cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("cleaned up old results", zap.Int("deleted", deleted))
	}
	return nil
}

func (s *Scheduler) syncLoop(ctx context.Context) error {
	for {
		pause := s.cfg.SyncInterval
		failed := false

		if err := s.syncer.Heartbeat(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A missed heartbeat marks the gateway offline eventually;
			// results keep spooling either way.
			s.logger.Warn("heartbeat failed", zap.Error(err))
			failed = true
		}
		if _, err := s.syncer.SyncResults(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("result sync failed", zap.Error(err))
			failed = true
		}
		if failed {
			pause = s.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}
