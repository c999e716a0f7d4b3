// Command agent runs a NetView gateway: it executes assigned probes on a
// schedule, spools results locally, and syncs them to the backend.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/netview-hq/netview-go/domains/gatewaysync"
	"github.com/netview-hq/netview-go/domains/probes"
	"github.com/netview-hq/netview-go/platform/go/backend"
	platformlogging "github.com/netview-hq/netview-go/platform/go/logging"
	platformmiddleware "github.com/netview-hq/netview-go/platform/go/middleware"
	"github.com/netview-hq/netview-go/platform/go/persistence"
)

const version = "1.0.0"

type config struct {
	GatewayID       string `env:"GATEWAY_ID"`
	GatewayType     string `env:"GATEWAY_TYPE" envDefault:"Custom"` // Core or Custom
	GatewayName     string `env:"GATEWAY_NAME"`
	GatewayLocation string `env:"GATEWAY_LOCATION" envDefault:"Unknown"`

	BackendURL string `env:"BACKEND_URL" envDefault:"http://localhost:5000"`
	APIKey     string `env:"GATEWAY_API_KEY,required"`

	Host            string        `env:"GATEWAY_HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"GATEWAY_PORT" envDefault:"8001"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	SyncInterval       time.Duration `env:"SYNC_INTERVAL" envDefault:"10s"`
	ProbeCheckInterval time.Duration `env:"PROBE_CHECK_INTERVAL" envDefault:"60s"`

	DefaultTimeout      time.Duration `env:"DEFAULT_TIMEOUT" envDefault:"30s"`
	MaxConcurrentProbes int           `env:"MAX_CONCURRENT_PROBES" envDefault:"10"`
	UserAgent           string        `env:"USER_AGENT" envDefault:"NetView-Gateway/1.0"`

	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./data"`
	MaxLocalResults  int    `env:"MAX_LOCAL_RESULTS" envDefault:"1000"`
	DatabaseURL      string `env:"DATABASE_URL"` // Postgres spool for Core gateways
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"4"`

	VerifySSL bool   `env:"VERIFY_SSL" envDefault:"true"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	SpecPath  string `env:"AGENT_SPEC_PATH" envDefault:"contracts/agent.yaml"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.GatewayID == "" {
		cfg.GatewayID = uuid.NewString()
	}
	if cfg.GatewayName == "" {
		cfg.GatewayName = cfg.GatewayType + " Gateway"
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "gateway-agent",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting gateway",
		zap.String("gateway_id", cfg.GatewayID),
		zap.String("gateway_type", cfg.GatewayType),
	)

	client, err := backend.New(backend.Config{
		BaseURL:   cfg.BackendURL,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("init backend client", zap.Error(err))
	}

	spool, err := openSpool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init result spool", zap.Error(err))
	}
	defer func() {
		_ = spool.Close()
	}()

	executor := probes.New(probes.Config{
		GatewayID:      cfg.GatewayID,
		UserAgent:      cfg.UserAgent,
		DefaultTimeout: cfg.DefaultTimeout,
		VerifySSL:      cfg.VerifySSL,
	}, logger)

	info := gatewaysync.GatewayInfo{
		ID:       cfg.GatewayID,
		Type:     cfg.GatewayType,
		Name:     cfg.GatewayName,
		Location: cfg.GatewayLocation,
	}
	syncer := gatewaysync.NewSyncer(client, spool, info, logger)

	scheduler := gatewaysync.NewScheduler(gatewaysync.SchedulerConfig{
		ProbeInterval:       cfg.ProbeCheckInterval,
		SyncInterval:        cfg.SyncInterval,
		MaxConcurrentProbes: cfg.MaxConcurrentProbes,
		MaxLocalResults:     cfg.MaxLocalResults,
		ProbePacing:         rate.Limit(1),
	}, executor, syncer, spool, logger)

	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	validator, err := platformmiddleware.NewSpecValidator(cfg.SpecPath)
	if err != nil {
		logger.Fatal("load agent contract", zap.String("path", cfg.SpecPath), zap.Error(err))
	}

	api := &agentAPI{
		cfg:      cfg,
		executor: executor,
		syncer:   syncer,
		spool:    spool,
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	router.Use(platformlogging.RequestLogger(logger))
	router.Use(validator)
	api.routes(router)

	server := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("agent api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openSpool picks the result store for this gateway. Core gateways share a
// Postgres spool across replicas; Custom gateways keep a local SQLite file.
func openSpool(ctx context.Context, cfg config, logger *zap.Logger) (gatewaysync.Spool, error) {
	if cfg.GatewayType == "Core" && cfg.DatabaseURL != "" {
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
			ConnString: cfg.DatabaseURL,
			MaxConns:   cfg.DatabaseMaxConns,
		})
		if err != nil {
			return nil, err
		}
		spool, err := gatewaysync.NewPostgresSpool(ctx, pool)
		if err != nil {
			persistence.ClosePool(pool)
			return nil, err
		}
		logger.Info("using postgres spool")
		return spool, nil
	}

	if err := os.MkdirAll(cfg.LocalStoragePath, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.LocalStoragePath, "results.db")
	spool, err := gatewaysync.NewSQLiteSpool(path)
	if err != nil {
		return nil, err
	}
	logger.Info("using sqlite spool", zap.String("path", path))
	return spool, nil
}
