package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/scout/internal/adapters/http/api"
	"github.com/okian/scout/internal/adapters/repository"
	app "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/config"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/consolidate"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Apply configured log level (fallback to info on invalid input)
	loggerInstance := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, loggerInstance); err != nil {
		loggerInstance.Error(ctx, "scout server failed", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the store, schemas, ignore watcher, service and HTTP server, and
// blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	registerRuntimeCollectors(metrics.GetRegistry())

	sc, pit, err := loadSchemas(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	watcher, err := audit.NewIgnoreWatcher(cfg.IgnoreFile, audit.WithWatchLogger(log.Named("ignore")))
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	svc := app.New(serviceOptions(cfg, log, store, sc, pit, watcher)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	srv := newHTTPServer(cfg.Addr, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// loadSchemas reads the configured schemas, falling back to the embedded
// ones when a path is empty.
func loadSchemas(cfg *config.Config) (*schema.Schema, *schema.PitSchema, error) {
	sc := schema.Default()
	if cfg.SchemaPath != "" {
		var err error
		if sc, err = schema.Load(cfg.SchemaPath); err != nil {
			return nil, nil, err
		}
	}
	pit := schema.DefaultPit()
	if cfg.PitSchemaPath != "" {
		var err error
		if pit, err = schema.LoadPit(cfg.PitSchemaPath); err != nil {
			return nil, nil, err
		}
	}
	return sc, pit, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return repository.NewSQLiteStore(ctx, cfg.StoreDSN)
	case config.StoreMemory, "":
		return repository.NewMemStore(ctx), nil
	default:
		return nil, fmt.Errorf("%w: store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
	}
}

func serviceOptions(cfg *config.Config, log logger.Logger, store repository.Store, sc *schema.Schema, pit *schema.PitSchema, ignore app.IgnoreSource) []app.Option {
	return []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithSchema(sc),
		app.WithPitSchema(pit),
		app.WithIgnoreSource(ignore),
		app.WithObserverRange(audit.Range{Min: cfg.ObserverMin, Max: cfg.ObserverMax}),
		app.WithConflictPolicy(consolidate.Policy(cfg.ConflictPolicy)),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithDecodeWorkers(cfg.DecodeWorkers),
		app.WithLockStripes(cfg.LockStripes),
		app.WithPollInterval(time.Duration(cfg.PollIntervalMS) * time.Millisecond),
	}
}

func newHTTPServer(addr string, svc *app.Service) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(svc, svc).Router(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// registerRuntimeCollectors adds Go runtime and process metrics to reg. A
// collector that is already registered is left alone.
func registerRuntimeCollectors(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		var already prometheus.AlreadyRegisteredError
		if err := reg.Register(c); err != nil && !errors.As(err, &already) {
			logger.Get().Warn(context.Background(), "register collector", logger.Error(err))
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateServiceMetrics refreshes gauges from a stats snapshot. GetStats
// itself updates the per-collection document gauges.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueSize)
	metrics.UpdateWorkerCount(stats.WorkerCount)
}
