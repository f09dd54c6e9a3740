// Package main is the entry point for the outcome engine worker.
//
// The worker runs the periodic jobs:
//   - recompute_attainment: recalculates every course (or a configured list)
//     and writes the results back to the store
//
// It also serves Prometheus metrics and reloads the engine tunables file
// when it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/configwatch"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/metrics"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/redis"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/scheduler"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/scheduler/jobs"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.ForEnvironment(string(cfg.App.Environment), cfg.Observability.LogLevel,
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)
	slog.SetDefault(log)
	log.Info("starting outcome engine worker",
		"env", cfg.App.Environment,
		"store", cfg.Database.Driver,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORE
	// ─────────────────────────────────────────────────────────────────────────
	backend, err := app.Open(ctx, cfg.Database, cfg.Engine, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		log.Info("closing store...")
		if err := backend.Close(); err != nil {
			log.Warn("store close failed", logger.Err(err))
		}
	}()

	if cfg.Database.MigrateOnStart {
		log.Info("checking database migrations...")
		if err := backend.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	m := metrics.New()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache   *redis.Cache
		locker  jobs.Locker
		reports jobs.ReportStore
	)
	if cfg.Redis.Enabled {
		log.Info("connecting to Redis...")
		cache, err = redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			cache = nil
			log.Warn("failed to connect to Redis, recompute lock disabled", logger.Err(err))
		} else {
			defer cache.Close()
			locker = redis.NewLocker(cache)
			reports = redis.NewRunReportStore(cache, redis.TTLJobRun)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ENGINE + TUNABLES HOT RELOAD
	// ─────────────────────────────────────────────────────────────────────────
	opts := app.EngineOptions{
		Concurrency: cfg.Scheduler.RecomputeConcurrency,
		Recorder:    m,
		Logger:      log,
	}
	var engine atomic.Pointer[app.Engine]
	engine.Store(app.NewEngine(backend.Store, cfg.Engine, opts))

	if cfg.App.TunablesFile != "" {
		watcher, err := configwatch.New(configwatch.Config{
			Path:   cfg.App.TunablesFile,
			Logger: log,
		}, func(t *config.EngineConfig) {
			engine.Store(app.NewEngine(backend.Store, *t, opts))
			log.Info("engine rebuilt with new tunables")
		})
		if err != nil {
			return fmt.Errorf("failed to watch tunables: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("tunables watcher stopped", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = setupScheduler(cfg, log, backend.Store, engineRef{&engine}, locker, reports, m)
		if err != nil {
			return fmt.Errorf("failed to set up scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. METRICS + HEALTH SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var metricsServer *http.Server
	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.HandleFunc("/healthz", healthHandler(backend, sched, cache))
		metricsServer = &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	log.Info("outcome engine worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", logger.Err(err))
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// engineRef always calculates with the most recently built engine.
type engineRef struct {
	p *atomic.Pointer[app.Engine]
}

func (r engineRef) Handle(ctx context.Context, cmd command.CalculateCourseAttainmentCommand) (*command.CalculateCourseAttainmentResult, error) {
	return r.p.Load().CalculateCourse.Handle(ctx, cmd)
}

func setupScheduler(
	cfg *config.Config,
	log *slog.Logger,
	store app.Store,
	calc jobs.CourseCalculator,
	locker jobs.Locker,
	reports jobs.ReportStore,
	m *metrics.Metrics,
) (*scheduler.Scheduler, error) {
	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.RecomputeSchedule)
	if err != nil {
		return nil, err
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
		RunOnStart:   cfg.Scheduler.RunOnStart,
	})

	job := jobs.NewRecomputeAttainmentJob(store, calc, locker, reports, m, log, jobs.RecomputeAttainmentConfig{
		CourseIDs:   toIDs(cfg.Scheduler.RecomputeCourseIDs),
		ProgramIDs:  toIDs(cfg.Scheduler.RecomputeProgramIDs),
		Concurrency: cfg.Scheduler.RecomputeConcurrency,
		Timeout:     cfg.Scheduler.JobTimeout,
		LockTTL:     cfg.Scheduler.LockTTL,
	})
	if err := sched.Register(job, schedule); err != nil {
		return nil, err
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		m.ObserveJobRun(r.JobName, r.CompletedAt, r.Duration, r.Error)
	})

	log.Info("recompute job registered", "schedule", schedule.String())
	return sched, nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		rc.MinIdleConns = c.MinIdleConns
	}
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	if c.KeyPrefix != "" {
		rc.KeyPrefix = c.KeyPrefix
	}
	return rc
}

func toIDs(in []int64) []shared.ID {
	if len(in) == 0 {
		return nil
	}
	out := make([]shared.ID, len(in))
	for i, v := range in {
		out[i] = shared.ID(v)
	}
	return out
}
