package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/redis"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/scheduler/jobs"
)

// redisOptions locate the Redis shared with the workers.
type redisOptions struct {
	addr     string
	password string
	db       int
	prefix   string
}

// open connects to Redis, or returns nil when --redis is not set.
func (r *redisOptions) open(ctx context.Context) (*redis.Cache, error) {
	if r.addr == "" {
		return nil, nil
	}
	host, port, err := net.SplitHostPort(r.addr)
	if err != nil {
		return nil, fmt.Errorf("--redis: %w", err)
	}
	cfg := redis.DefaultConfig()
	cfg.Host = host
	if cfg.Port, err = strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("--redis: invalid port %q", port)
	}
	cfg.Password = r.password
	cfg.DB = r.db
	cfg.KeyPrefix = r.prefix
	return redis.NewCache(ctx, cfg)
}

func newJobCmd(opts *globalOptions) *cobra.Command {
	ro := &redisOptions{}

	cmd := &cobra.Command{
		Use:   "job",
		Short: "Run the recompute job by hand or show its last report",
	}
	f := cmd.PersistentFlags()
	f.StringVar(&ro.addr, "redis", "", "Redis host:port shared with the workers")
	f.StringVar(&ro.password, "redis-password", "", "Redis password")
	f.IntVar(&ro.db, "redis-db", 0, "Redis database number")
	f.StringVar(&ro.prefix, "redis-prefix", redis.DefaultConfig().KeyPrefix, "Redis key prefix")

	cmd.AddCommand(newJobRunCmd(opts, ro), newJobStatusCmd(opts, ro))
	return cmd
}

func newJobRunCmd(opts *globalOptions, ro *redisOptions) *cobra.Command {
	var courses, programs []int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Recompute stored results now",
		Long: `Recompute stored results now, the way the worker's scheduled job does.

With --redis the run takes the workers' lock, so it is skipped while a
worker is recomputing, and its report becomes the one "job status" shows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := opts.logger(cmd)

			tunables, err := opts.loadTunables()
			if err != nil {
				return err
			}
			backend, err := opts.openBackend(cmd, tunables)
			if err != nil {
				return err
			}
			defer backend.Close()

			var (
				locker  jobs.Locker
				reports jobs.ReportStore
			)
			cache, err := ro.open(ctx)
			if err != nil {
				return err
			}
			if cache != nil {
				defer cache.Close()
				locker = redis.NewLocker(cache)
				reports = redis.NewRunReportStore(cache, redis.TTLJobRun)
			}

			engine := app.NewEngine(backend.Store, tunables, app.EngineOptions{
				Concurrency: opts.concurrency,
				Logger:      log,
			})
			job := jobs.NewRecomputeAttainmentJob(backend.Store, engine.CalculateCourse, locker, reports, nil, log, jobs.RecomputeAttainmentConfig{
				CourseIDs:   toIDs(courses),
				ProgramIDs:  toIDs(programs),
				Concurrency: opts.concurrency,
			})

			runErr := job.Run(ctx)
			report := job.LastStats()
			if report == nil {
				if runErr != nil {
					return runErr
				}
				return errors.New("run skipped: the lock is held by a worker")
			}
			if err := opts.print(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().Int64SliceVar(&courses, "course", nil, "Only these course IDs")
	cmd.Flags().Int64SliceVar(&programs, "program", nil, "Only the courses of these program IDs")
	return cmd
}

func newJobStatusCmd(opts *globalOptions, ro *redisOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the report of the last recompute run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ro.addr == "" {
				return errors.New("--redis is required: run reports are kept in Redis")
			}
			cache, err := ro.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close()

			var report jobs.RunReport
			err = redis.NewRunReportStore(cache, redis.TTLJobRun).LoadReport(cmd.Context(), jobs.RecomputeAttainmentName, &report)
			if errors.Is(err, redis.ErrCacheMiss) {
				return fmt.Errorf("no %s run reported in the last %s", jobs.RecomputeAttainmentName, redis.TTLJobRun)
			}
			if err != nil {
				return fmt.Errorf("load report: %w", err)
			}
			return opts.print(cmd.OutOrStdout(), report)
		},
	}
}
