// Package app wires configuration, storage and the engine handlers for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/internal/application/command"
	"github.com/loes-hub/outcome-engine/internal/application/query"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/postgres"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/sqlite"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/scheduler/jobs"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

// Store is everything the engine reads and writes. The memory, sqlite and
// postgres stores all implement it.
type Store interface {
	query.ProgramReader
	query.MappingReader
	query.SnapshotLoader
	query.CurriculumReader
	query.CourseMappingReader
	query.CourseCatalog
	query.RuleReader
	query.StudentReader
	command.ResultWriter
	command.MappingWriter
	prerequisite.HistoryReader
	jobs.CourseLister
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Backend is an open Store plus its lifecycle operations.
type Backend struct {
	Driver string
	Store  Store

	seeder   memory.Seeder
	defaults memory.ApplyOptions
	migrate  func(context.Context) error
	rollback func(context.Context) error
	after    func(context.Context) error
	ping     func(context.Context) error
	close    func() error
}

// Open opens the store selected by cfg.Driver. Fixtures loaded into it take
// their missing values from tunables.
func Open(ctx context.Context, cfg config.DatabaseConfig, tunables config.EngineConfig, log *slog.Logger) (*Backend, error) {
	log = logger.OrDefault(log).With(logger.Component("store"), slog.String("driver", cfg.Driver))
	defaults := memory.ApplyOptions{DefaultThreshold: tunables.Achievement.DefaultThreshold}

	switch cfg.Driver {
	case config.DriverMemory, "":
		var (
			s   *memory.Store
			err error
		)
		if cfg.FixtureFile != "" {
			s, err = memory.LoadFixtureFile(cfg.FixtureFile, defaults)
		} else {
			s, err = memory.Sample(defaults)
		}
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		log.Info("memory store loaded", slog.String("fixture", cfg.FixtureFile))
		return &Backend{
			Driver:   config.DriverMemory,
			Store:    s,
			seeder:   s,
			defaults: defaults,
			migrate:  func(context.Context) error { return nil },
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("sqlite store opened", slog.String("path", cfg.SQLitePath))
		return &Backend{
			Driver:   config.DriverSQLite,
			Store:    s,
			seeder:   s,
			defaults: defaults,
			migrate:  s.Migrate,
			ping:     s.Ping,
			close:    s.Close,
		}, nil

	case config.DriverPostgres:
		s, err := postgres.OpenStore(ctx, cfg.URL, postgres.PoolOptions{
			MaxConns:        int32(cfg.MaxConns),
			MinConns:        int32(cfg.MinConns),
			MaxConnLifetime: cfg.ConnMaxLifetime,
			MaxConnIdleTime: cfg.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Info("postgres store connected")
		seeder := s.Seeder()
		return &Backend{
			Driver:   config.DriverPostgres,
			Store:    s,
			seeder:   seeder,
			defaults: defaults,
			migrate:  s.Migrate,
			rollback: s.Rollback,
			after:    seeder.SyncSequences,
			ping:     s.Ping,
			close:    s.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Migrate applies the schema. The memory store has none.
func (b *Backend) Migrate(ctx context.Context) error {
	return b.migrate(ctx)
}

// Rollback reverts the most recent migration. Only postgres keeps
// versioned migrations.
func (b *Backend) Rollback(ctx context.Context) error {
	if b.rollback == nil {
		return fmt.Errorf("rollback is not supported by the %s store", b.Driver)
	}
	return b.rollback(ctx)
}

// Seed writes a fixture into the store, keeping its IDs.
func (b *Backend) Seed(ctx context.Context, fx *memory.Fixture) error {
	if err := fx.Apply(ctx, b.seeder, b.defaults); err != nil {
		return fmt.Errorf("seed %s store: %w", b.Driver, err)
	}
	if b.after != nil {
		if err := b.after(ctx); err != nil {
			return fmt.Errorf("seed %s store: %w", b.Driver, err)
		}
	}
	return nil
}

// Ping checks the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the store.
func (b *Backend) Close() error {
	return b.close()
}
