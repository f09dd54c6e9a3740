// Package main provides outcomectl, a command line front end to the outcome
// engine. Every command prints its result as JSON on stdout; logs go to
// stderr.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/internal/app"
	"github.com/loes-hub/outcome-engine/pkg/logger"
)

const (
	Version = "0.1.0"
	appName = "outcomectl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	store       string
	dsn         string
	fixture     string
	tunables    string
	logLevel    string
	concurrency int
	pretty      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Outcome-based education engine",
		Long: `outcomectl calculates learning-outcome attainment, suggests
CLO to PLO mappings and prerequisite courses, and checks prerequisite
rules against student history.

The store is chosen with --store:
  memory    in-process, loaded from --fixture or the built-in sample
  sqlite    a single database file given by --dsn
  postgres  a connection string given by --dsn`,
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.store, "store", config.DriverMemory, "Store driver (memory, sqlite, postgres)")
	f.StringVar(&opts.dsn, "dsn", "", "Postgres URL or SQLite file path")
	f.StringVar(&opts.fixture, "fixture", "", "YAML fixture for the memory store")
	f.StringVar(&opts.tunables, "tunables", "", "Engine tunables YAML file")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.IntVar(&opts.concurrency, "concurrency", 4, "Parallel courses per operation")
	f.BoolVar(&opts.pretty, "pretty", true, "Indent JSON output")

	cmd.AddCommand(
		newCalcCmd(opts),
		newSuggestCmd(opts),
		newCheckCmd(opts),
		newImpactCmd(opts),
		newImportCmd(opts),
		newJobCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newTunablesCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

// logger writes to the command's stderr so stdout stays parseable. Every
// record names the command that wrote it.
func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	lopts := logger.DefaultOptions()
	lopts.Output = cmd.ErrOrStderr()
	lopts.Level = logger.ParseLevel(o.logLevel)
	return logger.New(lopts).With(logger.Operation(cmd.CommandPath()))
}

func (o *globalOptions) databaseConfig() config.DatabaseConfig {
	db := config.DatabaseConfig{Driver: o.store, FixtureFile: o.fixture}
	switch o.store {
	case config.DriverPostgres:
		db.URL = o.dsn
	case config.DriverSQLite:
		db.SQLitePath = o.dsn
		if db.SQLitePath == "" {
			db.SQLitePath = "outcomes.db"
		}
	}
	return db
}

// openBackend opens the selected store. The caller closes it.
func (o *globalOptions) openBackend(cmd *cobra.Command, tunables config.EngineConfig) (*app.Backend, error) {
	if o.store == config.DriverPostgres && o.dsn == "" {
		return nil, fmt.Errorf("--dsn is required for the postgres store")
	}
	return app.Open(cmd.Context(), o.databaseConfig(), tunables, o.logger(cmd))
}

func (o *globalOptions) loadTunables() (config.EngineConfig, error) {
	if o.tunables == "" {
		return config.DefaultEngineConfig(), nil
	}
	t, err := config.LoadEngineFile(o.tunables)
	if err != nil {
		return config.EngineConfig{}, err
	}
	return *t, nil
}

// withEngine opens the store, builds the engine and calls fn.
func (o *globalOptions) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *app.Engine) (any, error)) error {
	tunables, err := o.loadTunables()
	if err != nil {
		return err
	}

	backend, err := o.openBackend(cmd, tunables)
	if err != nil {
		return err
	}
	defer backend.Close()

	engine := app.NewEngine(backend.Store, tunables, app.EngineOptions{
		Concurrency: o.concurrency,
		Logger:      o.logger(cmd),
	})

	out, err := fn(cmd.Context(), engine)
	if err != nil {
		return err
	}
	return o.print(cmd.OutOrStdout(), out)
}

func (o *globalOptions) print(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
