package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loes-hub/outcome-engine/config"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := opts.openBackend(cmd, config.DefaultEngineConfig())
			if err != nil {
				return err
			}
			defer backend.Close()

			status := "migrated"
			if down {
				status = "rolled back"
				err = backend.Rollback(cmd.Context())
			} else {
				err = backend.Migrate(cmd.Context())
			}
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]string{"store": backend.Driver, "status": status})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Revert the most recent migration (postgres only)")
	return cmd
}

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "seed [fixture.yaml]",
		Short: "Load a YAML fixture (default: the built-in sample) into the store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				fx     *memory.Fixture
				source = "sample"
				err    error
			)
			if len(args) == 1 {
				source = args[0]
				fx, err = memory.ReadFixtureFile(source)
			} else {
				fx, err = memory.SampleFixture()
			}
			if err != nil {
				return err
			}
			tunables, err := opts.loadTunables()
			if err != nil {
				return err
			}

			backend, err := opts.openBackend(cmd, tunables)
			if err != nil {
				return err
			}
			defer backend.Close()

			if migrate {
				if err := backend.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			if err := backend.Seed(cmd.Context(), fx); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]any{
				"store":    backend.Driver,
				"fixture":  source,
				"programs": len(fx.Programs),
				"courses":  len(fx.Courses),
				"students": len(fx.Students),
			})
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply migrations before seeding")
	return cmd
}

func newTunablesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tunables",
		Short: "Validate --tunables and print the effective engine tunables as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := opts.loadTunables()
			if err != nil {
				return err
			}
			data, err := t.Marshal()
			if err != nil {
				return fmt.Errorf("marshal tunables: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
