package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/db"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/migrate"
)

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := newRootCommand(cfg, logg).ExecuteContext(ctx); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(pkgerrors.ExitCode(err))
	}
}

func newRootCommand(cfg *config.Config, logg *logger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the goose migrations for organizations and schema metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// withMigrator opens the database only for the commands that need it.
	withMigrator := func(run func(ctx context.Context, out io.Writer, m *migrate.Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := db.New(ctx, cfg.DB, logg)
			requireResource(ctx, logg, "database", err)
			defer client.Close()

			sqlDB, err := client.DB().DB()
			requireResource(ctx, logg, "sql database", err)

			m, err := migrate.New(sqlDB)
			if err != nil {
				return err
			}
			logg.Info(logg.WithField(ctx, "cmd", cmd.Name()), "migrate ready")
			return run(ctx, cmd.OutOrStdout(), m, args)
		}
	}

	var dir string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty SQL migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.CreateSQLMigration(dir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	}
	create.Flags().StringVar(&dir, "dir", migrate.DefaultDir, "migrations directory")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check migration names and goose sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fsys := migrate.Migrations()
			if cmd.Flags().Changed("dir") {
				fsys = os.DirFS(dir)
			}
			if err := migrate.Validate(fsys); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	}
	validate.Flags().StringVar(&dir, "dir", migrate.DefaultDir, "validate this directory instead of the embedded migrations")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, out io.Writer, m *migrate.Migrator, _ []string) error {
				results, err := m.Up(ctx)
				printResults(out, results)
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, out io.Writer, m *migrate.Migrator, _ []string) error {
				result, err := m.Down(ctx)
				if err != nil {
					return err
				}
				printResults(out, []migrate.Result{result})
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, out io.Writer, m *migrate.Migrator, _ []string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					applied := "pending"
					if s.Applied {
						applied = s.AppliedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(out, "%-25s %s\n", applied, s.Name)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version <YYYYMMDDHHMMSS>",
			Short: "Migrate up or down to a version",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(ctx context.Context, out io.Writer, m *migrate.Migrator, args []string) error {
				target, err := migrate.ParseVersion(args[0])
				if err != nil {
					return err
				}
				results, err := m.MigrateTo(ctx, target)
				printResults(out, results)
				return err
			}),
		},
		create,
		validate,
	)
	return root
}

func printResults(out io.Writer, results []migrate.Result) {
	if len(results) == 0 {
		fmt.Fprintln(out, "no migrations to run")
		return
	}
	for _, r := range results {
		fmt.Fprintf(out, "%-4s %s (%s)\n", r.Direction, r.Name, r.Duration.Round(time.Millisecond))
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(pkgerrors.ExitCode(err))
}
