package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/symmetri/internal/organizations"
	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/db"
	"github.com/angelmondragon/symmetri/pkg/logger"
	"github.com/angelmondragon/symmetri/pkg/migrate"
)

const serviceName = "symmetri"

// app carries the process configuration shared by every command.
type app struct {
	cfg  *config.Config
	logg *logger.Logger
}

func newApp() *app {
	return &app{logg: logger.New(logger.Options{ServiceName: serviceName})}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Synthetic customer datasets and LLM schema analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bootstrap(cmd.Context())
		},
	}
	root.AddCommand(
		newGenerateDataCommand(a),
		newAnalyzeSchemaCommand(a),
		newAddOrganizationCommand(a),
		newListOrganizationsCommand(a),
		newIssueTokenCommand(a),
	)
	return root
}

func (a *app) bootstrap(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		a.logg.Debug(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return nil
}

// openDB connects to the configured database and runs dev migrations.
func (a *app) openDB(ctx context.Context, res *resources) (*db.Client, error) {
	client, err := db.New(ctx, a.cfg.DB, a.logg)
	if err != nil {
		return nil, err
	}
	res.add(client.Close)

	if err := migrate.MaybeRunDev(ctx, a.cfg, a.logg, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *app) organizations(client *db.Client) (organizations.Service, error) {
	return organizations.NewService(organizations.NewRepository(client.DB()), a.logg)
}

// resources closes everything a command opened, last opened first.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *resources) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i]())
	}
	return err
}
