package migrate

import (
	"context"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/db"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when running in dev with
// SYMMETRI_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.App.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "extract sql.DB")
	}
	m, err := New(sqlDB)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Debug(ctx, "migrate.autorun.started")

	results, err := m.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "migrate.autorun.completed")
	return nil
}
