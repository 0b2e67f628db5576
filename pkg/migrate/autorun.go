package migrate

import (
	"context"
	"fmt"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/db"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations on startup when running in dev
// with the auto-migrate flag enabled. Production deploys run cmd/migrate
// explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "applying dev migrations")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "dev migrations applied")
	return nil
}
