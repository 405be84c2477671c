package migrate

import (
	"context"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
	"restaurant-orders/internal/connections/database"
)

// Run applies the embedded schema.
func Run(ctx context.Context, cfg *config.Config) error {
	lg := logger.New("migrate")
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	db, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	lg.Info("schema_applied")
	return nil
}
