package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
)

func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)
}

// ConnectDB opens a pgx-backed *sql.DB and pings it, retrying while the database comes up.
func ConnectDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)
	lg := logger.New("database")

	var (
		db  *sql.DB
		err error
	)
	for i := 1; i <= maxRetries; i++ {
		db, err = sql.Open("pgx", DSN(cfg))
		if err == nil {
			if cfg.MaxConns > 0 {
				db.SetMaxOpenConns(cfg.MaxConns)
			}
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = db.PingContext(pctx)
			cancel()
			if err == nil {
				lg.Info("db_connected", zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("database", cfg.Database))
				return db, nil
			}
			_ = db.Close()
		}
		lg.Warn("db_connect_retry", zap.Int("attempt", i), zap.Error(err))

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("db connect canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", maxRetries, err)
}
