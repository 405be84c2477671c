// Package app connects infrastructure from configuration and runs one process role.
package app

import (
	"context"

	"go.uber.org/zap"

	"restaurant-orders/internal/config"
	"restaurant-orders/internal/connections/objectstore"
	redisconn "restaurant-orders/internal/connections/redis"
	notifrepo "restaurant-orders/internal/microservices/notificator/repository"
	settlerepo "restaurant-orders/internal/microservices/settlement/repository"
)

// Optional holds the infrastructure a role can run without.
type Optional struct {
	Registry notifrepo.RegistryInterface
	Locker   settlerepo.Locker
	Audit    settlerepo.AuditSink
	closers  []func() error
}

func (o *Optional) Close() {
	for _, c := range o.closers {
		_ = c()
	}
}

// ConnectOptional wires Redis and the object store when configured and falls back to
// in-process implementations otherwise.
func ConnectOptional(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*Optional, error) {
	o := &Optional{
		Registry: notifrepo.NewMemoryRegistry(),
		Locker:   settlerepo.NewMemoryLocker(),
		Audit:    settlerepo.NopAudit{},
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redisconn.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, rdb.Close)

		reg := notifrepo.NewRedisRegistry(rdb, cfg.Notifications.RegistryKey, cfg.App.NodeID)
		if err := reg.Reset(ctx); err != nil {
			o.Close()
			return nil, err
		}
		o.Registry = reg
		o.Locker = settlerepo.NewRedisLocker(rdb)
		lg.Info("redis_connected", zap.String("addr", cfg.Redis.Addr), zap.String("registry_key", reg.Key()))
	} else {
		lg.Info("redis_disabled", zap.String("fallback", "in-process registry and locks"))
	}

	if cfg.ObjectStore.Endpoint != "" {
		mc, err := objectstore.Connect(ctx, cfg.ObjectStore)
		if err != nil {
			o.Close()
			return nil, err
		}
		o.Audit = settlerepo.NewMinioAudit(mc, cfg.ObjectStore.Bucket)
		lg.Info("objectstore_connected", zap.String("endpoint", cfg.ObjectStore.Endpoint), zap.String("bucket", cfg.ObjectStore.Bucket))
	} else {
		lg.Info("objectstore_disabled", zap.String("fallback", "audit records are not kept"))
	}
	return o, nil
}
