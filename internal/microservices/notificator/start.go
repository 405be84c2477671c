package notificator

import (
	"go.uber.org/zap"

	"restaurant-orders/internal/config"
	"restaurant-orders/internal/microservices/notificator/handlers"
	"restaurant-orders/internal/microservices/notificator/repository"
	"restaurant-orders/internal/microservices/notificator/service"
)

// Notificator bundles the live-subscription pieces of one process: the websocket hub
// is both the GET /ws handler and the transport the fanout delivers through.
type Notificator struct {
	Registry repository.RegistryInterface
	Hub      *handlers.Hub
	Fanout   *service.Fanout
}

func New(registry repository.RegistryInterface, cfg config.NotificationsConfig, lg *zap.Logger) *Notificator {
	if registry == nil {
		registry = repository.NewMemoryRegistry()
	}
	hub := handlers.NewHub(registry, cfg.WriteTimeout, cfg.PingInterval, lg)
	return &Notificator{
		Registry: registry,
		Hub:      hub,
		Fanout:   service.NewFanout(registry, hub, cfg.Concurrency, lg),
	}
}
