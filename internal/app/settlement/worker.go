package settlement

import (
	"context"

	"go.uber.org/zap"

	"restaurant-orders/internal/app"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
	"restaurant-orders/internal/connections/database"
	"restaurant-orders/internal/connections/rabbitmq"
	"restaurant-orders/internal/intake"
	notifservice "restaurant-orders/internal/microservices/notificator/service"
	"restaurant-orders/internal/microservices/order/repository"
	orderservice "restaurant-orders/internal/microservices/order/service"
	settlems "restaurant-orders/internal/microservices/settlement"
	settleservice "restaurant-orders/internal/microservices/settlement/service"
)

// Run is the settlement-worker role. Status changes it commits reach subscribers
// through the change exchange.
func Run(ctx context.Context, cfg *config.Config, prefetch int) error {
	lg := logger.New("settlement-worker")
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireRabbitMQ(); err != nil {
		return err
	}

	db, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer rmq.Close()
	lg.Info("rabbitmq_connected", zap.String("host", cfg.RabbitMQ.Host), zap.String("vhost", cfg.RabbitMQ.VHost))

	opt, err := app.ConnectOptional(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer opt.Close()

	if prefetch <= 0 {
		prefetch = cfg.Settlement.Concurrency
	}
	queue, err := intake.NewRabbitQueue(rmq, cfg.Orders.MaxReceiveCount, prefetch, lg)
	if err != nil {
		return err
	}
	changes, err := notifservice.NewChangePublisher(rmq)
	if err != nil {
		return err
	}

	repo := repository.New(db, "settlement-worker")
	return settlems.Run(ctx, settlems.Deps{
		Store:           orderservice.NewStore(repo.OrderRepo, changes, lg),
		Queue:           queue,
		Locker:          opt.Locker,
		Audit:           opt.Audit,
		Outcomes:        settleservice.DefaultOutcomes,
		Settlement:      cfg.Settlement,
		MaxReceiveCount: cfg.Orders.MaxReceiveCount,
		Logger:          lg,
	})
}
