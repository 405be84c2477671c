package order

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/app"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
	"restaurant-orders/internal/connections/database"
	"restaurant-orders/internal/connections/rabbitmq"
	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/notificator"
	notifservice "restaurant-orders/internal/microservices/notificator/service"
	orderms "restaurant-orders/internal/microservices/order"
	"restaurant-orders/internal/microservices/order/repository"
)

// Run is the order-service role: HTTP admission and reads, websocket subscriptions,
// and fanout of the shared change stream to this replica's subscribers.
func Run(ctx context.Context, cfg *config.Config) error {
	lg := logger.New("order-service")
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

	queue, err := intake.NewRabbitQueue(rmq, cfg.Orders.MaxReceiveCount, 1, lg)
	if err != nil {
		return err
	}
	changes, err := notifservice.NewChangePublisher(rmq)
	if err != nil {
		return err
	}
	notif := notificator.New(opt.Registry, cfg.Notifications, lg)
	defer notif.Hub.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notifservice.ConsumeChanges(gctx, rmq, notif.Fanout, lg)
	})
	g.Go(func() error {
		return orderms.Run(gctx, cfg.App.Port, orderms.Deps{
			Repo:      repository.New(db, "order-service"),
			Queue:     queue,
			Changes:   changes,
			Subscribe: http.HandlerFunc(notif.Hub.ServeWS),
			Checks: map[string]func(context.Context) error{
				"database": func(ctx context.Context) error { return pingDB(ctx, db) },
				"rabbitmq": func(context.Context) error { return rmq.Ping() },
			},
			Orders: cfg.Orders,
			Logger: lg,
		})
	})
	return g.Wait()
}

func pingDB(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}
