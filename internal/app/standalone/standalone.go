// Package standalone runs every role in one process on in-memory infrastructure.
package standalone

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/common/httpx"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/notificator"
	notifservice "restaurant-orders/internal/microservices/notificator/service"
	"restaurant-orders/internal/microservices/order"
	"restaurant-orders/internal/microservices/order/repository"
	orderservice "restaurant-orders/internal/microservices/order/service"
	"restaurant-orders/internal/microservices/settlement"
	settlerepo "restaurant-orders/internal/microservices/settlement/repository"
	settleservice "restaurant-orders/internal/microservices/settlement/service"
)

type System struct {
	Handler     http.Handler
	Repo        *repository.Repository
	Queue       *intake.MemoryQueue
	Notificator *notificator.Notificator
	Audit       *settlerepo.MemoryAudit

	settlement settlement.Deps
	stop       context.CancelFunc
	stopped    chan struct{}
}

// Build wires the in-memory system. The store hook hands images to an in-process
// publisher that fans them out off the request path; Close stops it.
func Build(cfg *config.Config, outcomes settleservice.OutcomeSource, lg *zap.Logger) *System {
	if lg == nil {
		lg = zap.NewNop()
	}
	if outcomes == nil {
		outcomes = settleservice.DefaultOutcomes
	}

	repo := repository.NewInMemory("standalone")
	queue := intake.NewMemoryQueue()
	notif := notificator.New(nil, cfg.Notifications, lg)
	audit := settlerepo.NewMemoryAudit()
	changes := notifservice.NewAsyncPublisher(notif.Fanout, 0, lg)
	ctx, stop := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		changes.Run(ctx)
	}()

	h, _ := order.Routes(order.Deps{
		Repo:      repo,
		Queue:     queue,
		Changes:   changes,
		Subscribe: http.HandlerFunc(notif.Hub.ServeWS),
		Orders:    cfg.Orders,
		Logger:    lg,
	})

	return &System{
		Handler:     h,
		Repo:        repo,
		Queue:       queue,
		Notificator: notif,
		Audit:       audit,
		settlement: settlement.Deps{
			Store:           orderservice.NewStore(repo.OrderRepo, changes, lg),
			Queue:           queue,
			Locker:          settlerepo.NewMemoryLocker(),
			Audit:           audit,
			Outcomes:        outcomes,
			Settlement:      cfg.Settlement,
			MaxReceiveCount: cfg.Orders.MaxReceiveCount,
			Logger:          lg,
		},
		stop:    stop,
		stopped: stopped,
	}
}

// Settle runs the settlement worker until ctx is done.
func (s *System) Settle(ctx context.Context) error {
	return settlement.Run(ctx, s.settlement)
}

func (s *System) Close() {
	s.stop()
	<-s.stopped
	s.Notificator.Hub.Close()
}

func Run(ctx context.Context, cfg *config.Config) error {
	lg := logger.New("standalone")
	sys := Build(cfg, nil, lg)
	defer sys.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sys.Settle(gctx) })
	g.Go(func() error {
		lg.Info("service_started", zap.Int("port", cfg.App.Port))
		return httpx.New(":"+strconv.Itoa(cfg.App.Port), sys.Handler).Run(gctx)
	})
	return g.Wait()
}
