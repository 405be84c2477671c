package settlement

import (
	"context"

	"go.uber.org/zap"

	"restaurant-orders/internal/config"
	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/settlement/repository"
	"restaurant-orders/internal/microservices/settlement/service"
)

type Deps struct {
	Store           service.OrderStore
	Queue           intake.Queue
	Locker          repository.Locker
	Audit           repository.AuditSink
	Outcomes        service.OutcomeSource
	Settlement      config.SettlementConfig
	MaxReceiveCount int
	Logger          *zap.Logger
}

// Run consumes intake messages and settles each order until ctx is done.
func Run(ctx context.Context, deps Deps) error {
	wf := service.NewWorkflow(deps.Store, service.WorkflowOptions{
		Wait:     deps.Settlement.Wait,
		Timeout:  deps.Settlement.Timeout,
		Outcomes: deps.Outcomes,
		Audit:    deps.Audit,
		Logger:   deps.Logger,
	})
	w := service.NewWorker(wf, deps.Locker, deps.Settlement.LockTTL, deps.Logger)
	return w.Run(ctx, deps.Queue, deps.Settlement.Concurrency, deps.MaxReceiveCount)
}
