package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/intake"
	"restaurant-orders/internal/microservices/settlement/repository"
)

// Worker triggers one workflow run per intake message.
type Worker struct {
	workflow WorkflowInterface
	locker   repository.Locker
	lockTTL  time.Duration
	lg       *zap.Logger
}

func NewWorker(workflow WorkflowInterface, locker repository.Locker, lockTTL time.Duration, lg *zap.Logger) *Worker {
	if locker == nil {
		locker = repository.NewMemoryLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 2 * DefaultTimeout
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Worker{workflow: workflow, locker: locker, lockTTL: lockTTL, lg: lg}
}

// Handle is an intake.Handler. Timed-out settlements are dead-lettered; infrastructure
// errors are returned so the message is redelivered.
func (w *Worker) Handle(ctx context.Context, msg domain.IntakeMessage) error {
	o := msg.Order
	lg := w.lg.With(
		zap.String("restaurant_id", o.RestaurantID),
		zap.String("order_id", o.OrderID),
		zap.Int("receive_count", msg.ReceiveCount),
	)

	release, ok, err := w.locker.Acquire(ctx, repository.LockKey(o.RestaurantID, o.OrderID), w.lockTTL)
	if err != nil {
		return domain.Transient("acquire settlement lock", err)
	}
	if !ok {
		lg.Info("settlement_duplicate_skipped")
		return nil
	}
	defer release()

	_, err = w.workflow.Run(ctx, o)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrWorkflowTimeout):
		return fmt.Errorf("%w: %w", intake.ErrDeadLetter, err)
	case errors.Is(err, domain.ErrNotFound):
		lg.Warn("settlement_order_missing")
		return nil
	default:
		lg.Warn("settlement_failed", zap.Error(err))
		return err
	}
}

// Run consumes the intake queue until ctx is done.
func (w *Worker) Run(ctx context.Context, q intake.Queue, concurrency, maxReceiveCount int) error {
	w.lg.Info("settlement_worker_started", zap.Int("concurrency", concurrency))
	err := intake.Consume(ctx, q, intake.ConsumeOptions{
		Concurrency:     concurrency,
		MaxReceiveCount: maxReceiveCount,
		Logger:          w.lg,
	}, w.Handle)
	w.lg.Info("settlement_worker_stopped")
	return err
}
