package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/settlement/repository"
)

const (
	DefaultWait    = 3 * time.Second
	DefaultTimeout = 15 * time.Second
)

// OrderStore is the slice of the order store settlement writes through.
type OrderStore interface {
	Transition(ctx context.Context, restaurantID, orderID string, from []domain.Status, to domain.Status) (domain.Order, bool, error)
	ApplyOutcome(ctx context.Context, o domain.Order, status domain.Status) (domain.Order, bool, error)
}

var (
	enterFrom   = []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusPaymentFailure}
	timeoutFrom = []domain.Status{domain.StatusProcessing, domain.StatusPaymentFailure}
)

type WorkflowInterface interface {
	Run(ctx context.Context, o domain.Order) (domain.Order, error)
}

type Workflow struct {
	store    OrderStore
	outcomes OutcomeSource
	audit    repository.AuditSink
	wait     time.Duration
	timeout  time.Duration
	lg       *zap.Logger
}

type WorkflowOptions struct {
	Wait     time.Duration
	Timeout  time.Duration
	Outcomes OutcomeSource
	Audit    repository.AuditSink
	Logger   *zap.Logger
}

func NewWorkflow(store OrderStore, opts WorkflowOptions) *Workflow {
	w := &Workflow{
		store:    store,
		outcomes: opts.Outcomes,
		audit:    opts.Audit,
		wait:     opts.Wait,
		timeout:  opts.Timeout,
		lg:       opts.Logger,
	}
	if w.outcomes == nil {
		w.outcomes = DefaultOutcomes
	}
	if w.audit == nil {
		w.audit = repository.NopAudit{}
	}
	if w.wait < 0 {
		w.wait = 0
	}
	if w.timeout <= 0 {
		w.timeout = DefaultTimeout
	}
	if w.lg == nil {
		w.lg = zap.NewNop()
	}
	return w
}

// Run settles one order and returns its terminal record. Starting it for an order
// that already left settlement returns the stored order untouched. When the
// overall timeout expires the order is left as payment_timeout and the error wraps
// domain.ErrWorkflowTimeout.
func (w *Workflow) Run(parent context.Context, o domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	lg := w.lg.With(zap.String("restaurant_id", o.RestaurantID), zap.String("order_id", o.OrderID))

	// Entry
	cur, entered, err := w.store.Transition(ctx, o.RestaurantID, o.OrderID, enterFrom, domain.StatusProcessing)
	if err != nil {
		return w.fail(parent, ctx, lg, o, err)
	}
	if !entered {
		lg.Info("settlement_skipped", zap.String("status", string(cur.Status)))
		return cur, nil
	}
	lg.Info("settlement_started")

	var (
		st      = stateProcessing
		outcome Outcome
		attempt int
	)
	for st != stateDone {
		switch st {
		case stateProcessing:
			attempt++
			outcome = ""
		case stateWaiting:
			if err := sleep(ctx, w.wait); err != nil {
				return w.fail(parent, ctx, lg, cur, err)
			}
		case stateDeciding:
			outcome = w.outcomes.Next(ctx, cur, attempt)
			if outcome == OutcomeTransient {
				if cur, err = w.retry(ctx, cur); err != nil {
					return w.fail(parent, ctx, lg, cur, err)
				}
				lg.Info("settlement_retry", zap.Int("attempt", attempt))
			}
		case stateApplying:
			stored, applied, err := w.store.ApplyOutcome(ctx, cur, outcome.stored())
			if err != nil {
				return w.fail(parent, ctx, lg, cur, err)
			}
			cur = stored
			lg.Info("settlement_completed",
				zap.String("outcome", string(outcome)),
				zap.String("status", string(cur.Status)),
				zap.Int("attempts", attempt),
				zap.Bool("applied", applied),
			)
			if err := w.audit.Record(ctx, cur); err != nil {
				lg.Warn("settlement_audit_failed", zap.Error(err))
			}
		}

		if st, err = next(st, outcome); err != nil {
			return cur, err
		}
	}
	return cur, nil
}

// retry records the transient failure and puts the order back into processing.
func (w *Workflow) retry(ctx context.Context, o domain.Order) (domain.Order, error) {
	failed, _, err := w.store.Transition(ctx, o.RestaurantID, o.OrderID,
		[]domain.Status{domain.StatusProcessing}, domain.StatusPaymentFailure)
	if err != nil {
		return o, err
	}
	again, _, err := w.store.Transition(ctx, o.RestaurantID, o.OrderID,
		[]domain.Status{domain.StatusPaymentFailure}, domain.StatusProcessing)
	if err != nil {
		return failed, err
	}
	return again, nil
}

// fail converts an aborted step into the returned error. Only an expired workflow
// deadline marks the order as timed out; cancellation from the caller leaves it
// for redelivery.
func (w *Workflow) fail(parent, ctx context.Context, lg *zap.Logger, o domain.Order, cause error) (domain.Order, error) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) || parent.Err() != nil {
		return o, cause
	}

	mctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
	defer cancel()
	stored, _, err := w.store.Transition(mctx, o.RestaurantID, o.OrderID, timeoutFrom, domain.StatusPaymentTimeout)
	if err != nil {
		lg.Error("settlement_timeout_mark_failed", zap.Error(err))
		stored = o
	}
	lg.Error("settlement_timed_out", zap.Duration("timeout", w.timeout), zap.String("status", string(stored.Status)))
	return stored, fmt.Errorf("%w: order %s after %s", domain.ErrWorkflowTimeout, o.OrderID, w.timeout)
}

// sleep waits d or until ctx is done, without holding a worker thread.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
