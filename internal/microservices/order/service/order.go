package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/intake"
)

type OrderServiceInterface interface {
	AddOrder(ctx context.Context, restaurantID string, o domain.Order) (domain.Order, error)
	GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, restaurantID string) ([]domain.Order, error)
	OrderHistory(ctx context.Context, restaurantID, orderID string, limit, offset int) ([]domain.StatusChange, error)
	UpdateStatus(ctx context.Context, restaurantID, orderID string, p domain.StatusPatch) (domain.Order, error)
	ReplaceOrder(ctx context.Context, restaurantID, orderID string, o domain.Order) (domain.Order, error)
	DeleteOrder(ctx context.Context, restaurantID, orderID string) error
}

// handoffTimeout bounds the enqueue and its compensation once the order is committed.
const handoffTimeout = 10 * time.Second

type OrderService struct {
	store          *Store
	queue          intake.Queue
	skipSettlement bool
	lg             *zap.Logger
}

// NewOrderService wires admission. With skipSettlement set, orders are stored as
// waiting and never enqueued.
func NewOrderService(store *Store, queue intake.Queue, skipSettlement bool, lg *zap.Logger) OrderServiceInterface {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &OrderService{store: store, queue: queue, skipSettlement: skipSettlement, lg: lg}
}

func (s *OrderService) AddOrder(ctx context.Context, restaurantID string, o domain.Order) (domain.Order, error) {
	lg := logger.FromCtx(ctx, s.lg)

	initial := domain.StatusPending
	if s.skipSettlement {
		initial = domain.StatusWaiting
	}

	// 1. Number and persist
	created, err := s.store.Create(ctx, restaurantID, o, initial)
	if err != nil {
		return domain.Order{}, err
	}

	// 2. Hand off to settlement. The order is committed, so a client hang-up must not
	// abort the enqueue; an order that cannot be enqueued is removed again.
	if !s.skipSettlement {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), handoffTimeout)
		defer cancel()
		if err := s.queue.Enqueue(bg, created); err != nil {
			lg.Error("order_enqueue_failed",
				zap.String("restaurant_id", created.RestaurantID),
				zap.String("order_id", created.OrderID),
				zap.Error(err),
			)
			if derr := s.store.Delete(bg, created.RestaurantID, created.OrderID); derr != nil {
				lg.Error("order_admission_rollback_failed",
					zap.String("restaurant_id", created.RestaurantID),
					zap.String("order_id", created.OrderID),
					zap.Error(derr),
				)
			}
			return domain.Order{}, err
		}
	}

	lg.Info("order_admitted",
		zap.String("restaurant_id", created.RestaurantID),
		zap.String("order_id", created.OrderID),
		zap.Int64("order_number", created.OrderNumber),
		zap.String("status", string(created.Status)),
	)
	return created, nil
}

func (s *OrderService) GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	return s.store.Get(ctx, restaurantID, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	return s.store.List(ctx, restaurantID)
}

func (s *OrderService) OrderHistory(ctx context.Context, restaurantID, orderID string, limit, offset int) ([]domain.StatusChange, error) {
	if _, err := s.store.Get(ctx, restaurantID, orderID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, restaurantID, orderID, limit, offset)
}

func (s *OrderService) UpdateStatus(ctx context.Context, restaurantID, orderID string, p domain.StatusPatch) (domain.Order, error) {
	updated, err := s.store.UpdateStatus(ctx, restaurantID, orderID, p)
	if err != nil {
		return domain.Order{}, err
	}
	logger.FromCtx(ctx, s.lg).Info("order_status_updated",
		zap.String("restaurant_id", updated.RestaurantID),
		zap.String("order_id", updated.OrderID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *OrderService) ReplaceOrder(ctx context.Context, restaurantID, orderID string, o domain.Order) (domain.Order, error) {
	return s.store.Replace(ctx, restaurantID, orderID, o)
}

func (s *OrderService) DeleteOrder(ctx context.Context, restaurantID, orderID string) error {
	if err := s.store.Delete(ctx, restaurantID, orderID); err != nil {
		return err
	}
	logger.FromCtx(ctx, s.lg).Info("order_deleted",
		zap.String("restaurant_id", restaurantID),
		zap.String("order_id", orderID),
	)
	return nil
}
