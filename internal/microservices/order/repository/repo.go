package repository

import (
	"context"
	"database/sql"

	"restaurant-orders/internal/domain"
)

// OrderRepositoryInterface is the persistence contract of the order store. Every
// write is atomic per order; status changes append to the order's history.
type OrderRepositoryInterface interface {
	// Create allocates the tenant's next order number and inserts the order in one transaction.
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	Get(ctx context.Context, restaurantID, orderID string) (domain.Order, error)
	List(ctx context.Context, restaurantID string) ([]domain.Order, error)
	// UpdateStatus changes status and updatedAt only; the current status is a conflict.
	UpdateStatus(ctx context.Context, restaurantID, orderID string, status domain.Status) (domain.Order, error)
	// Replace writes the mutable fields of order and leaves the immutable ones alone.
	Replace(ctx context.Context, order domain.Order) (domain.Order, error)
	Delete(ctx context.Context, restaurantID, orderID string) error
	// Transition moves the order to `to` only if its status is one of from. The bool
	// reports whether the write happened; otherwise the stored order is returned as is.
	Transition(ctx context.Context, restaurantID, orderID string, from []domain.Status, to domain.Status) (domain.Order, bool, error)
	// ApplyOutcome upserts the settlement result keyed by (restaurantID, orderID). It
	// is a no-op returning the stored order once the order has left settlement.
	ApplyOutcome(ctx context.Context, order domain.Order, status domain.Status) (domain.Order, bool, error)
	History(ctx context.Context, restaurantID, orderID string, limit, offset int) ([]domain.StatusChange, error)
}

type Repository struct {
	OrderRepo OrderRepositoryInterface
}

// New builds the Postgres-backed repository; actor is recorded as changed_by in the status history.
func New(db *sql.DB, actor string) *Repository {
	return &Repository{
		OrderRepo: NewOrderRepository(db, actor),
	}
}

func NewInMemory(actor string) *Repository {
	return &Repository{
		OrderRepo: NewMemoryRepository(actor),
	}
}

func contains(set []domain.Status, s domain.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// settling lists the statuses an order may hold while settlement is still open.
var settling = []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusPaymentFailure}
