package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/order/repository"
)

// ChangePublisher receives the post-commit image of every order mutation.
type ChangePublisher interface {
	Publish(ctx context.Context, order domain.Order) error
}

// Store is the authoritative order record. It validates before touching the
// repository and reports every committed mutation to the change publisher.
type Store struct {
	repo    repository.OrderRepositoryInterface
	changes ChangePublisher
	lg      *zap.Logger
	now     func() time.Time
}

func NewStore(repo repository.OrderRepositoryInterface, changes ChangePublisher, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Store{
		repo:    repo,
		changes: changes,
		lg:      lg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create admits a new order for restaurantID with the given initial status.
func (s *Store) Create(ctx context.Context, restaurantID string, o domain.Order, initial domain.Status) (domain.Order, error) {
	if err := domain.ValidateNew(restaurantID, o); err != nil {
		return domain.Order{}, err
	}
	now := s.now()
	o.OrderID = uuid.NewString()
	o.OrderNumber = 0
	o.Status = initial
	o.CreatedAt, o.UpdatedAt = now, now

	created, err := s.repo.Create(ctx, o)
	if err != nil {
		return domain.Order{}, err
	}
	s.publish(ctx, created)
	return created, nil
}

func (s *Store) Get(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	return s.repo.Get(ctx, restaurantID, orderID)
}

func (s *Store) List(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	return s.repo.List(ctx, restaurantID)
}

func (s *Store) History(ctx context.Context, restaurantID, orderID string, limit, offset int) ([]domain.StatusChange, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.History(ctx, restaurantID, orderID, limit, offset)
}

func (s *Store) UpdateStatus(ctx context.Context, restaurantID, orderID string, p domain.StatusPatch) (domain.Order, error) {
	if err := p.Validate(restaurantID); err != nil {
		return domain.Order{}, err
	}
	if orderID != "" && p.OrderID != orderID {
		return domain.Order{}, domain.Validationf("incorrect orderID")
	}
	if !p.Status.Valid() {
		return domain.Order{}, domain.Conflictf("status %q does not exist", p.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, p.RestaurantID, p.OrderID, p.Status)
	if err != nil {
		return domain.Order{}, err
	}
	s.publish(ctx, updated)
	return updated, nil
}

func (s *Store) Replace(ctx context.Context, restaurantID, orderID string, o domain.Order) (domain.Order, error) {
	if err := domain.ValidateReplace(restaurantID, o); err != nil {
		return domain.Order{}, err
	}
	if o.OrderID != orderID {
		return domain.Order{}, domain.Validationf("incorrect orderID")
	}

	updated, err := s.repo.Replace(ctx, o)
	if err != nil {
		return domain.Order{}, err
	}
	s.publish(ctx, updated)
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, restaurantID, orderID string) error {
	return s.repo.Delete(ctx, restaurantID, orderID)
}

// Transition is the conditional status write used by settlement.
func (s *Store) Transition(ctx context.Context, restaurantID, orderID string, from []domain.Status, to domain.Status) (domain.Order, bool, error) {
	o, applied, err := s.repo.Transition(ctx, restaurantID, orderID, from, to)
	if err != nil {
		return domain.Order{}, false, err
	}
	if applied {
		s.publish(ctx, o)
	}
	return o, applied, nil
}

// ApplyOutcome upserts the terminal settlement status.
func (s *Store) ApplyOutcome(ctx context.Context, o domain.Order, status domain.Status) (domain.Order, bool, error) {
	stored, applied, err := s.repo.ApplyOutcome(ctx, o, status)
	if err != nil {
		return domain.Order{}, false, err
	}
	if applied {
		s.publish(ctx, stored)
	}
	return stored, applied, nil
}

func (s *Store) publish(ctx context.Context, o domain.Order) {
	if s.changes == nil {
		return
	}
	if err := s.changes.Publish(context.WithoutCancel(ctx), o); err != nil {
		s.lg.Warn("order_change_publish_failed",
			zap.String("order_id", o.OrderID),
			zap.String("status", string(o.Status)),
			zap.Error(err),
		)
	}
}
