package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"restaurant-orders/internal/domain"
)

type orderKey struct {
	restaurantID string
	orderID      string
}

// MemoryRepository keeps orders in process. It backs the standalone mode and tests and
// follows the same transition rules as the Postgres repository.
type MemoryRepository struct {
	mu       sync.Mutex
	actor    string
	orders   map[orderKey]domain.Order
	counters map[string]int64
	history  map[orderKey][]domain.StatusChange
	now      func() time.Time
}

func NewMemoryRepository(actor string) *MemoryRepository {
	return &MemoryRepository{
		actor:    actor,
		orders:   make(map[orderKey]domain.Order),
		counters: make(map[string]int64),
		history:  make(map[orderKey][]domain.StatusChange),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.Transient("create order", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := orderKey{o.RestaurantID, o.OrderID}
	if _, ok := r.orders[k]; ok {
		return domain.Order{}, domain.Conflictf("order %s already exists", o.OrderID)
	}
	r.counters[o.RestaurantID]++
	o.OrderNumber = r.counters[o.RestaurantID]
	r.orders[k] = o.Clone()
	r.logStatus(k, o.Status)
	return o.Clone(), nil
}

func (r *MemoryRepository) Get(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.Transient("get order", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderKey{restaurantID, orderID}]
	if !ok {
		return domain.Order{}, notFound(restaurantID, orderID)
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("list orders", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Order, 0)
	for k, o := range r.orders {
		if k.restaurantID == restaurantID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, restaurantID, orderID string, status domain.Status) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.Transient("update status", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := orderKey{restaurantID, orderID}
	o, ok := r.orders[k]
	if !ok {
		return domain.Order{}, notFound(restaurantID, orderID)
	}
	if o.Status == status {
		return domain.Order{}, domain.Conflictf("order %s is already %s", orderID, status)
	}
	return r.setStatus(k, o, status), nil
}

func (r *MemoryRepository) Replace(ctx context.Context, in domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.Transient("replace order", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := orderKey{in.RestaurantID, in.OrderID}
	o, ok := r.orders[k]
	if !ok {
		return domain.Order{}, notFound(in.RestaurantID, in.OrderID)
	}
	prev := o.Status
	o.Status = in.Status
	o.OrderItems = in.Clone().OrderItems
	o.Total = in.Total
	o.UpdatedAt = r.touch(o.UpdatedAt)
	r.orders[k] = o
	if prev != o.Status {
		r.logStatus(k, o.Status)
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, restaurantID, orderID string) error {
	if err := ctx.Err(); err != nil {
		return domain.Transient("delete order", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.orders, orderKey{restaurantID, orderID})
	return nil
}

func (r *MemoryRepository) Transition(ctx context.Context, restaurantID, orderID string, from []domain.Status, to domain.Status) (domain.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, false, domain.Transient("transition order", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := orderKey{restaurantID, orderID}
	o, ok := r.orders[k]
	if !ok {
		return domain.Order{}, false, notFound(restaurantID, orderID)
	}
	if !contains(from, o.Status) {
		return o.Clone(), false, nil
	}
	return r.setStatus(k, o, to), true, nil
}

func (r *MemoryRepository) ApplyOutcome(ctx context.Context, in domain.Order, status domain.Status) (domain.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, false, domain.Transient("apply settlement outcome", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := orderKey{in.RestaurantID, in.OrderID}
	o, ok := r.orders[k]
	if !ok {
		o = in.Clone()
		o.Status = status
		o.UpdatedAt = r.now()
		r.orders[k] = o
		r.logStatus(k, status)
		return o.Clone(), true, nil
	}
	if !contains(settling, o.Status) {
		return o.Clone(), false, nil
	}
	return r.setStatus(k, o, status), true, nil
}

func (r *MemoryRepository) History(ctx context.Context, restaurantID, orderID string, limit, offset int) ([]domain.StatusChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("order history", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.history[orderKey{restaurantID, orderID}]
	if offset >= len(h) {
		return []domain.StatusChange{}, nil
	}
	h = h[offset:]
	if limit > 0 && limit < len(h) {
		h = h[:limit]
	}
	out := make([]domain.StatusChange, len(h))
	copy(out, h)
	return out, nil
}

// setStatus must be called with mu held.
func (r *MemoryRepository) setStatus(k orderKey, o domain.Order, status domain.Status) domain.Order {
	o.Status = status
	o.UpdatedAt = r.touch(o.UpdatedAt)
	r.orders[k] = o
	r.logStatus(k, status)
	return o.Clone()
}

func (r *MemoryRepository) touch(prev time.Time) time.Time {
	now := r.now()
	if now.Before(prev) {
		return prev
	}
	return now
}

func (r *MemoryRepository) logStatus(k orderKey, status domain.Status) {
	r.history[k] = append(r.history[k], domain.StatusChange{Status: status, ChangedBy: r.actor, ChangedAt: r.now()})
}
