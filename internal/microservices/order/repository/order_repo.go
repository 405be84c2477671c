package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"restaurant-orders/internal/domain"
)

const orderColumns = `restaurant_id, order_id, order_number, menu_id, items, total, status, created_at, updated_at`

const uniqueViolation = "23505"

type OrderRepository struct {
	db    *sql.DB
	actor string
}

func NewOrderRepository(db *sql.DB, actor string) OrderRepositoryInterface {
	return &OrderRepository{db: db, actor: actor}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o      domain.Order
		items  []byte
		status string
	)
	if err := row.Scan(&o.RestaurantID, &o.OrderID, &o.OrderNumber, &o.MenuID, &items, &o.Total, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &o.OrderItems); err != nil {
		return domain.Order{}, fmt.Errorf("decode items of order %s: %w", o.OrderID, err)
	}
	o.Status = domain.Status(status)
	return o, nil
}

func notFound(restaurantID, orderID string) error {
	return fmt.Errorf("%w: %s/%s", domain.ErrNotFound, restaurantID, orderID)
}

func (r *OrderRepository) Create(ctx context.Context, o domain.Order) (created domain.Order, err error) {
	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return domain.Order{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.Transient("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 1. Allocate the number
	num, err := NextOrderNumber(ctx, tx, o.RestaurantID)
	if err != nil {
		return domain.Order{}, domain.Transient("allocate order number", err)
	}
	o.OrderNumber = num

	// 2. Insert order
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.RestaurantID, o.OrderID, o.OrderNumber, o.MenuID, items, o.Total, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Order{}, domain.Conflictf("order %s already exists", o.OrderID)
		}
		return domain.Order{}, domain.Transient("insert order", err)
	}

	// 3. History
	if err = r.logStatus(ctx, tx, o.RestaurantID, o.OrderID, o.Status); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, domain.Transient("commit", err)
	}
	return o, nil
}

func (r *OrderRepository) Get(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE restaurant_id = $1 AND order_id = $2
	`, restaurantID, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, notFound(restaurantID, orderID)
	}
	if err != nil {
		return domain.Order{}, domain.Transient("get order", err)
	}
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE restaurant_id = $1
		ORDER BY order_number ASC
	`, restaurantID)
	if err != nil {
		return nil, domain.Transient("list orders", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Transient("list orders", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("list orders", err)
	}
	return out, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, restaurantID, orderID string, status domain.Status) (updated domain.Order, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.Transient("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cur, err := lockOrder(ctx, tx, restaurantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if cur.Status == status {
		return domain.Order{}, domain.Conflictf("order %s is already %s", orderID, status)
	}

	if updated, err = r.setStatus(ctx, tx, restaurantID, orderID, status); err != nil {
		return domain.Order{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Order{}, domain.Transient("commit", err)
	}
	return updated, nil
}

func (r *OrderRepository) Replace(ctx context.Context, o domain.Order) (updated domain.Order, err error) {
	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return domain.Order{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.Transient("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cur, err := lockOrder(ctx, tx, o.RestaurantID, o.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err = scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders
		   SET status = $3, items = $4, total = $5, updated_at = GREATEST(updated_at, now())
		 WHERE restaurant_id = $1 AND order_id = $2
		RETURNING `+orderColumns, o.RestaurantID, o.OrderID, string(o.Status), items, o.Total))
	if err != nil {
		return domain.Order{}, domain.Transient("replace order", err)
	}
	if cur.Status != updated.Status {
		if err = r.logStatus(ctx, tx, o.RestaurantID, o.OrderID, updated.Status); err != nil {
			return domain.Order{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, domain.Transient("commit", err)
	}
	return updated, nil
}

func (r *OrderRepository) Delete(ctx context.Context, restaurantID, orderID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE restaurant_id = $1 AND order_id = $2`, restaurantID, orderID); err != nil {
		return domain.Transient("delete order", err)
	}
	return nil
}

func (r *OrderRepository) Transition(ctx context.Context, restaurantID, orderID string, from []domain.Status, to domain.Status) (out domain.Order, applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, false, domain.Transient("begin transaction", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	cur, err := lockOrder(ctx, tx, restaurantID, orderID)
	if err != nil {
		return domain.Order{}, false, err
	}
	if !contains(from, cur.Status) {
		return cur, false, nil
	}

	if out, err = r.setStatus(ctx, tx, restaurantID, orderID, to); err != nil {
		return domain.Order{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Order{}, false, domain.Transient("commit", err)
	}
	return out, true, nil
}

func (r *OrderRepository) ApplyOutcome(ctx context.Context, o domain.Order, status domain.Status) (out domain.Order, applied bool, err error) {
	items, err := json.Marshal(o.OrderItems)
	if err != nil {
		return domain.Order{}, false, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, false, domain.Transient("begin transaction", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	out, err = scanOrder(tx.QueryRowContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (restaurant_id, order_id) DO UPDATE
		   SET status = EXCLUDED.status, updated_at = GREATEST(orders.updated_at, now())
		 WHERE orders.status IN ('pending', 'processing', 'payment_failure')
		RETURNING `+orderColumns,
		o.RestaurantID, o.OrderID, o.OrderNumber, o.MenuID, items, o.Total, string(status), o.CreatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		_ = tx.Rollback()
		stored, gerr := r.Get(ctx, o.RestaurantID, o.OrderID)
		return stored, false, gerr
	}
	if err != nil {
		return domain.Order{}, false, domain.Transient("apply settlement outcome", err)
	}

	if err = r.logStatus(ctx, tx, o.RestaurantID, o.OrderID, status); err != nil {
		return domain.Order{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Order{}, false, domain.Transient("commit", err)
	}
	return out, true, nil
}

func (r *OrderRepository) History(ctx context.Context, restaurantID, orderID string, limit, offset int) ([]domain.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, changed_by, changed_at
		FROM order_status_log
		WHERE restaurant_id = $1 AND order_id = $2
		ORDER BY changed_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`, restaurantID, orderID, limit, offset)
	if err != nil {
		return nil, domain.Transient("order history", err)
	}
	defer rows.Close()

	out := make([]domain.StatusChange, 0)
	for rows.Next() {
		var (
			c      domain.StatusChange
			status string
		)
		if err := rows.Scan(&status, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, domain.Transient("order history", err)
		}
		c.Status = domain.Status(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("order history", err)
	}
	return out, nil
}

// lockOrder reads the order and holds its row lock until tx ends.
func lockOrder(ctx context.Context, tx *sql.Tx, restaurantID, orderID string) (domain.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE restaurant_id = $1 AND order_id = $2
		FOR UPDATE
	`, restaurantID, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, notFound(restaurantID, orderID)
	}
	if err != nil {
		return domain.Order{}, domain.Transient("lock order", err)
	}
	return o, nil
}

func (r *OrderRepository) setStatus(ctx context.Context, tx *sql.Tx, restaurantID, orderID string, status domain.Status) (domain.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders
		   SET status = $3, updated_at = GREATEST(updated_at, now())
		 WHERE restaurant_id = $1 AND order_id = $2
		RETURNING `+orderColumns, restaurantID, orderID, string(status)))
	if err != nil {
		return domain.Order{}, domain.Transient("update status", err)
	}
	if err := r.logStatus(ctx, tx, restaurantID, orderID, status); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) logStatus(ctx context.Context, tx *sql.Tx, restaurantID, orderID string, status domain.Status) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_log (restaurant_id, order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, now())
	`, restaurantID, orderID, string(status), r.actor)
	if err != nil {
		return domain.Transient("insert status log", err)
	}
	return nil
}
