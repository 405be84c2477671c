package repository

import (
	"context"
	"database/sql"
)

const nextNumberSQL = `
INSERT INTO order_counters (restaurant_id, last_number)
VALUES ($1, 1)
ON CONFLICT (restaurant_id) DO UPDATE
   SET last_number = order_counters.last_number + 1
RETURNING last_number`

// NextOrderNumber increments the tenant's counter row and returns the new value. The
// row lock taken by the upsert serializes concurrent admissions for one tenant until
// tx ends, and a rollback gives the number back.
func NextOrderNumber(ctx context.Context, tx *sql.Tx, restaurantID string) (int64, error) {
	var n int64
	if err := tx.QueryRowContext(ctx, nextNumberSQL, restaurantID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
