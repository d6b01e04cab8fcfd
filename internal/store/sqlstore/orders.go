package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
)

const orderColumns = `id, product_id, quantity, status, created_at, updated_at, version`

func (q *querier) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := q.forUpdate(`
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = ?`)

	if err := q.get(ctx, order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("could not find order %d: %w", id, database.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

func (q *querier) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY id`

	if err := q.selectAll(ctx, &orders, query); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return orders, nil
}

func (q *querier) SaveOrder(ctx context.Context, o *models.Order) error {
	ts := now()

	if o.ID == 0 {
		query := `
			INSERT INTO orders (product_id, quantity, status, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, 1)
			RETURNING id`

		if err := q.get(ctx, &o.ID, query, o.ProductID, o.Quantity, o.Status, ts, ts); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		o.CreatedAt, o.UpdatedAt, o.Version = ts, ts, 1
		return nil
	}

	// product and quantity are fixed at placement
	rowsAffected, err := q.exec(ctx,
		`UPDATE orders
		 SET status = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		o.Status, ts, o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := q.exists(ctx, "orders", o.ID)
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("could not find order %d: %w", o.ID, database.ErrOrderNotFound)
		}
		return fmt.Errorf("order %d changed concurrently: %w", o.ID, database.ErrOptimisticLockFailed)
	}

	o.UpdatedAt = ts
	o.Version++
	return nil
}

func (q *querier) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := q.exec(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
