package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
)

const productColumns = `id, name, price, stock, created_at, updated_at, version`

func (q *querier) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := q.forUpdate(`
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ?`)

	if err := q.get(ctx, product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("could not find product %d: %w", id, database.ErrProductNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func (q *querier) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY id`

	if err := q.selectAll(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return products, nil
}

func (q *querier) SaveProduct(ctx context.Context, p *models.Product) error {
	ts := now()

	if p.ID == 0 {
		query := `
			INSERT INTO products (name, price, stock, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, 1)
			RETURNING id`

		if err := q.get(ctx, &p.ID, query, p.Name, p.Price, p.Stock, ts, ts); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		p.CreatedAt, p.UpdatedAt, p.Version = ts, ts, 1
		return nil
	}

	rowsAffected, err := q.exec(ctx,
		`UPDATE products
		 SET name = ?, price = ?, stock = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		p.Name, p.Price, p.Stock, ts, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := q.exists(ctx, "products", p.ID)
		if err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("could not find product %d: %w", p.ID, database.ErrProductNotFound)
		}
		return fmt.Errorf("product %d changed concurrently: %w", p.ID, database.ErrOptimisticLockFailed)
	}

	p.UpdatedAt = ts
	p.Version++
	return nil
}

func (q *querier) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := q.exec(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}
