// Package seed loads the demo catalog into an empty store.
package seed

import (
	"context"
	"fmt"

	"github.com/safar/shop-orders/internal/catalog"
	"github.com/safar/shop-orders/internal/fulfillment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type product struct {
	name  string
	price int64
	stock int
}

var demoProducts = []product{
	{name: "Milk", price: 5, stock: 3},
	{name: "Bread", price: 1, stock: 6},
}

// Preload adds the demo products and places one order for a unit of the
// first. It does nothing when the catalog already has products.
func Preload(ctx context.Context, products *catalog.Service, orders *fulfillment.Service, logger *zap.Logger) error {
	existing, err := products.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("Catalog not empty, skipping seed data", zap.Int("products", len(existing)))
		return nil
	}

	var firstID int64
	for i, p := range demoProducts {
		added, err := products.AddProduct(ctx, p.name, decimal.NewFromInt(p.price), p.stock)
		if err != nil {
			return fmt.Errorf("add %s: %w", p.name, err)
		}
		if i == 0 {
			firstID = added.ID
		}
		logger.Info("Preloading product", zap.Int64("product_id", added.ID), zap.String("name", added.Name))
	}

	order, err := orders.PlaceOrder(ctx, fulfillment.PlaceOrderRequest{ProductID: firstID, Quantity: 1})
	if err != nil {
		return fmt.Errorf("place demo order: %w", err)
	}
	logger.Info("Preloading order", zap.Int64("order_id", order.ID))

	return nil
}
