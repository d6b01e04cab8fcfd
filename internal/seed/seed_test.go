package seed

import (
	"context"
	"testing"

	"github.com/safar/shop-orders/internal/catalog"
	"github.com/safar/shop-orders/internal/fulfillment"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store/memstore"
	"go.uber.org/zap/zaptest"
)

func TestPreload(t *testing.T) {
	repo := memstore.New()
	logger := zaptest.NewLogger(t)
	products := catalog.NewService(repo, nil, logger, nil)
	orders := fulfillment.NewService(repo, nil, logger, nil)
	ctx := context.Background()

	if err := Preload(ctx, products, orders, logger); err != nil {
		t.Fatalf("Preload: %v", err)
	}

	list, _ := products.ListProducts(ctx)
	if len(list) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(list))
	}
	if list[0].Name != "Milk" || list[0].Stock != 2 {
		t.Errorf("Expected Milk with one unit reserved, got %+v", list[0])
	}
	if list[1].Name != "Bread" || list[1].Stock != 6 {
		t.Errorf("Unexpected Bread: %+v", list[1])
	}

	placed, _ := orders.ListOrders(ctx)
	if len(placed) != 1 || placed[0].ProductID != list[0].ID || placed[0].Status != models.OrderStatusInProgress {
		t.Errorf("Expected one in-progress Milk order, got %+v", placed)
	}

	if err := Preload(ctx, products, orders, logger); err != nil {
		t.Fatalf("Second preload: %v", err)
	}
	list, _ = products.ListProducts(ctx)
	if len(list) != 2 {
		t.Errorf("Preload must not duplicate the catalog, got %d products", len(list))
	}
}
