// Package storetest holds the behaviour every store.Repository backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
	"github.com/shopspring/decimal"
)

// Factory returns an empty repository for a single test.
type Factory func(t *testing.T) store.Repository

func Run(t *testing.T, newRepo Factory) {
	t.Run("ProductLifecycle", func(t *testing.T) { testProductLifecycle(t, newRepo(t)) })
	t.Run("ProductOptimisticLock", func(t *testing.T) { testProductOptimisticLock(t, newRepo(t)) })
	t.Run("OrderLifecycle", func(t *testing.T) { testOrderLifecycle(t, newRepo(t)) })
	t.Run("ListOrdersByID", func(t *testing.T) { testListOrdersByID(t, newRepo(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newRepo(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newRepo(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newRepo(t)) })
	t.Run("TxReadsOwnWrites", func(t *testing.T) { testTxReadsOwnWrites(t, newRepo(t)) })
	t.Run("ConcurrentStockDecrement", func(t *testing.T) { testConcurrentStockDecrement(t, newRepo(t)) })
}

func MustCreateProduct(t *testing.T, repo store.Products, name string, price int64, stock int) *models.Product {
	t.Helper()

	p := &models.Product{Name: name, Price: decimal.NewFromInt(price), Stock: stock}
	if err := repo.SaveProduct(context.Background(), p); err != nil {
		t.Fatalf("Create product %s: %v", name, err)
	}
	return p
}

func testProductLifecycle(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	milk := MustCreateProduct(t, repo, "Milk", 5, 3)
	if milk.ID == 0 {
		t.Fatal("Product ID should not be 0")
	}
	if milk.Version != 1 {
		t.Errorf("Expected version 1, got %d", milk.Version)
	}

	got, err := repo.GetProduct(ctx, milk.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if got.Name != "Milk" || got.Stock != 3 || !got.Price.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Unexpected product: %+v", got)
	}

	got.Name = "Oat Milk"
	got.Stock = 10
	if err := repo.SaveProduct(ctx, got); err != nil {
		t.Fatalf("Update product: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Expected version 2 after update, got %d", got.Version)
	}

	reread, err := repo.GetProduct(ctx, milk.ID)
	if err != nil {
		t.Fatalf("Get updated product: %v", err)
	}
	if reread.Name != "Oat Milk" || reread.Stock != 10 {
		t.Errorf("Update not persisted: %+v", reread)
	}

	MustCreateProduct(t, repo, "Bread", 1, 6)
	products, err := repo.ListProducts(ctx)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if len(products) != 2 || products[0].ID >= products[1].ID {
		t.Errorf("Expected 2 products in id order, got %+v", products)
	}

	if err := repo.DeleteProduct(ctx, milk.ID); err != nil {
		t.Fatalf("Delete product: %v", err)
	}
	if _, err := repo.GetProduct(ctx, milk.ID); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound after delete, got %v", err)
	}
	if err := repo.DeleteProduct(ctx, milk.ID); err != nil {
		t.Errorf("Deleting a missing product should succeed, got %v", err)
	}

	missing := &models.Product{ID: milk.ID, Name: "Ghost", Version: 2}
	if err := repo.SaveProduct(ctx, missing); !errors.Is(err, database.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound updating a deleted product, got %v", err)
	}
}

func testProductOptimisticLock(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	p := MustCreateProduct(t, repo, "Milk", 5, 3)

	first, _ := repo.GetProduct(ctx, p.ID)
	second, _ := repo.GetProduct(ctx, p.ID)

	first.Stock = 1
	if err := repo.SaveProduct(ctx, first); err != nil {
		t.Fatalf("First update: %v", err)
	}

	second.Stock = 2
	err := repo.SaveProduct(ctx, second)
	if !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected ErrOptimisticLockFailed for stale version, got %v", err)
	}

	got, _ := repo.GetProduct(ctx, p.ID)
	if got.Stock != 1 {
		t.Errorf("Stale update overwrote stock: %d", got.Stock)
	}
}

func testOrderLifecycle(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	if _, err := repo.GetOrder(ctx, 42); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}

	order := &models.Order{ProductID: 7, Quantity: 2, Status: models.OrderStatusInProgress}
	if err := repo.SaveOrder(ctx, order); err != nil {
		t.Fatalf("Create order: %v", err)
	}
	if order.ID == 0 || order.Version != 1 {
		t.Fatalf("Unexpected created order: %+v", order)
	}

	order.Status = models.OrderStatusCompleted
	if err := repo.SaveOrder(ctx, order); err != nil {
		t.Fatalf("Update order: %v", err)
	}

	got, err := repo.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if got.Status != models.OrderStatusCompleted || got.ProductID != 7 || got.Quantity != 2 {
		t.Errorf("Unexpected order: %+v", got)
	}

	stale := *got
	stale.Version = 1
	stale.Status = models.OrderStatusCancelled
	if err := repo.SaveOrder(ctx, &stale); !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected ErrOptimisticLockFailed, got %v", err)
	}

	if err := repo.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("Delete order: %v", err)
	}
	if _, err := repo.GetOrder(ctx, order.ID); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound after delete, got %v", err)
	}
	if err := repo.DeleteOrder(ctx, order.ID); err != nil {
		t.Errorf("Deleting a missing order should succeed, got %v", err)
	}
}

func testListOrdersByID(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	orders, err := repo.ListOrders(ctx)
	if err != nil {
		t.Fatalf("List empty orders: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("Expected no orders, got %d", len(orders))
	}

	for i := 1; i <= 3; i++ {
		o := &models.Order{ProductID: 1, Quantity: i, Status: models.OrderStatusInProgress}
		if err := repo.SaveOrder(ctx, o); err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	orders, err = repo.ListOrders(ctx)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("Expected 3 orders, got %d", len(orders))
	}
	for i := 1; i < len(orders); i++ {
		if orders[i-1].ID >= orders[i].ID {
			t.Errorf("Orders not in id order: %+v", orders)
		}
	}
}

func testUsers(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	if _, err := repo.GetUserByUsername(ctx, "nobody"); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	u := &models.User{Username: "alice", PasswordHash: "hash", Role: models.RoleWrite}
	if err := repo.SaveUser(ctx, u); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("User ID should not be 0")
	}

	dup := &models.User{Username: "alice", PasswordHash: "other", Role: models.RoleRead}
	if err := repo.SaveUser(ctx, dup); !errors.Is(err, database.ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}

	got, err := repo.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if got.Role != models.RoleWrite || got.PasswordHash != "hash" {
		t.Errorf("Unexpected user: %+v", got)
	}

	got.Role = models.RoleAdmin
	if err := repo.SaveUser(ctx, got); err != nil {
		t.Fatalf("Update user: %v", err)
	}
	got, _ = repo.GetUserByUsername(ctx, "alice")
	if got.Role != models.RoleAdmin {
		t.Errorf("Expected role ADMIN, got %s", got.Role)
	}
}

func testTxCommit(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	p := MustCreateProduct(t, repo, "Milk", 5, 3)

	var orderID int64
	err := repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		product.Stock -= 2
		if err := tx.SaveProduct(ctx, product); err != nil {
			return err
		}

		order := &models.Order{ProductID: p.ID, Quantity: 2, Status: models.OrderStatusInProgress}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	got, _ := repo.GetProduct(ctx, p.ID)
	if got.Stock != 1 {
		t.Errorf("Expected stock 1 after commit, got %d", got.Stock)
	}
	if _, err := repo.GetOrder(ctx, orderID); err != nil {
		t.Errorf("Committed order missing: %v", err)
	}
}

func testTxRollback(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	p := MustCreateProduct(t, repo, "Milk", 5, 3)
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		product.Stock = 0
		if err := tx.SaveProduct(ctx, product); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, &models.Order{ProductID: p.ID, Quantity: 3, Status: models.OrderStatusInProgress}); err != nil {
			return err
		}
		if err := tx.DeleteProduct(ctx, p.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	got, err := repo.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("Rolled back delete leaked: %v", err)
	}
	if got.Stock != 3 || got.Version != 1 {
		t.Errorf("Rolled back update leaked: %+v", got)
	}

	orders, _ := repo.ListOrders(ctx)
	if len(orders) != 0 {
		t.Errorf("Rolled back order leaked: %+v", orders)
	}
}

func testTxReadsOwnWrites(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	p := MustCreateProduct(t, repo, "Milk", 5, 3)

	err := repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		product.Stock = 9
		if err := tx.SaveProduct(ctx, product); err != nil {
			return err
		}

		again, err := tx.GetProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		if again.Stock != 9 || again.Version != 2 {
			t.Errorf("Transaction does not see its own write: %+v", again)
		}

		order := &models.Order{ProductID: p.ID, Quantity: 1, Status: models.OrderStatusInProgress}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		orders, err := tx.ListOrders(ctx)
		if err != nil {
			return err
		}
		if len(orders) != 1 || orders[0].ID != order.ID {
			t.Errorf("Transaction does not list its own order: %+v", orders)
		}

		if err := tx.DeleteOrder(ctx, order.ID); err != nil {
			return err
		}
		if _, err := tx.GetOrder(ctx, order.ID); !errors.Is(err, database.ErrOrderNotFound) {
			t.Errorf("Expected ErrOrderNotFound for order deleted in tx, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
}

func testConcurrentStockDecrement(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	p := MustCreateProduct(t, repo, "Milk", 5, 5)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			results <- repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				product, err := tx.GetProduct(ctx, p.ID)
				if err != nil {
					return err
				}
				if product.Stock < 1 {
					return database.ErrInsufficientStock
				}
				product.Stock--
				return tx.SaveProduct(ctx, product)
			})
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 5 {
		t.Errorf("Expected 5 successful decrements, got %d", successCount)
	}

	got, _ := repo.GetProduct(ctx, p.ID)
	if got.Stock != 0 {
		t.Errorf("Expected final stock 0, got %d", got.Stock)
	}
}
