package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
	"github.com/safar/shop-orders/internal/store/storetest"
)

func TestMemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return New() })
}

func TestWithinTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn should not run with a cancelled context")
	}
}

func TestRolledBackInsertDoesNotConsumeIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveProduct(ctx, &models.Product{Name: "Milk"}); err != nil {
			return err
		}
		return errors.New("abort")
	})

	p := &models.Product{Name: "Bread"}
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatalf("Save product: %v", err)
	}
	if p.ID != 1 {
		t.Errorf("Expected id 1 after rollback, got %d", p.ID)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := &models.Product{Name: "Milk", Stock: 3}
	if err := s.SaveProduct(ctx, p); err != nil {
		t.Fatalf("Save product: %v", err)
	}

	p.Stock = 0
	got, _ := s.GetProduct(ctx, p.ID)
	got.Stock = 100

	again, _ := s.GetProduct(ctx, p.ID)
	if again.Stock != 3 {
		t.Errorf("Stored product mutated through a returned pointer: %d", again.Stock)
	}
}
