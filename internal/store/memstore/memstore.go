// Package memstore is a process-local store.Repository. Transactions are
// serialised by a single writer lock and stage their writes until commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
)

type Store struct {
	// writeMu is held for the whole of a transaction.
	writeMu sync.Mutex

	mu            sync.RWMutex
	products      map[int64]models.Product
	orders        map[int64]models.Order
	users         map[int64]models.User
	nextProductID int64
	nextOrderID   int64
	nextUserID    int64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[int64]models.Product),
		orders:   make(map[int64]models.Order),
		users:    make(map[int64]models.User),
	}
}

// WithinTx runs fn with exclusive write access. fn must not call back into
// the Store's own mutating methods.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	t := &tx{
		s:             s,
		products:      make(map[int64]*models.Product),
		orders:        make(map[int64]*models.Order),
		nextProductID: s.nextProductID,
		nextOrderID:   s.nextOrderID,
	}
	s.mu.RUnlock()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.commit()
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("could not find product %d: %w", id, database.ErrProductNotFound)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) SaveProduct(ctx context.Context, p *models.Product) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveProduct(ctx, p)
	})
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("could not find order %d: %w", id, database.ErrOrderNotFound)
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *Store) SaveOrder(ctx context.Context, o *models.Order) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveOrder(ctx, o)
	})
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteOrder(ctx, id)
	})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("could not find user %q: %w", username, database.ErrUserNotFound)
}

func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.users {
		if existing.Username == u.Username && id != u.ID {
			return fmt.Errorf("user %q: %w", u.Username, database.ErrUserExists)
		}
	}

	ts := time.Now().UTC()
	if u.ID == 0 {
		s.nextUserID++
		u.ID = s.nextUserID
		u.CreatedAt, u.UpdatedAt, u.Version = ts, ts, 1
		s.users[u.ID] = *u
		return nil
	}

	current, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("could not find user %d: %w", u.ID, database.ErrUserNotFound)
	}
	if current.Version != u.Version {
		return fmt.Errorf("user %d changed concurrently: %w", u.ID, database.ErrOptimisticLockFailed)
	}

	u.CreatedAt = current.CreatedAt
	u.UpdatedAt = ts
	u.Version++
	s.users[u.ID] = *u
	return nil
}
