package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
)

// tx overlays staged writes on the committed maps. A nil entry marks a delete.
type tx struct {
	s             *Store
	products      map[int64]*models.Product
	orders        map[int64]*models.Order
	nextProductID int64
	nextOrderID   int64
}

func (t *tx) lookupProduct(id int64) (models.Product, bool) {
	if staged, ok := t.products[id]; ok {
		if staged == nil {
			return models.Product{}, false
		}
		return *staged, true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.products[id]
	return p, ok
}

func (t *tx) lookupOrder(id int64) (models.Order, bool) {
	if staged, ok := t.orders[id]; ok {
		if staged == nil {
			return models.Order{}, false
		}
		return *staged, true
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := t.s.orders[id]
	return o, ok
}

func (t *tx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := t.lookupProduct(id)
	if !ok {
		return nil, fmt.Errorf("could not find product %d: %w", id, database.ErrProductNotFound)
	}
	return &p, nil
}

func (t *tx) ListProducts(ctx context.Context) ([]models.Product, error) {
	committed, err := t.s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(committed)+len(t.products))
	for _, p := range committed {
		if _, staged := t.products[p.ID]; !staged {
			products = append(products, p)
		}
	}
	for _, p := range t.products {
		if p != nil {
			products = append(products, *p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (t *tx) SaveProduct(ctx context.Context, p *models.Product) error {
	ts := time.Now().UTC()

	if p.ID == 0 {
		t.nextProductID++
		p.ID = t.nextProductID
		p.CreatedAt, p.UpdatedAt, p.Version = ts, ts, 1
		staged := *p
		t.products[p.ID] = &staged
		return nil
	}

	current, ok := t.lookupProduct(p.ID)
	if !ok {
		return fmt.Errorf("could not find product %d: %w", p.ID, database.ErrProductNotFound)
	}
	if current.Version != p.Version {
		return fmt.Errorf("product %d changed concurrently: %w", p.ID, database.ErrOptimisticLockFailed)
	}

	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = ts
	p.Version++
	staged := *p
	t.products[p.ID] = &staged
	return nil
}

func (t *tx) DeleteProduct(ctx context.Context, id int64) error {
	t.products[id] = nil
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := t.lookupOrder(id)
	if !ok {
		return nil, fmt.Errorf("could not find order %d: %w", id, database.ErrOrderNotFound)
	}
	return &o, nil
}

func (t *tx) ListOrders(ctx context.Context) ([]models.Order, error) {
	committed, err := t.s.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(committed)+len(t.orders))
	for _, o := range committed {
		if _, staged := t.orders[o.ID]; !staged {
			orders = append(orders, o)
		}
	}
	for _, o := range t.orders {
		if o != nil {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (t *tx) SaveOrder(ctx context.Context, o *models.Order) error {
	ts := time.Now().UTC()

	if o.ID == 0 {
		t.nextOrderID++
		o.ID = t.nextOrderID
		o.CreatedAt, o.UpdatedAt, o.Version = ts, ts, 1
		staged := *o
		t.orders[o.ID] = &staged
		return nil
	}

	current, ok := t.lookupOrder(o.ID)
	if !ok {
		return fmt.Errorf("could not find order %d: %w", o.ID, database.ErrOrderNotFound)
	}
	if current.Version != o.Version {
		return fmt.Errorf("order %d changed concurrently: %w", o.ID, database.ErrOptimisticLockFailed)
	}

	// product and quantity are fixed at placement
	updated := current
	updated.Status = o.Status
	updated.UpdatedAt = ts
	updated.Version++
	*o = updated
	t.orders[o.ID] = &updated
	return nil
}

func (t *tx) DeleteOrder(ctx context.Context, id int64) error {
	t.orders[id] = nil
	return nil
}

func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range t.products {
		if p == nil {
			delete(s.products, id)
			continue
		}
		s.products[id] = *p
	}
	for id, o := range t.orders {
		if o == nil {
			delete(s.orders, id)
			continue
		}
		s.orders[id] = *o
	}
	s.nextProductID = t.nextProductID
	s.nextOrderID = t.nextOrderID
}
