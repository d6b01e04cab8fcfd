// Package store defines the persistence contract shared by the SQL and
// in-memory backends.
package store

import (
	"context"

	"github.com/safar/shop-orders/internal/models"
)

// Products gives access to the product catalog.
//
// SaveProduct inserts when p.ID is zero and otherwise updates the row whose
// version matches p.Version. On success p carries the stored id, version and
// timestamps.
type Products interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	SaveProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// Orders gives access to placed orders. SaveOrder follows the same
// insert-or-versioned-update rule as SaveProduct. DeleteOrder of a missing id
// is not an error.
type Orders interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	SaveOrder(ctx context.Context, o *models.Order) error
	DeleteOrder(ctx context.Context, id int64) error
}

type Users interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

// Tx is the view of the store inside a transaction. Reads through a Tx lock
// the rows they return until the transaction ends.
type Tx interface {
	Products
	Orders
}

// Repository is the store boundary. Writes made through the Tx handed to fn
// commit together when fn returns nil and are discarded otherwise. fn may be
// invoked more than once when the backend retries a transient failure, so it
// must not have side effects outside the Tx.
type Repository interface {
	Products
	Orders
	Users
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
