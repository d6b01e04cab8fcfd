// Package events publishes order lifecycle notifications once the
// corresponding transaction has committed.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/safar/shop-orders/internal/models"
)

type Type string

const (
	OrderPlaced    Type = "order.placed"
	OrderCompleted Type = "order.completed"
	OrderCancelled Type = "order.cancelled"
	OrderDeleted   Type = "order.deleted"
)

// AffectsStock reports whether the event changed the ordered product's stock.
func (t Type) AffectsStock() bool {
	return t == OrderPlaced || t == OrderCancelled
}

type Event struct {
	ID         uuid.UUID          `json:"id"`
	Type       Type               `json:"type"`
	OrderID    int64              `json:"order_id"`
	ProductID  int64              `json:"product_id"`
	Quantity   int                `json:"quantity"`
	Status     models.OrderStatus `json:"status"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func NewOrderEvent(t Type, order *models.Order) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OrderID:    order.ID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		Status:     order.Status,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers each event to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
