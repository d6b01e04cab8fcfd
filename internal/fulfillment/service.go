// Package fulfillment places orders against product stock and moves them
// through their lifecycle.
//
// An order starts IN_PROGRESS, holding a reservation of Quantity units taken
// from its product's stock. Completing it keeps the reservation; cancelling it
// returns the units to stock. COMPLETED and CANCELLED are terminal.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/events"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type PlaceOrderRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Service struct {
	repo      store.Repository
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService wires the service. A nil publisher, logger or tracer is replaced
// by its no-op form.
func NewService(repo store.Repository, pub events.Publisher, logger *zap.Logger, tracer trace.Tracer) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{repo: repo, publisher: pub, logger: logger, tracer: tracer}
}

// PlaceOrder reserves req.Quantity units of the product and records an
// IN_PROGRESS order for them in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.PlaceOrder", trace.WithAttributes(
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("order.quantity", req.Quantity),
	))
	defer span.End()

	if req.Quantity <= 0 {
		err := fmt.Errorf("order quantity %d: %w", req.Quantity, database.ErrInvalidQuantity)
		return nil, s.fail(span, "PlaceOrder", err, zap.Int64("product_id", req.ProductID))
	}

	var order *models.Order
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}

		if product.Stock < req.Quantity {
			return fmt.Errorf("the stock of product %d (%d) is not big enough to sustain an order of %d: %w",
				product.ID, product.Stock, req.Quantity, database.ErrInsufficientStock)
		}

		product.Stock -= req.Quantity
		if err := tx.SaveProduct(ctx, product); err != nil {
			return err
		}

		o := &models.Order{
			ProductID: product.ID,
			Quantity:  req.Quantity,
			Status:    models.OrderStatusInProgress,
		}
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "PlaceOrder", err,
			zap.Int64("product_id", req.ProductID),
			zap.Int("quantity", req.Quantity),
		)
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity),
	)
	s.publish(ctx, events.OrderPlaced, order)

	return order, nil
}

func (s *Service) FindOrder(ctx context.Context, id int64) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.FindOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, s.fail(span, "FindOrder", err, zap.Int64("order_id", id))
	}
	return order, nil
}

// ListOrders returns every order in ascending id order.
func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.ListOrders")
	defer span.End()

	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, s.fail(span, "ListOrders", err)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// CompleteOrder marks an IN_PROGRESS order COMPLETED. Stock is untouched.
func (s *Service) CompleteOrder(ctx context.Context, id int64) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.CompleteOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *models.Order
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := requireInProgress(o); err != nil {
			return err
		}

		o.Status = models.OrderStatusCompleted
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "CompleteOrder", err, zap.Int64("order_id", id))
	}

	s.logger.Info("Order completed", zap.Int64("order_id", order.ID))
	s.publish(ctx, events.OrderCompleted, order)

	return order, nil
}

// CancelOrder marks an IN_PROGRESS order CANCELLED and returns its quantity
// to the product's stock in one transaction.
func (s *Service) CancelOrder(ctx context.Context, id int64) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.CancelOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var order *models.Order
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := requireInProgress(o); err != nil {
			return err
		}

		product, err := tx.GetProduct(ctx, o.ProductID)
		if err != nil {
			return err
		}

		product.Stock += o.Quantity
		if err := tx.SaveProduct(ctx, product); err != nil {
			return err
		}

		o.Status = models.OrderStatusCancelled
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "CancelOrder", err, zap.Int64("order_id", id))
	}

	span.SetAttributes(
		attribute.Int64("product.id", order.ProductID),
		attribute.Int("order.quantity", order.Quantity),
	)
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", order.ProductID),
		zap.Int("restocked", order.Quantity),
	)
	s.publish(ctx, events.OrderCancelled, order)

	return order, nil
}

// DeleteOrder removes the order whatever its status. A missing id is not an
// error. Stock is never adjusted, so deleting an IN_PROGRESS order leaves its
// reservation unreleased.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "fulfillment.DeleteOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var deleted *models.Order
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		deleted = nil

		o, err := tx.GetOrder(ctx, id)
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}

		deleted = o
		return nil
	})
	if err != nil {
		return s.fail(span, "DeleteOrder", err, zap.Int64("order_id", id))
	}

	if deleted == nil {
		span.SetAttributes(attribute.Bool("order.found", false))
		return nil
	}

	if deleted.Status == models.OrderStatusInProgress {
		// TODO: release the reservation once deletion of open orders is decided
		s.logger.Warn("Deleted order still held a stock reservation",
			zap.Int64("order_id", deleted.ID),
			zap.Int64("product_id", deleted.ProductID),
			zap.Int("quantity", deleted.Quantity),
		)
	} else {
		s.logger.Info("Order deleted", zap.Int64("order_id", deleted.ID))
	}
	s.publish(ctx, events.OrderDeleted, deleted)

	return nil
}

func requireInProgress(o *models.Order) error {
	if o.Status != models.OrderStatusInProgress {
		return fmt.Errorf("order %d must have status '%s' but is '%s': %w",
			o.ID, models.OrderStatusInProgress, o.Status, database.ErrOrderNotInProgress)
	}
	return nil
}

// publish is best effort; the transaction has already committed.
func (s *Service) publish(ctx context.Context, typ events.Type, order *models.Order) {
	event := events.NewOrderEvent(typ, order)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("event_type", string(typ)),
			zap.String("event_id", event.ID.String()),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) fail(span trace.Span, op string, err error, fields ...zap.Field) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	fields = append(fields, zap.String("operation", op), zap.Error(err))
	if IsRejection(err) {
		s.logger.Warn("Order operation rejected", fields...)
	} else {
		s.logger.Error("Order operation failed", fields...)
	}
	return err
}

// IsRejection reports whether err is an expected domain outcome rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, database.ErrProductNotFound) ||
		errors.Is(err, database.ErrOrderNotFound) ||
		errors.Is(err, database.ErrInsufficientStock) ||
		errors.Is(err, database.ErrOrderNotInProgress) ||
		errors.Is(err, database.ErrInvalidQuantity)
}
