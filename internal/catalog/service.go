// Package catalog manages products: creation, lookups through a read cache
// and partial updates.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
	"github.com/safar/shop-orders/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProductUpdate carries the fields to change; nil fields are left as they
// are. A non-nil Version must match the stored version.
type ProductUpdate struct {
	Name    *string          `json:"name"`
	Price   *decimal.Decimal `json:"price"`
	Stock   *int             `json:"stock"`
	Version *int             `json:"version"`
}

type Service struct {
	repo   store.Repository
	cache  ProductCache
	group  singleflight.Group
	logger *zap.Logger
	tracer trace.Tracer
}

func NewService(repo store.Repository, cache ProductCache, logger *zap.Logger, tracer trace.Tracer) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Service{repo: repo, cache: cache, logger: logger, tracer: tracer}
}

func validate(p *models.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("product name must not be empty: %w", database.ErrInvalidProduct)
	case p.Price.IsNegative():
		return fmt.Errorf("product price %s must not be negative: %w", p.Price, database.ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("product stock %d must not be negative: %w", p.Stock, database.ErrInvalidProduct)
	}
	return nil
}

func (s *Service) AddProduct(ctx context.Context, name string, price decimal.Decimal, stock int) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.AddProduct")
	defer span.End()

	p := &models.Product{Name: strings.TrimSpace(name), Price: price, Stock: stock}
	if err := validate(p); err != nil {
		return nil, recordError(span, err)
	}

	if err := s.repo.SaveProduct(ctx, p); err != nil {
		return nil, recordError(span, err)
	}

	span.SetAttributes(attribute.Int64("product.id", p.ID))
	s.logger.Info("Product added", zap.Int64("product_id", p.ID), zap.String("name", p.Name), zap.Int("stock", p.Stock))
	return p, nil
}

// FindProduct reads through the cache. Concurrent misses for one id share a
// single store lookup.
func (s *Service) FindProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.FindProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}
	if cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		p, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, p); err != nil {
			s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
		}
		return p, nil
	})
	if err != nil {
		return nil, recordError(span, err)
	}

	p := *v.(*models.Product)
	return &p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListProducts")
	defer span.End()

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, recordError(span, err)
	}
	return products, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.UpdateProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	var updated *models.Product
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}

		if upd.Version != nil && *upd.Version != p.Version {
			return fmt.Errorf("product %d is at version %d, not %d: %w", id, p.Version, *upd.Version, database.ErrOptimisticLockFailed)
		}
		if upd.Name != nil {
			p.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Price != nil {
			p.Price = *upd.Price
		}
		if upd.Stock != nil {
			p.Stock = *upd.Stock
		}
		if err := validate(p); err != nil {
			return err
		}

		if err := tx.SaveProduct(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, recordError(span, err)
	}

	s.evict(ctx, id)
	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.Int("version", updated.Version))
	return updated, nil
}

func (s *Service) UpdateProductName(ctx context.Context, id int64, name string) (*models.Product, error) {
	return s.UpdateProduct(ctx, id, ProductUpdate{Name: &name})
}

func (s *Service) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) (*models.Product, error) {
	return s.UpdateProduct(ctx, id, ProductUpdate{Price: &price})
}

func (s *Service) UpdateProductStock(ctx context.Context, id int64, stock int) (*models.Product, error) {
	return s.UpdateProduct(ctx, id, ProductUpdate{Stock: &stock})
}

// DeleteProduct removes the product. Orders referencing it are kept; open ones
// are logged because they can no longer be cancelled.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "catalog.DeleteProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	var open []int64
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		open = open[:0]

		orders, err := tx.ListOrders(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.ProductID == id && o.Status == models.OrderStatusInProgress {
				open = append(open, o.ID)
			}
		}
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return recordError(span, err)
	}

	s.evict(ctx, id)
	if len(open) > 0 {
		s.logger.Warn("Deleted product is still referenced by open orders",
			zap.Int64("product_id", id),
			zap.Int64s("order_ids", open),
		)
	}
	return nil
}

func (s *Service) evict(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("Product cache eviction failed", zap.Int64("product_id", id), zap.Error(err))
	}
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
