package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/shop-orders/internal/events"
	"github.com/safar/shop-orders/internal/models"
)

// ProductCache holds read-through copies of products. Get returns nil, nil
// on a miss.
type ProductCache interface {
	Get(ctx context.Context, id int64) (*models.Product, error)
	Set(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, ids ...int64) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (c *RedisCache) Get(ctx context.Context, id int64) (*models.Product, error) {
	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached product %d: %w", id, err)
	}

	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode cached product %d: %w", id, err)
	}
	return &p, nil
}

func (c *RedisCache) Set(ctx context.Context, p *models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product %d: %w", p.ID, err)
	}
	return c.client.Set(ctx, productKey(p.ID), data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

// NopCache always misses.
type NopCache struct{}

func (NopCache) Get(context.Context, int64) (*models.Product, error) { return nil, nil }
func (NopCache) Set(context.Context, *models.Product) error          { return nil }
func (NopCache) Delete(context.Context, ...int64) error              { return nil }

// CacheInvalidator evicts the ordered product whenever an order event moved
// its stock. It is registered alongside the broker publishers.
type CacheInvalidator struct {
	Cache ProductCache
}

func (i CacheInvalidator) Publish(ctx context.Context, event events.Event) error {
	if !event.Type.AffectsStock() {
		return nil
	}
	if err := i.Cache.Delete(ctx, event.ProductID); err != nil {
		return fmt.Errorf("evict product %d: %w", event.ProductID, err)
	}
	return nil
}
