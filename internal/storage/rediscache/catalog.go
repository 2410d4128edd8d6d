// Package rediscache is a read-through Redis cache in front of the product
// catalog.
package rediscache

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-orders/internal/domain/product"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "kart:catalog:"
)

var _ product.Repository = (*Catalog)(nil)

// Catalog caches product lookups. Redis failures are logged and the request
// falls through to the wrapped repository.
type Catalog struct {
	next   product.Repository
	client redis.UniversalClient
	ttl    time.Duration
	jitter time.Duration
	prefix string
	group  singleflight.Group
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTTL sets the base entry lifetime. Each write adds up to a fifth of it
// as jitter.
func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix namespaces the cache keys.
func WithPrefix(prefix string) Option {
	return func(c *Catalog) { c.prefix = prefix }
}

// New wraps next with a cache stored in client.
func New(client redis.UniversalClient, next product.Repository, opts ...Option) *Catalog {
	c := &Catalog{
		next:   next,
		client: client,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.jitter = c.ttl / 5
	return c
}

// List returns the whole catalog.
func (c *Catalog) List(ctx context.Context) ([]product.Product, error) {
	key := c.listKey()
	if data, ok := c.get(ctx, key); ok {
		ps, err := decodeProducts(data)
		if err == nil {
			return ps, nil
		}
		zctx.From(ctx).Warn("Drop corrupt cache entry", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		ps, err := c.next.List(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, encodeProducts(ps))
		return ps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]product.Product), nil
}

// GetByID returns one product. Misses are not cached.
func (c *Catalog) GetByID(ctx context.Context, id string) (*product.Product, error) {
	key := c.productKey(id)
	if data, ok := c.get(ctx, key); ok {
		p, err := decodeProduct(data)
		if err == nil {
			return &p, nil
		}
		zctx.From(ctx).Warn("Drop corrupt cache entry", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.next.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, encodeProduct(*p))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*product.Product)
	return &p, nil
}

// GetByIDs serves what it can from one MGET and loads the rest in a single
// call to the wrapped repository.
func (c *Catalog) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.productKey(id)
	}

	found := make(map[string]product.Product, len(ids))
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		zctx.From(ctx).Warn("Catalog cache read failed", zap.Error(err))
	}
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		p, err := decodeProduct([]byte(s))
		if err != nil {
			zctx.From(ctx).Warn("Drop corrupt cache entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		found[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		loaded, err := c.next.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		pipe := c.client.Pipeline()
		for _, p := range loaded {
			found[p.ID] = p
			pipe.Set(ctx, c.productKey(p.ID), encodeProduct(p), c.entryTTL())
		}
		if _, err := pipe.Exec(ctx); err != nil {
			zctx.From(ctx).Warn("Catalog cache write failed", zap.Error(err))
		}
	}

	out := make([]product.Product, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, id := range ids {
		p, ok := found[id]
		if _, dup := seen[id]; !ok || dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Invalidate drops the cached list and the given products.
func (c *Catalog) Invalidate(ctx context.Context, ids ...string) error {
	keys := []string{c.listKey()}
	for _, id := range ids {
		keys = append(keys, c.productKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "invalidate catalog cache")
	}
	return nil
}

func (c *Catalog) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false
	case err != nil:
		zctx.From(ctx).Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (c *Catalog) set(ctx context.Context, key string, data []byte) {
	if err := c.client.Set(ctx, key, data, c.entryTTL()).Err(); err != nil {
		zctx.From(ctx).Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Catalog) entryTTL() time.Duration {
	if c.jitter <= 0 {
		return c.ttl
	}
	return c.ttl + rand.N(c.jitter)
}

func (c *Catalog) listKey() string { return c.prefix + "all" }

func (c *Catalog) productKey(id string) string { return c.prefix + "product:" + id }
