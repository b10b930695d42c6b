package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/pantry/internal/core/domain"
)

const (
	defaultNamespace      = "pantry"
	defaultIdempotencyTTL = 24 * time.Hour
)

// RedisAdapter keeps products and recipes in two hashes keyed by handle and
// recipe key, and doubles as the idempotency guard.
type RedisAdapter struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewRedisAdapter(client *redis.Client, namespace string, ttl time.Duration) *RedisAdapter {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, namespace: namespace, ttl: ttl}
}

func (r *RedisAdapter) productsKey() string { return r.namespace + ":products" }

func (r *RedisAdapter) recipesKey() string { return r.namespace + ":recipes" }

func (r *RedisAdapter) idempotencyKey(key string) string {
	return r.namespace + ":idempotency:" + key
}

func (r *RedisAdapter) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	fields, err := r.client.HGetAll(ctx, r.productsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}

	products := make([]domain.Product, 0, len(fields))
	for handle, raw := range fields {
		var p domain.Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", handle, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *RedisAdapter) LoadRecipes(ctx context.Context) ([]domain.Recipe, error) {
	fields, err := r.client.HGetAll(ctx, r.recipesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read recipes: %w", err)
	}

	recipes := make([]domain.Recipe, 0, len(fields))
	for key, raw := range fields {
		var rec domain.Recipe
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode recipe %s: %w", key, err)
		}
		recipes = append(recipes, rec)
	}
	return recipes, nil
}

func (r *RedisAdapter) SaveProducts(ctx context.Context, products []domain.Product) error {
	values := make(map[string]any, len(products))
	for _, p := range products {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode product %s: %w", p.Handle, err)
		}
		values[p.Handle] = raw
	}
	return r.replaceHash(ctx, r.productsKey(), values)
}

func (r *RedisAdapter) SaveRecipes(ctx context.Context, recipes []domain.Recipe) error {
	values := make(map[string]any, len(recipes))
	for _, rec := range recipes {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode recipe %s: %w", rec.Name, err)
		}
		values[rec.Key()] = raw
	}
	return r.replaceHash(ctx, r.recipesKey(), values)
}

// replaceHash swaps the whole hash in one MULTI/EXEC so readers never see a
// half-written set.
func (r *RedisAdapter) replaceHash(ctx context.Context, key string, values map[string]any) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.idempotencyKey(key), 1, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.idempotencyKey(key)).Err()
}
