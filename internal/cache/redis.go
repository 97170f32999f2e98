package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"servivent/backend/internal/domain"
)

type RedisPriceCache struct {
	client *redis.Client
}

func NewRedisPriceCache(addr, password string, db int) *RedisPriceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPriceCache{client: client}
}

func (c *RedisPriceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPriceCache) Close() error {
	return c.client.Close()
}

func (c *RedisPriceCache) Get(ctx context.Context, productID int64) ([]domain.BranchPrice, bool, error) {
	val, err := c.client.Get(ctx, priceKey(productID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var prices []domain.BranchPrice
	if err := json.Unmarshal([]byte(val), &prices); err != nil {
		return nil, false, err
	}
	return prices, true, nil
}

func (c *RedisPriceCache) Set(ctx context.Context, productID int64, prices []domain.BranchPrice, ttl time.Duration) error {
	payload, err := json.Marshal(prices)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, priceKey(productID), payload, ttl).Err()
}

func (c *RedisPriceCache) Invalidate(ctx context.Context, productID int64) error {
	return c.client.Del(ctx, priceKey(productID)).Err()
}
