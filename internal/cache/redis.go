package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warnet/backend/internal/model"
)

const historyKey = "warnet:history"

type RedisConnection struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

func Connect(ctx context.Context, cfg RedisConnection) (*redis.Client, error) {
	const op = "cache.Connect"
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// HistoryCache keeps the merged payment history in Redis as one JSON value.
type HistoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewHistoryCache(client *redis.Client, ttl time.Duration) *HistoryCache {
	return &HistoryCache{client: client, ttl: ttl}
}

func (c *HistoryCache) Get(ctx context.Context) ([]model.HistoryEntry, bool, error) {
	const op = "cache.HistoryCache.Get"
	val, err := c.client.Get(ctx, historyKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	var entries []model.HistoryEntry
	if err := json.Unmarshal(val, &entries); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return entries, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, entries []model.HistoryEntry) error {
	const op = "cache.HistoryCache.Set"
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.client.Set(ctx, historyKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context) error {
	const op = "cache.HistoryCache.Invalidate"
	if err := c.client.Del(ctx, historyKey).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
