package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhil/saasbase/internal/models"
)

const cacheKeyPrefix = "session:"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

type cachedSession struct {
	UserID  string    `json:"user_id"`
	Expires time.Time `json:"expires"`
}

func (c *RedisCache) Get(ctx context.Context, sid string) (*models.Session, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached session: %w", err)
	}

	var cs cachedSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("failed to decode cached session: %w", err)
	}
	return &models.Session{Token: sid, UserID: cs.UserID, Expires: cs.Expires}, nil
}

// Set stores the session for ttl. A non-positive ttl is not cached.
func (c *RedisCache) Set(ctx context.Context, s models.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cachedSession{UserID: s.UserID, Expires: s.Expires})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+s.Token, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, sid string) error {
	return c.client.Del(ctx, cacheKeyPrefix+sid).Err()
}
