// Package cache provides a Redis-backed read cache for article
// projections. The cache is best-effort: misses and Redis outages fall
// through to the primary store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"opskb/api/internal/store"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// ArticleCache stores serialized article projections with a TTL.
type ArticleCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewArticleCache connects to Redis and verifies the connection.
func NewArticleCache(redisURL string, ttl time.Duration) (*ArticleCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ArticleCache{
		client: client,
		prefix: "article:",
		ttl:    ttl,
	}, nil
}

// NewArticleCacheWithClient creates a cache from an existing Redis client.
func NewArticleCacheWithClient(client *redis.Client, ttl time.Duration) *ArticleCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ArticleCache{
		client: client,
		prefix: "article:",
		ttl:    ttl,
	}
}

func (c *ArticleCache) key(articleID string) string {
	return c.prefix + articleID
}

// Get returns the cached projection or ErrMiss.
func (c *ArticleCache) Get(ctx context.Context, articleID string) (store.Article, error) {
	jsonData, err := c.client.Get(ctx, c.key(articleID)).Result()
	if err == redis.Nil {
		return store.Article{}, ErrMiss
	}
	if err != nil {
		return store.Article{}, fmt.Errorf("cache get article: %w", err)
	}

	var article store.Article
	if err := json.Unmarshal([]byte(jsonData), &article); err != nil {
		return store.Article{}, fmt.Errorf("unmarshal cached article: %w", err)
	}
	return article, nil
}

// Set stores the projection under the configured TTL.
func (c *ArticleCache) Set(ctx context.Context, article store.Article) error {
	jsonData, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	if err := c.client.Set(ctx, c.key(article.ID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set article: %w", err)
	}
	return nil
}

// Invalidate drops the cached projection. Called after every mutation so a
// stale snapshot never outlives its transaction.
func (c *ArticleCache) Invalidate(ctx context.Context, articleID string) error {
	if err := c.client.Del(ctx, c.key(articleID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate article: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *ArticleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *ArticleCache) Close() error {
	return c.client.Close()
}
