package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"relove/market/internal/models"
)

// ConnectRedis initializes and returns a Redis client instance.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		// Close the client if ping fails
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("Connected to Redis")
	return rdb, nil
}

// DisconnectRedis closes the Redis client connection.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	log.Println("Redis connection closed")
	return nil
}

const categoryListKey = "categories:all"

// CategoryCache caches the static category reference list. Only read-only
// reference data is ever cached; role lookups always go to MongoDB so that
// role changes take effect on the very next request.
type CategoryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCategoryCache creates a CategoryCache with the given TTL.
func NewCategoryCache(rdb *redis.Client, ttl time.Duration) *CategoryCache {
	return &CategoryCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached category list, or (nil, false) on a miss. Cache
// errors are treated as misses; the caller falls through to MongoDB.
func (c *CategoryCache) Get(ctx context.Context) ([]models.Category, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, categoryListKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("WARN: category cache read failed: %v", err)
		}
		return nil, false
	}
	var categories []models.Category
	if err := json.Unmarshal(data, &categories); err != nil {
		log.Printf("WARN: category cache held malformed data, dropping: %v", err)
		c.rdb.Del(ctx, categoryListKey)
		return nil, false
	}
	return categories, true
}

// Set stores the category list with the configured TTL, best effort.
func (c *CategoryCache) Set(ctx context.Context, categories []models.Category) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(categories)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, categoryListKey, data, c.ttl).Err(); err != nil {
		log.Printf("WARN: category cache write failed: %v", err)
	}
}
