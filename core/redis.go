package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TenantCacheKeyPrefix namespaces cached API key lookups. Keys are stored hashed.
const TenantCacheKeyPrefix = "tenant:apikey:"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// CachedTenantResolver answers repeat API key lookups from Redis.
// Only successful lookups are cached, so a newly provisioned tenant is
// usable immediately; a removed one stays valid for at most ttl.
type CachedTenantResolver struct {
	next    TenantResolver
	client  redis.Cmdable
	ttl     time.Duration
	metrics *Metrics
}

func NewCachedTenantResolver(next TenantResolver, client redis.Cmdable, ttl time.Duration, metrics *Metrics) *CachedTenantResolver {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedTenantResolver{next: next, client: client, ttl: ttl, metrics: metrics}
}

// TenantCacheKey returns the Redis key for apiKey.
func TenantCacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return TenantCacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *CachedTenantResolver) ResolveTenant(ctx context.Context, apiKey string) (TenantID, bool, error) {
	key := TenantCacheKey(apiKey)

	val, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if id, perr := strconv.ParseInt(val, 10, 64); perr == nil {
			r.metrics.TenantCacheResult("hit")
			return TenantID(id), true, nil
		}
		log.Printf("[tenant-cache] discarding malformed entry %q", val)
		r.metrics.TenantCacheResult("error")
	case errors.Is(err, redis.Nil):
		r.metrics.TenantCacheResult("miss")
	default:
		log.Printf("[tenant-cache] get failed, falling back to store: %v", err)
		r.metrics.TenantCacheResult("error")
	}

	tenant, found, err := r.next.ResolveTenant(ctx, apiKey)
	if err != nil || !found {
		return tenant, found, err
	}

	if err := r.client.Set(ctx, key, strconv.FormatInt(int64(tenant), 10), r.ttl).Err(); err != nil {
		log.Printf("[tenant-cache] set failed: %v", err)
	}
	return tenant, true, nil
}
