/*
File: cache_redis.go
Version: 1.0.0
Description: Optional Redis tier of the verdict cache, shared between replicas.
             Keys carry the reference set fingerprint and the classifier name, so replicas
             running different lists or models never read each other's verdicts.
             Redis failures are logged and treated as a miss.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisVerdict is the stored value. The feature vector travels alongside because the
// assessment's JSON form omits it.
type redisVerdict struct {
	Assessment *Assessment `json:"assessment"`
	Features   []float64   `json:"features"`
}

// RedisVerdictCache stores assessments as JSON with a TTL.
type RedisVerdictCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisVerdictCache(cfg RedisConfig, ttl time.Duration) *RedisVerdictCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisVerdictCacheWithClient(client, cfg.Prefix, ttl)
}

func newRedisVerdictCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisVerdictCache {
	if prefix == "" {
		prefix = "urlguard:verdict:"
	}
	if ttl <= 0 {
		ttl = defaultVerdictCacheTTL
	}
	return &RedisVerdictCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisVerdictCache) key(namespace, url string) string {
	return c.prefix + namespace + ":" + url
}

// Get returns the cached assessment, or false on a miss or any Redis error.
func (c *RedisVerdictCache) Get(ctx context.Context, namespace, url string) (*Assessment, bool) {
	data, err := c.client.Get(ctx, c.key(namespace, url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		LogWarn("[CACHE] Redis get failed: %v", err)
		return nil, false
	}

	var v redisVerdict
	if err := json.Unmarshal(data, &v); err != nil || v.Assessment == nil {
		LogWarn("[CACHE] Discarding undecodable Redis entry for %s: %v", url, err)
		return nil, false
	}
	copy(v.Assessment.Features[:], v.Features)
	return v.Assessment, true
}

// Set stores a. ERROR assessments are ignored.
func (c *RedisVerdictCache) Set(ctx context.Context, namespace, url string, a *Assessment) {
	if a == nil || a.Verdict == VerdictError {
		return
	}
	data, err := json.Marshal(redisVerdict{Assessment: a, Features: a.Features.Values()})
	if err != nil {
		LogWarn("[CACHE] Failed to encode verdict for Redis: %v", err)
		return
	}
	if err := c.client.Set(ctx, c.key(namespace, url), data, c.ttl).Err(); err != nil {
		LogWarn("[CACHE] Redis set failed: %v", err)
	}
}

func (c *RedisVerdictCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisVerdictCache) Close() error {
	return c.client.Close()
}
