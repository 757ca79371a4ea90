package llm

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
)

type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CachedGenerator memoizes deterministic requests by prompt hash. Only responses
// that satisfied the request (parsed, when structured) are stored.
type CachedGenerator struct {
	next  Generator
	cache ResponseCache
}

func NewCachedGenerator(next Generator, cache ResponseCache) *CachedGenerator {
	return &CachedGenerator{next: next, cache: cache}
}

func (g *CachedGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	if !req.Deterministic {
		return g.next.Generate(ctx, req)
	}

	key := PromptHash(req)
	text, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		logger.Log.WithError(err).WithField("prompt_hash", key).Warn("response cache read failed")
	} else if ok {
		if resp, err := Complete(req, text); err == nil {
			return resp, nil
		}
	}

	resp, err := g.next.Generate(ctx, req)
	if err != nil {
		return resp, err
	}
	if err := g.cache.Set(ctx, key, resp.Text); err != nil {
		logger.Log.WithError(err).WithField("prompt_hash", key).Warn("response cache write failed")
	}
	return resp, nil
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "cid:llm:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.client.Set(ctx, c.prefix+key, value, c.ttl).Err()
}
