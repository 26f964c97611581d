// Package cache provides an exact-match response cache consulted before
// dispatch. It stores full provider responses keyed by the complete request
// content, which is distinct from provider-side prefix caching: a hit here
// avoids the network call entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fanoutllm/fanout/providers"
	"github.com/fanoutllm/fanout/types"
)

var ErrMiss = errors.New("cache miss")

// Entry is one cached completion.
type Entry struct {
	Content   string           `json:"content"`
	Model     string           `json:"model"`
	Usage     types.UsageStats `json:"usage"`
	CreatedAt time.Time        `json:"created_at"`
	HitCount  int              `json:"hit_count"`
}

// ResponseCache is the lookup contract used by the dispatch engine.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
}

// Key derives the exact-match cache key from everything that determines the
// response: provider, model, and the full message sequence.
func Key(provider string, req *providers.Request) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	for _, m := range req.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Config controls the two cache tiers.
type Config struct {
	LocalMaxSize int
	LocalTTL     time.Duration
	RedisTTL     time.Duration
	EnableLocal  bool
	EnableRedis  bool
}

// DefaultConfig returns the default two-tier setup. Redis stays disabled
// until a client is supplied.
func DefaultConfig() *Config {
	return &Config{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     time.Hour,
		EnableLocal:  true,
	}
}

// MultiLevel is a local-LRU-over-Redis response cache. Either tier can be
// disabled; with both disabled every Get misses.
type MultiLevel struct {
	local  *lru
	redis  *redis.Client
	config *Config
	logger *zap.Logger
}

// NewMultiLevel creates the cache. rdb may be nil when EnableRedis is false.
func NewMultiLevel(rdb *redis.Client, config *Config, logger *zap.Logger) *MultiLevel {
	if config == nil {
		config = DefaultConfig()
	}
	if rdb != nil {
		config.EnableRedis = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var local *lru
	if config.EnableLocal {
		local = newLRU(config.LocalMaxSize, config.LocalTTL)
	}
	return &MultiLevel{local: local, redis: rdb, config: config, logger: logger}
}

func (c *MultiLevel) Get(ctx context.Context, key string) (*Entry, error) {
	if c.local != nil {
		if entry, ok := c.local.get(key); ok {
			c.logger.Debug("local cache hit", zap.String("key", key))
			return entry, nil
		}
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := c.redis.Get(ctx, redisKey(key)).Bytes()
		if err == nil {
			var entry Entry
			if err := json.Unmarshal(data, &entry); err == nil {
				if c.local != nil {
					c.local.set(key, &entry)
				}
				c.logger.Debug("redis cache hit", zap.String("key", key))
				return &entry, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get error", zap.Error(err))
		}
	}

	return nil, ErrMiss
}

func (c *MultiLevel) Set(ctx context.Context, key string, entry *Entry) error {
	entry.CreatedAt = time.Now()

	if c.local != nil {
		c.local.set(key, entry)
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := c.redis.Set(ctx, redisKey(key), data, c.config.RedisTTL).Err(); err != nil {
			c.logger.Warn("redis set error", zap.Error(err))
			return err
		}
	}
	return nil
}

func (c *MultiLevel) Delete(ctx context.Context, key string) error {
	if c.local != nil {
		c.local.delete(key)
	}
	if c.config.EnableRedis && c.redis != nil {
		if err := c.redis.Del(ctx, redisKey(key)).Err(); err != nil {
			return err
		}
	}
	return nil
}

func redisKey(key string) string {
	return "fanout:response_cache:" + key
}
