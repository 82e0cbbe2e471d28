package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"autoasesor/internal/config"
)

// ReplyCache is a Redis-backed cache for synthesized answers. Cache
// failures always degrade to a miss; the cache can never fail a request.
// A nil *ReplyCache is a valid disabled cache.
type ReplyCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewReplyCache connects to Redis per config. Returns nil (cache
// disabled) when no address is configured or the server is unreachable.
func NewReplyCache(cfg config.RedisConfig, logger *zap.Logger) *ReplyCache {
	if cfg.Addr == "" {
		logger.Info("reply cache disabled, no redis address configured")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("reply cache disabled, redis unreachable", zap.Error(err))
		return nil
	}

	ttl := time.Duration(cfg.TTLSecs) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	logger.Info("reply cache enabled", zap.String("addr", cfg.Addr), zap.Duration("ttl", ttl))
	return &ReplyCache{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns a cached reply for a query, or ok=false on miss or error
func (c *ReplyCache) Get(ctx context.Context, replyType, query string) (string, bool) {
	if c == nil {
		return "", false
	}

	value, err := c.client.Get(ctx, c.key(replyType, query)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("reply cache read failed", zap.Error(err))
		}
		return "", false
	}
	return value, true
}

// Set stores a reply with the configured TTL. Errors are logged only.
func (c *ReplyCache) Set(ctx context.Context, replyType, query, reply string) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, c.key(replyType, query), reply, c.ttl).Err(); err != nil {
		c.logger.Debug("reply cache write failed", zap.Error(err))
	}
}

// Close releases the Redis connection
func (c *ReplyCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// key is stable under case and surrounding whitespace of the query
func (c *ReplyCache) key(replyType, query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("%s:%s:%s", c.prefix, replyType, hex.EncodeToString(sum[:]))
}
