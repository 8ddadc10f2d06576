package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"go.uber.org/zap"
)

// Redis keeps counters in Redis hashes so several server instances share them.
type Redis struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

// NewRedis connects to the configured Redis and verifies the connection
func NewRedis(cfg config.StatsConfig, log *logger.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.MinIdleConns = cfg.MinIdleConns

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cv-anonymizer"
	}

	r := &Redis{
		client: redis.NewClient(opts),
		prefix: prefix,
		logger: log.WithComponent("stats"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := r.client.Ping(ctx).Result(); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.Info("Redis stats recorder initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.String("key_prefix", prefix),
	)

	return r, nil
}

func (r *Redis) key(name string) string {
	return r.prefix + ":stats:" + name
}

// Record increments every counter of run in one transaction.
func (r *Redis) Record(ctx context.Context, run Run) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.key("documents"))
		if run.Source != "" {
			pipe.HIncrBy(ctx, r.key("sources"), run.Source, 1)
		}
		for c, n := range run.Counts {
			if n > 0 {
				pipe.HIncrBy(ctx, r.key("categories"), string(c), int64(n))
			}
		}
		for _, s := range run.Sections {
			pipe.HIncrBy(ctx, r.key("sections"), string(s), 1)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to record redaction stats", zap.Error(err))
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

func (r *Redis) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := newSnapshot("redis")

	docs, err := r.client.Get(ctx, r.key("documents")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read document count: %w", err)
	}
	snap.Documents = docs

	for name, into := range map[string]map[string]int64{
		"sources":    snap.Sources,
		"categories": snap.Categories,
		"sections":   snap.Sections,
	} {
		values, err := r.client.HGetAll(ctx, r.key(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s counters: %w", name, err)
		}
		for field, raw := range values {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				r.logger.Warn("Ignoring malformed counter", zap.String("hash", name), zap.String("field", field))
				continue
			}
			into[field] = n
		}
	}

	return snap, nil
}

func (r *Redis) Reset(ctx context.Context) error {
	keys := []string{r.key("documents"), r.key("sources"), r.key("categories"), r.key("sections")}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset stats: %w", err)
	}
	r.logger.Info("Stats reset")
	return nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// maskRedisURL hides the password of a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	start := 0
	if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
		start = scheme + 3
	}
	userinfo := url[start:at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		return url[:start] + userinfo[:colon+1] + "***" + url[at:]
	}
	return url
}
