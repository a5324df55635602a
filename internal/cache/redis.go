package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/freekieb7/go-polls/internal/errors"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Service stores JSON values in redis. A disabled service never hits.
type Service struct {
	client  clientInterface
	logger  *slog.Logger
	prefix  string
	enabled bool
}

// clientInterface abstracts the redis operations in use
type clientInterface interface {
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error)
	del(ctx context.Context, keys ...string) error
	deletePattern(ctx context.Context, pattern string) error
	ping(ctx context.Context) error
}

type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Prefix       string // Key prefix for namespacing
	Enabled      bool
}

func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 3,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Prefix:       "polls:",
		Enabled:      false,
	}
}

// NewService connects to redis when enabled, otherwise it returns a no-op
// service.
func NewService(config *Config, logger *slog.Logger) (*Service, error) {
	if !config.Enabled {
		return &Service{
			client: noOpClient{},
			logger: logger,
			prefix: config.Prefix,
		}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", "error", err, "addr", config.Addr)
		_ = redisClient.Close()
		return nil, apperrors.CacheUnavailableError("failed to connect to Redis", err)
	}

	logger.Info("Connected to Redis cache", "addr", config.Addr, "db", config.DB)

	return newServiceWithClient(&redisClientWrapper{client: redisClient}, config.Prefix, logger), nil
}

func newServiceWithClient(client clientInterface, prefix string, logger *slog.Logger) *Service {
	return &Service{
		client:  client,
		logger:  logger,
		prefix:  prefix,
		enabled: true,
	}
}

func (s *Service) Enabled() bool {
	return s.enabled
}

func (s *Service) buildKey(key string) string {
	return s.prefix + key
}

func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := s.client.set(ctx, s.buildKey(key), data, ttl); err != nil {
		s.logger.Warn("Cache set failed", "key", key, "error", err)
		return apperrors.CacheError("cache set failed", err)
	}

	s.logger.Debug("Cache set", "key", key, "ttl", ttl)
	return nil
}

// Get decodes the value stored under key into dest.
func (s *Service) Get(ctx context.Context, key string, dest any) error {
	val, err := s.client.get(ctx, s.buildKey(key))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return ErrCacheMiss
		}
		s.logger.Warn("Cache get failed", "key", key, "error", err)
		return apperrors.CacheError("cache get failed", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		s.logger.Warn("Cache unmarshal failed", "key", key, "error", err)
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	s.logger.Debug("Cache hit", "key", key)
	return nil
}

func (s *Service) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.buildKey(key)
	}

	if err := s.client.del(ctx, full...); err != nil {
		s.logger.Warn("Cache delete failed", "keys", keys, "error", err)
		return apperrors.CacheError("cache delete failed", err)
	}

	s.logger.Debug("Cache deleted", "keys", keys)
	return nil
}

// DeletePattern removes all keys matching a glob pattern.
func (s *Service) DeletePattern(ctx context.Context, pattern string) error {
	if err := s.client.deletePattern(ctx, s.buildKey(pattern)); err != nil {
		s.logger.Warn("Cache delete pattern failed", "pattern", pattern, "error", err)
		return apperrors.CacheError("cache delete pattern failed", err)
	}

	s.logger.Debug("Cache pattern deleted", "pattern", pattern)
	return nil
}

func (s *Service) Health(ctx context.Context) error {
	return s.client.ping(ctx)
}

func (s *Service) Close() error {
	if wrapper, ok := s.client.(*redisClientWrapper); ok {
		return wrapper.close()
	}
	return nil
}

func (s *Service) Stats() map[string]any {
	if wrapper, ok := s.client.(*redisClientWrapper); ok {
		return wrapper.stats()
	}
	return map[string]any{}
}

// redisClientWrapper wraps redis.Client to implement clientInterface
type redisClientWrapper struct {
	client *redis.Client
}

func (r *redisClientWrapper) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisClientWrapper) get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *redisClientWrapper) del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// deletePattern walks the keyspace with SCAN, deleting in batches of 100.
func (r *redisClientWrapper) deletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (r *redisClientWrapper) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClientWrapper) close() error {
	return r.client.Close()
}

func (r *redisClientWrapper) stats() map[string]any {
	poolStats := r.client.PoolStats()
	return map[string]any{
		"hits":        poolStats.Hits,
		"misses":      poolStats.Misses,
		"timeouts":    poolStats.Timeouts,
		"total_conns": poolStats.TotalConns,
		"idle_conns":  poolStats.IdleConns,
		"stale_conns": poolStats.StaleConns,
	}
}

type noOpClient struct{}

func (noOpClient) set(context.Context, string, []byte, time.Duration) error { return nil }
func (noOpClient) get(context.Context, string) ([]byte, error)             { return nil, ErrCacheMiss }
func (noOpClient) del(context.Context, ...string) error                    { return nil }
func (noOpClient) deletePattern(context.Context, string) error             { return nil }
func (noOpClient) ping(context.Context) error                              { return nil }
