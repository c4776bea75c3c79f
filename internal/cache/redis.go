package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/watchstack/watchstack-anomaly/internal/models"
)

// RedisConfig holds connection parameters for the Redis instance backing the
// dedupe window and the recent-alert list.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// redisCommands is the slice of the go-redis client this package uses,
// carved out so tests can substitute an in-memory fake.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// RedisProvider implements Provider on top of go-redis.
type RedisProvider struct {
	client redisCommands
}

// NewRedisProvider connects to Redis and pings it to fail fast when
// connectivity or credentials are wrong.
func NewRedisProvider(cfg RedisConfig) (*RedisProvider, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeoutOrDefault(cfg.DialTimeout))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	return &RedisProvider{client: client}, nil
}

func dialTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := p.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value with the given TTL.
func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.client.Set(ctx, key, value, ttl).Err()
}

// SetNX stores the value only when the key does not exist and reports whether
// it was stored.
func (p *RedisProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.client.SetNX(ctx, key, value, ttl).Result()
}

// Del removes a key.
func (p *RedisProvider) Del(ctx context.Context, key string) error {
	return p.client.Del(ctx, key).Err()
}

// Close releases the connection pool.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

const (
	alertListKey  = "alerts:recent"
	alertListSize = 999
)

// AlertStore persists emitted alert records to a capped Redis list so recent
// history survives a detector restart.
type AlertStore struct {
	client redisCommands
	ttl    time.Duration
}

// NewAlertStore builds an AlertStore sharing the provider's connection.
func NewAlertStore(provider *RedisProvider, ttl time.Duration) *AlertStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AlertStore{client: provider.client, ttl: ttl}
}

// Persist writes the record under its anomaly ID and pushes it onto the
// recent list, trimming the list to its cap.
func (s *AlertStore) Persist(ctx context.Context, record models.AlertRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", record.AnomalyID, err)
	}

	key := "alerts:record:" + record.AnomalyID
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store alert %s: %w", record.AnomalyID, err)
	}
	if err := s.client.LPush(ctx, alertListKey, key).Err(); err != nil {
		return fmt.Errorf("index alert %s: %w", record.AnomalyID, err)
	}
	return s.client.LTrim(ctx, alertListKey, 0, alertListSize).Err()
}

// Recent returns up to count of the most recently emitted alert records,
// newest first. Records whose keys expired are skipped.
func (s *AlertStore) Recent(ctx context.Context, count int64) ([]models.AlertRecord, error) {
	keys, err := s.client.LRange(ctx, alertListKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}

	records := make([]models.AlertRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var record models.AlertRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Count reports how many entries the recent-alert list currently holds,
// including entries whose record keys have since expired.
func (s *AlertStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, alertListKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count recent alerts: %w", err)
	}
	return n, nil
}
