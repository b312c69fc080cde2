package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/models"
	"call-recap-service/internal/observability/logging"
	"call-recap-service/internal/observability/metrics"
)

const (
	recordKeyPrefix = "record:"
	indexKey        = "records:index"
)

// ErrNotFound is returned when no record exists for a session.
var ErrNotFound = errors.New("record not found")

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // zero keeps records forever
}

// RedisStore keeps each record as JSON under record:<session> and indexes
// session keys by end time in a sorted set.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, metrics: metrics.DefaultMetrics}
}

// WithMetrics replaces the store's metrics.
func (s *RedisStore) WithMetrics(m *metrics.Metrics) *RedisStore {
	s.metrics = m
	return s
}

// Save writes the record and its index entry in one transaction.
func (s *RedisStore) Save(ctx context.Context, rec models.StructuredRecord) (string, error) {
	key := recordKeyPrefix + rec.Session.ID
	payload, err := json.Marshal(rec)
	if err != nil {
		s.metrics.RecordStorage(BackendRedis, err)
		return "", errs.StorageFailed(BackendRedis, err)
	}

	score := float64(rec.CreatedAt.Unix())
	if rec.Session.EndedAt != nil {
		score = float64(rec.Session.EndedAt.Unix())
	}

	_, err = s.client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.Set(key, payload, s.ttl)
		pipe.ZAdd(indexKey, redis.Z{Score: score, Member: key})
		return nil
	})
	s.metrics.RecordStorage(BackendRedis, err)
	if err != nil {
		return "", errs.StorageFailed(BackendRedis, err)
	}

	logger := logging.FromContext(ctx)
	logger.Debug().Str("key", key).Int("bytes", len(payload)).Msg("Record stored in redis")
	return key, nil
}

// Get loads the record for a session.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (models.StructuredRecord, error) {
	var rec models.StructuredRecord
	data, err := s.client.WithContext(ctx).Get(recordKeyPrefix + sessionID).Bytes()
	if err == redis.Nil {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode record %s: %w", sessionID, err)
	}
	return rec, nil
}

// Recent returns up to n record keys, newest first.
func (s *RedisStore) Recent(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.client.WithContext(ctx).ZRevRange(indexKey, 0, int64(n-1)).Result()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
