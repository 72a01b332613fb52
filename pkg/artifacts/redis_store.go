package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL     = "redis://localhost:6379"
	redisLocationPrefix = "redis:"
)

// RedisStore keeps blobs as Redis strings keyed by the sharded layout.
// Writes use SETNX, which is an atomic create-if-absent.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"` // Optional key prefix (e.g., "derive:")
}

// NewRedisStore constructs an artifact store backed by Redis.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	url := cfg.URL
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) keyFor(location string) (string, error) {
	want := redisLocationPrefix + s.prefix
	if !strings.HasPrefix(location, want) || !validObjectKey(strings.TrimPrefix(location, want)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	return strings.TrimPrefix(location, redisLocationPrefix), nil
}

func (s *RedisStore) StoreBytes(ctx context.Context, data []byte) (string, error) {
	key := s.prefix + ObjectKey(Digest(data))
	if _, err := s.client.SetNX(ctx, key, data, 0).Result(); err != nil {
		return "", fmt.Errorf("redis setnx failed: %w", err)
	}
	return redisLocationPrefix + key, nil
}

func (s *RedisStore) ReadBytes(ctx context.Context, location string) ([]byte, error) {
	key, err := s.keyFor(location)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("redis get failed for %s: %w", location, err)
	}
	return data, nil
}

func (s *RedisStore) ReadHead(ctx context.Context, location string, limit int) ([]byte, error) {
	key, err := s.keyFor(location)
	if err != nil {
		return nil, err
	}
	// GETRANGE answers "" for a missing key, so ask EXISTS in the same round trip.
	pipe := s.client.Pipeline()
	existsCmd := pipe.Exists(ctx, key)
	var rangeCmd *redis.StringCmd
	if limit > 0 {
		rangeCmd = pipe.GetRange(ctx, key, 0, int64(limit-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis getrange failed for %s: %w", location, err)
	}
	if existsCmd.Val() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if rangeCmd == nil {
		return []byte{}, nil
	}
	return rangeCmd.Bytes()
}

func (s *RedisStore) Exists(ctx context.Context, location string) (bool, error) {
	key, err := s.keyFor(location)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}
