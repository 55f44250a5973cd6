// Package redis Redis 缓存实现
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"batchrpc/internal/shared/cache"
)

// Store Redis 缓存存储
type Store struct {
	client *redis.Client
}

// NewStoreFromURL 从 URL 创建 Redis 缓存实例
func NewStoreFromURL(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Cache] Connected to %s", opts.Addr)
	return &Store{client: client}, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建缓存实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Client 返回底层 Redis 客户端
func (s *Store) Client() *redis.Client {
	return s.client
}

// Set 写入键值，ttl 为 0 表示不过期
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, cache.Key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Get 读取键值
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, cache.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", cache.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Delete 删除键，返回键删除前是否存在
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, cache.Key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return n > 0, nil
}

// TTL 返回剩余过期时间，不过期返回 0
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, cache.Key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get ttl of %s: %w", key, err)
	}
	// go-redis: -2 键不存在，-1 未设置过期
	switch d {
	case -2:
		return 0, cache.ErrNotFound
	case -1:
		return 0, nil
	}
	return d, nil
}

var _ cache.Cache = (*Store)(nil)
