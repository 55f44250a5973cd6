// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"batchrpc/internal/shared/cache"
	cacheredis "batchrpc/internal/shared/cache/redis"
	"batchrpc/internal/shared/eventbus"
	eventbusredis "batchrpc/internal/shared/eventbus/redis"
)

// RedisInfra Redis 基础设施
//
// 同一个连接同时服务 kv.* 命令缓存和命令事件 Stream。
type RedisInfra struct {
	cacheStore    *cacheredis.Store
	eventBusStore *eventbusredis.Store

	client *redis.Client
}

// NewRedisInfra 从 URL 创建 Redis 基础设施
func NewRedisInfra(redisURL, stream string) (*RedisInfra, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)
	return newRedisInfra(client, stream), nil
}

func newRedisInfra(client *redis.Client, stream string) *RedisInfra {
	return &RedisInfra{
		client:        client,
		cacheStore:    cacheredis.NewStoreFromClient(client),
		eventBusStore: eventbusredis.NewStoreFromClient(client, stream),
	}
}

// Cache 返回缓存组件接口
func (r *RedisInfra) Cache() cache.Cache {
	return r.cacheStore
}

// EventBus 返回事件总线组件接口
func (r *RedisInfra) EventBus() eventbus.EventBus {
	return r.eventBusStore
}

// Client 返回底层 Redis 客户端
func (r *RedisInfra) Client() *redis.Client {
	return r.client
}

// Close 关闭 Redis 连接
func (r *RedisInfra) Close() error {
	return r.client.Close()
}
