// Package cache 缓存层抽象接口
//
// 为 kv.* 内置命令提供带过期时间的键值存取，当前由 Redis 实现。
package cache

import (
	"context"
	"time"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// KVCache 键值缓存接口
//
// 键不存在时 Get 返回 ErrNotFound。ttl 为 0 表示不过期。
type KVCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	KVCache
	Close() error
}
