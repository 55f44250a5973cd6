// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// MemoryCache - 内存 Cache 实现（用于测试和未配置 Redis 的开发环境）
// ============================================================================

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache 进程内缓存
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memEntry
	now   func() time.Time
}

// NewMemoryCache 创建 MemoryCache 实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memEntry), now: time.Now}
}

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	return nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.items[Key(key)] = e
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(Key(key))
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookup(Key(key))
	delete(c.items, Key(key))
	return ok, nil
}

func (c *MemoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup(Key(key))
	if !ok {
		return 0, ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(c.now()), nil
}

// lookup 查找未过期的条目，过期条目顺带删除
func (c *MemoryCache) lookup(k string) (memEntry, bool) {
	e, ok := c.items[k]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.items, k)
		return memEntry{}, false
	}
	return e, true
}

var _ Cache = (*MemoryCache)(nil)
