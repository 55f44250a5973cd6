// Package cache 缓存层类型定义
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// ErrNotFound 键不存在
var ErrNotFound = fmt.Errorf("cache key not found: %w", errdefs.ErrNotFound)

// ============================================================================
// Key 前缀和 TTL 常量
// ============================================================================

const (
	// KeyPrefix 所有 kv.* 命令写入的键都带此前缀，避免与其他数据冲突
	KeyPrefix = "batchrpc:kv:"

	// MaxKeyLength 客户端键名最大长度
	MaxKeyLength = 256

	// MaxTTL 允许设置的最长过期时间
	MaxTTL = 30 * 24 * time.Hour
)

// Key 返回带前缀的完整键名
func Key(key string) string {
	return KeyPrefix + key
}

// ValidateKey 校验客户端键名
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key is required: %w", errdefs.ErrInvalidArgument)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key longer than %d bytes: %w", MaxKeyLength, errdefs.ErrInvalidArgument)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("key contains whitespace: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}
