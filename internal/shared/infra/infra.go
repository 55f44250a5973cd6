// Package infra 基础设施聚合层
//
// 按配置初始化可选的外部依赖并统一关闭：
//   - Cache：kv.* 命令（Redis，未配置时为进程内缓存）
//   - EventBus：命令事件 Stream（Redis）
//   - Blob：blob.* 命令（MinIO）
//   - Audit：命令事件审计表（SQLite / PostgreSQL / MongoDB）
package infra

import (
	"context"
	"fmt"
	"log"

	"batchrpc/internal/config"
	"batchrpc/internal/shared/cache"
	"batchrpc/internal/shared/eventbus"
	objstore "batchrpc/internal/shared/minio"
	"batchrpc/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构，未配置的组件为 nil
type Infrastructure struct {
	Cache    cache.Cache
	EventBus eventbus.EventBus
	Blob     *objstore.Client
	Audit    storage.AuditStore

	redis *RedisInfra
}

// New 按配置初始化基础设施，任一组件失败时关闭已初始化的组件
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	inf := &Infrastructure{}

	if cfg.RedisEnabled {
		r, err := NewRedisInfra(cfg.RedisURL, cfg.RedisStream)
		if err != nil {
			return nil, err
		}
		inf.redis = r
		inf.Cache = r.Cache()
		inf.EventBus = r.EventBus()
	} else {
		log.Printf("[Infra] Redis not configured, kv.* commands use in-process cache")
		inf.Cache = cache.NewMemoryCache()
	}

	if cfg.MinIOEnabled() {
		blob, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			inf.Close()
			return nil, err
		}
		if err := blob.EnsureBucket(ctx); err != nil {
			inf.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		inf.Blob = blob
	}

	if cfg.AuditDriver != "" && cfg.AuditDriver != "none" {
		audit, err := OpenAudit(ctx, cfg.AuditDriver, cfg.AuditDSN, cfg.AuditDBName)
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.Audit = audit
	}

	return inf, nil
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var lastErr error

	if i.Audit != nil {
		if err := i.Audit.Close(); err != nil {
			lastErr = err
		}
	}

	// Cache 与 EventBus 共享同一个 Redis 连接
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			lastErr = err
		}
	} else if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// NewNoOpInfrastructure 创建仅含内存缓存的基础设施（用于测试）
func NewNoOpInfrastructure() *Infrastructure {
	return &Infrastructure{Cache: cache.NewMemoryCache()}
}
