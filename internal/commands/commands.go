// Package commands 内置命令
//
// 参数错误作为命令级失败返回（错误码 BADARGS），键或对象不存在返回 NOTFOUND；
// 后端故障以 error 返回，由调度器合成系统错误结果。
package commands

import (
	"context"
	"io"
	"time"

	"batchrpc/internal/dispatch"
	"batchrpc/internal/shared/cache"
	objstore "batchrpc/internal/shared/minio"
)

// 命令级错误码
const (
	CodeBadArgs     = "BADARGS"
	CodeNotFound    = "NOTFOUND"
	CodeUnavailable = "UNAVAILABLE"
)

// BlobStore blob.* 命令使用的对象存储
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (objstore.ObjectInfo, error)
	Download(ctx context.Context, key string) (io.ReadCloser, objstore.ObjectInfo, error)
	Stat(ctx context.Context, key string) (objstore.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Deps 内置命令的依赖，未配置的依赖对应命令不注册
type Deps struct {
	Cache cache.KVCache
	Blob  BlobStore
	Now   func() time.Time
}

// Register 注册全部内置命令
func Register(reg *dispatch.Registry, deps Deps) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	handlers := map[string]dispatch.HandlerFunc{
		"ping":       ping(deps.Now),
		"echo":       echo,
		"time":       serverTime(deps.Now),
		"files.list": filesList,
	}

	if deps.Cache != nil {
		kv := &kvCommands{cache: deps.Cache}
		handlers["kv.set"] = kv.set
		handlers["kv.get"] = kv.get
		handlers["kv.del"] = kv.del
	}

	if deps.Blob != nil {
		blob := &blobCommands{store: deps.Blob}
		handlers["blob.put"] = blob.put
		handlers["blob.get"] = blob.get
		handlers["blob.stat"] = blob.stat
		handlers["blob.del"] = blob.del
	}

	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}
