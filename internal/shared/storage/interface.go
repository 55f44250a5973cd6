// Package storage 定义持久化存储层抽象接口
//
// 调用方只依赖接口，具体实现在子包中：
//   - repository/：database/sql 实现，方言由 driver/sqlite、driver/postgres 提供
//   - mongostore/：MongoDB 实现
package storage

import (
	"context"

	"batchrpc/internal/shared/model"
)

// AuditStore 命令审计存储接口
type AuditStore interface {
	// RecordAudit 写入一条审计记录，ID 为空时由实现生成
	RecordAudit(ctx context.Context, rec *model.AuditRecord) error

	// GetAudit 按 ID 读取，不存在返回 ErrNotFound
	GetAudit(ctx context.Context, id string) (*model.AuditRecord, error)

	// ListAudit 按创建时间倒序列出审计记录
	ListAudit(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error)

	// CountAudit 统计符合条件的记录数（忽略 Limit）
	CountAudit(ctx context.Context, filter model.AuditFilter) (int64, error)

	Close() error
}
