// Package storage 定义存储层领域错误
//
// 各驱动实现（repository/mongostore）负责将底层错误转换为这些领域错误。
package storage

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrNotFound 实体不存在
	// 替代 sql.ErrNoRows / mongo.ErrNoDocuments
	ErrNotFound = fmt.Errorf("entity not found: %w", errdefs.ErrNotFound)

	// ErrDuplicate 唯一键冲突（INSERT 重复 ID）
	ErrDuplicate = fmt.Errorf("duplicate: entity already exists: %w", errdefs.ErrAlreadyExists)
)
