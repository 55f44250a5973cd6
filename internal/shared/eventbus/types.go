// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// CommandEvent 命令生命周期事件
type CommandEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"` // preCommand / postCommand
	CorrelationID string         `json:"correlation_id"`
	Cmd           string         `json:"cmd"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// DefaultStream 默认 Stream 名称
	DefaultStream = "batchrpc:events"

	// Stream 最大长度（近似裁剪）
	MaxStreamLength = 10000
)
