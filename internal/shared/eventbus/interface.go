// Package eventbus 事件总线抽象接口
//
// 命令生命周期事件（preCommand/postCommand）发布到事件总线，
// 供外部消费者审计或回放，当前由 Redis Streams 实现。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// CommandEventBus 命令事件总线接口
type CommandEventBus interface {
	PublishCommandEvent(ctx context.Context, event *CommandEvent) error
	GetCommandEvents(ctx context.Context, fromID string, count int64) ([]*CommandEvent, error)
	GetCommandEventCount(ctx context.Context) (int64, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// EventBus 事件总线组合接口
type EventBus interface {
	CommandEventBus
	Close() error
}
