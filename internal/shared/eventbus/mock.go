// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"strconv"
	"sync"
)

// ============================================================================
// MemoryEventBus - 内存 EventBus 实现（用于测试）
// ============================================================================

// MemoryEventBus 记录全部已发布事件
type MemoryEventBus struct {
	mu     sync.Mutex
	events []*CommandEvent

	// PublishErr 非 nil 时 Publish 返回该错误
	PublishErr error
}

// NewMemoryEventBus 创建 MemoryEventBus 实例
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{}
}

// Close 关闭事件总线
func (e *MemoryEventBus) Close() error {
	return nil
}

func (e *MemoryEventBus) PublishCommandEvent(_ context.Context, event *CommandEvent) error {
	if e.PublishErr != nil {
		return e.PublishErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := *event
	ev.ID = strconv.Itoa(len(e.events) + 1)
	e.events = append(e.events, &ev)
	return nil
}

// GetCommandEvents 返回 ID 大于等于 fromID 的事件
func (e *MemoryEventBus) GetCommandEvents(_ context.Context, fromID string, count int64) ([]*CommandEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, _ := strconv.Atoi(fromID)
	var out []*CommandEvent
	for i, ev := range e.events {
		if i+1 < from {
			continue
		}
		out = append(out, ev)
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

func (e *MemoryEventBus) GetCommandEventCount(_ context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.events)), nil
}

// Events 返回已发布事件的快照
func (e *MemoryEventBus) Events() []*CommandEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*CommandEvent, len(e.events))
	copy(out, e.events)
	return out
}

var _ EventBus = (*MemoryEventBus)(nil)
