// Package eventlog 命令生命周期事件（preCommand/postCommand）的输出端
//
// 调度器通过 hook.LogFunc 写入事件。事件数据约定：
//
//	correlationId  string          命令关联 ID
//	cmd            string          命令名
//	args           map[string]any  preCommand 时的参数
//	result         map[string]any  postCommand 时的结果
//
// Sink 返回的错误只会被记录，不影响命令执行。
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"batchrpc/internal/dispatch"
	"batchrpc/internal/hook"
	"batchrpc/internal/shared/eventbus"
	"batchrpc/internal/shared/model"
	"batchrpc/internal/shared/storage"
	"batchrpc/pkg/logging"
)

// Sink 事件输出端
type Sink interface {
	Log(ctx context.Context, event string, data map[string]any) error
}

// LogFunc 将 Sink 转换为调度器使用的日志函数，sink 为 nil 时返回 nil
func LogFunc(s Sink) hook.LogFunc {
	if s == nil {
		return nil
	}
	return s.Log
}

// ============================================================================
// Multi
// ============================================================================

type multi []Sink

// Multi 将事件依次写入多个输出端，忽略 nil，全部为 nil 时返回 nil
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

// Log 写入全部输出端，单个失败不影响其余输出端
func (m multi) Log(ctx context.Context, event string, data map[string]any) error {
	var errs []error
	for _, s := range m {
		if err := s.Log(ctx, event, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ============================================================================
// SlogSink
// ============================================================================

// SlogSink 写入结构化日志（debug 级别）
type SlogSink struct {
	logger *logging.Logger
}

// NewSlogSink 创建日志输出端
func NewSlogSink(logger *logging.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Log(ctx context.Context, event string, data map[string]any) error {
	attrs := []any{slog.String("event", event), slog.String("cmd", str(data["cmd"]))}
	if v, ok := data["args"]; ok {
		attrs = append(attrs, slog.Any("args", v))
	}
	if v, ok := data["result"]; ok {
		attrs = append(attrs, slog.Any("result", v))
	}
	s.logger.WithContext(ctx).Debug("API log", attrs...)
	return nil
}

// ============================================================================
// StreamSink
// ============================================================================

// StreamSink 发布到命令事件总线
type StreamSink struct {
	bus eventbus.CommandEventBus
	now func() time.Time
}

// NewStreamSink 创建事件总线输出端
func NewStreamSink(bus eventbus.CommandEventBus) *StreamSink {
	return &StreamSink{bus: bus, now: time.Now}
}

func (s *StreamSink) Log(ctx context.Context, event string, data map[string]any) error {
	payload := make(map[string]any, 1)
	if v, ok := data["args"]; ok {
		payload["args"] = v
	}
	if v, ok := data["result"]; ok {
		payload["result"] = v
	}
	err := s.bus.PublishCommandEvent(ctx, &eventbus.CommandEvent{
		Type:          event,
		CorrelationID: str(data["correlationId"]),
		Cmd:           str(data["cmd"]),
		Timestamp:     s.now(),
		Data:          payload,
	})
	if err != nil {
		return fmt.Errorf("stream sink: %w", err)
	}
	return nil
}

// ============================================================================
// AuditSink
// ============================================================================

// AuditSink 写入审计存储
type AuditSink struct {
	store  storage.AuditStore
	fields dispatch.ResultFields
	now    func() time.Time
}

// NewAuditSink 创建审计输出端，fields 用于判断 postCommand 结果是否失败
func NewAuditSink(store storage.AuditStore, fields dispatch.ResultFields) *AuditSink {
	return &AuditSink{store: store, fields: fields, now: time.Now}
}

func (s *AuditSink) Log(ctx context.Context, event string, data map[string]any) error {
	rec := &model.AuditRecord{
		Event:         model.AuditEventType(event),
		CorrelationID: str(data["correlationId"]),
		Cmd:           str(data["cmd"]),
		CreatedAt:     s.now(),
	}

	body := data["args"]
	if res, ok := data["result"].(map[string]any); ok {
		body = res
		rec.Failed = dispatch.Result(res).Failed(s.fields)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("audit sink: marshal %s: %w", event, err)
		}
		rec.Data = raw
	}

	if err := s.store.RecordAudit(ctx, rec); err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
