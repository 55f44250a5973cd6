// Package redis 命令事件总线的 Redis Streams 实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"batchrpc/internal/shared/eventbus"
)

// Store Redis 事件总线存储
type Store struct {
	client *redis.Client
	stream string
}

// NewStoreFromClient 从现有 Redis 客户端创建事件总线，stream 为空时使用默认名称
func NewStoreFromClient(client *redis.Client, stream string) *Store {
	if stream == "" {
		stream = eventbus.DefaultStream
	}
	return &Store{client: client, stream: stream}
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Stream 返回 Stream 名称
func (s *Store) Stream() string {
	return s.stream
}

// PublishCommandEvent 发布命令事件
func (s *Store) PublishCommandEvent(ctx context.Context, event *eventbus.CommandEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":           event.Type,
			"correlation_id": event.CorrelationID,
			"cmd":            event.Cmd,
			"timestamp":      ts.Format(time.RFC3339Nano),
			"data":           string(dataJSON),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	event.ID = id
	return nil
}

// GetCommandEvents 获取命令事件列表
func (s *Store) GetCommandEvents(ctx context.Context, fromID string, count int64) ([]*eventbus.CommandEvent, error) {
	if fromID == "" {
		fromID = "-"
	}

	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, s.stream, fromID, "+", count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, s.stream, fromID, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]*eventbus.CommandEvent, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, decodeMessage(msg))
	}
	return events, nil
}

// GetCommandEventCount 获取事件数量
func (s *Store) GetCommandEventCount(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, s.stream).Result()
}

func decodeMessage(msg redis.XMessage) *eventbus.CommandEvent {
	event := &eventbus.CommandEvent{ID: msg.ID}
	event.Type, _ = msg.Values["type"].(string)
	event.CorrelationID, _ = msg.Values["correlation_id"].(string)
	event.Cmd, _ = msg.Values["cmd"].(string)

	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}

	if dataStr, ok := msg.Values["data"].(string); ok {
		var data map[string]any
		if err := json.Unmarshal([]byte(dataStr), &data); err == nil {
			event.Data = data
		} else {
			log.Printf("[Redis/EventBus] Skipping undecodable data of %s: %v", msg.ID, err)
		}
	}
	return event
}

var _ eventbus.EventBus = (*Store)(nil)
