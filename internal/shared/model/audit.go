// Package model 定义核心数据模型
package model

import (
	"encoding/json"
	"time"
)

// AuditEventType 审计事件类型
type AuditEventType string

const (
	AuditPreCommand  AuditEventType = "preCommand"
	AuditPostCommand AuditEventType = "postCommand"
)

// AuditRecord 一条命令生命周期审计记录
//
// Data 为事件负载（preCommand 为参数，postCommand 为结果）的 JSON。
type AuditRecord struct {
	ID            string          `json:"id" bson:"_id"`
	Event         AuditEventType  `json:"event" bson:"event"`
	CorrelationID string          `json:"correlation_id" bson:"correlation_id"`
	Cmd           string          `json:"cmd" bson:"cmd"`
	Failed        bool            `json:"failed" bson:"failed"`
	Data          json.RawMessage `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
}

// AuditFilter 审计记录查询条件，零值字段不参与过滤
type AuditFilter struct {
	CorrelationID string
	Cmd           string
	Event         AuditEventType
	Since         time.Time
	Limit         int
}

// DefaultAuditLimit 未指定 Limit 时的默认条数
const DefaultAuditLimit = 100
