// Package hook 定义请求与命令生命周期的外部拦截点
//
// 所有拦截函数均为可选，同步调用，返回值被忽略（日志函数的错误只记录，不影响命令）。
package hook

import (
	"context"
	"net/http"

	"batchrpc/internal/payload"
)

// 日志事件类型
const (
	EventPreCommand  = "preCommand"
	EventPostCommand = "postCommand"
)

// LogFunc 命令日志函数
type LogFunc func(ctx context.Context, event string, data map[string]any) error

// Set 拦截函数集合
type Set struct {
	Log         LogFunc
	PreRequest  func(r *http.Request, w http.ResponseWriter)
	PreCommand  func(r *http.Request, w http.ResponseWriter, cmd *payload.Command)
	PostCommand func(r *http.Request, w http.ResponseWriter, cmd *payload.Command, result map[string]any)
	PreResponse func(r *http.Request, w http.ResponseWriter)
}

// OnLog 调用日志函数
func (s Set) OnLog(ctx context.Context, event string, data map[string]any) error {
	if s.Log == nil {
		return nil
	}
	return s.Log(ctx, event, data)
}

// OnPreRequest 调用请求入口拦截
func (s Set) OnPreRequest(r *http.Request, w http.ResponseWriter) {
	if s.PreRequest != nil {
		s.PreRequest(r, w)
	}
}

// OnPreCommand 调用命令执行前拦截
func (s Set) OnPreCommand(r *http.Request, w http.ResponseWriter, cmd *payload.Command) {
	if s.PreCommand != nil {
		s.PreCommand(r, w, cmd)
	}
}

// OnPostCommand 调用命令执行后拦截
func (s Set) OnPostCommand(r *http.Request, w http.ResponseWriter, cmd *payload.Command, result map[string]any) {
	if s.PostCommand != nil {
		s.PostCommand(r, w, cmd, result)
	}
}

// OnPreResponse 调用响应发送前拦截
func (s Set) OnPreResponse(r *http.Request, w http.ResponseWriter) {
	if s.PreResponse != nil {
		s.PreResponse(r, w)
	}
}
