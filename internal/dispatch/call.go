package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"batchrpc/internal/ledger"
	"batchrpc/internal/response"
)

// HandlerFunc 命令处理函数
//
// 返回 error（或 panic）表示系统错误，调度器会合成 SYSERR 结果；
// 业务失败应通过 call.Fail 返回带错误码的结果。返回 nil 结果视为空对象。
type HandlerFunc func(ctx context.Context, call *Call) (Result, error)

// Call 单次命令调用的上下文
type Call struct {
	Command       string
	Args          map[string]any
	Files         []*ledger.FileRecord // 仅第一个命令可见
	CorrelationID string

	// 高级用法：直接访问请求或以字节流响应（如文件下载）
	// 直接写 Writer 即进入 Stream 模式，批次在本命令后结束
	Request  *http.Request
	Writer   http.ResponseWriter
	Response *response.Finalizer

	fields ResultFields
}

// Fail 构造业务失败结果
func (c *Call) Fail(code, message string) Result {
	return Result{
		c.fields.ErrCode: code,
		c.fields.ErrMsg:  message,
		c.fields.ErrLoc:  c.Command,
	}
}

// String 读取字符串参数，数字和布尔值会被格式化为字符串
func (c *Call) String(key string) (string, bool) {
	v, ok := c.Args[key]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// StringOr 读取字符串参数，缺失时返回默认值
func (c *Call) StringOr(key, def string) string {
	if s, ok := c.String(key); ok {
		return s
	}
	return def
}

// Int 读取整数参数，支持 JSON 数字与数字字符串（GET 调用的参数均为字符串）
func (c *Call) Int(key string) (int64, bool) {
	switch x := c.Args[key].(type) {
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
