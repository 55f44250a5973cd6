// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	RequestIDKey     ContextKey = "request_id"
	CorrelationIDKey ContextKey = "correlation_id"
	CommandKey       ContextKey = "command"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json or text
	Output    string `json:"output"` // stdout, stderr, or file path
	Component string `json:"component"`
}

// ParseLevel 将字符串解析为 slog 级别，未知值回退到 info
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	return NewWithWriter(output, cfg.Format, level, cfg.Component)
}

// NewWithWriter 使用指定 writer 创建日志器（测试中写入 buffer）
func NewWithWriter(w io.Writer, format string, level slog.Level, component string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", component)),
		component: component,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// Discard 丢弃所有输出的日志器
func Discard() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		component: "discard",
	}
}

// Component 返回组件名
func (l *Logger) Component() string {
	return l.component
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok && correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	if cmd, ok := ctx.Value(CommandKey).(string); ok && cmd != "" {
		attrs = append(attrs, slog.String("command", cmd))
	}
	if len(attrs) == 0 {
		return l
	}

	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithRequestID 添加请求 ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("request_id", requestID)),
		component: l.component,
	}
}

// WithCorrelationID 添加命令关联 ID
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("correlation_id", correlationID)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Milliseconds()))),
		component: l.component,
	}
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// CommandLog 命令执行日志
func (l *Logger) CommandLog(cmd, correlationID, outcome string, duration time.Duration, extra ...any) {
	attrs := []any{
		slog.String("cmd", cmd),
		slog.String("correlation_id", correlationID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	}
	attrs = append(attrs, extra...)
	if outcome == "failed" {
		l.Logger.Warn("Command finished", attrs...)
		return
	}
	l.Logger.Debug("Command finished", attrs...)
}
