// Package server 批量 RPC 的 HTTP 入口
package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"batchrpc/internal/assembler"
	"batchrpc/internal/dispatch"
	"batchrpc/internal/hook"
	"batchrpc/internal/ledger"
	"batchrpc/pkg/logging"
)

// Options HTTP 入口配置
type Options struct {
	// GetBase 非空时启用 GET 调用，值为 URL 前缀
	GetBase string

	FieldLimits assembler.Limits
	FileLimits  ledger.Limits
	TempDir     string

	Hooks   hook.Set
	Logger  *logging.Logger
	Metrics *Metrics
}

// Handler 处理所有 RPC 请求
type Handler struct {
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	assembler  *assembler.Assembler

	getBase    string
	fileLimits ledger.Limits
	tempDir    string

	hooks   hook.Set
	logger  *logging.Logger
	metrics *Metrics

	requests atomic.Int64
	started  time.Time
}

// NewHandler 创建 Handler
//
// dispatcher 应使用同一个 Metrics 作为 Observer，命令指标才会出现在 /metrics 中。
func NewHandler(registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics("batchrpc", nil)
	}
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		assembler:  assembler.New(opts.FieldLimits),
		getBase:    opts.GetBase,
		fileLimits: opts.FileLimits,
		tempDir:    opts.TempDir,
		hooks:      opts.Hooks,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		started:    time.Now(),
	}
}

// Router 创建路由
//
// /health 与 /metrics 只响应 GET，其余请求全部进入 RPC 入口。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("/", h.ServeRPC)

	return h.metrics.MetricsMiddleware(mux)
}

// Requests 返回已处理的 RPC 请求数
func (h *Handler) Requests() int64 {
	return h.requests.Load()
}

// Health 健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"requests": h.requests.Load(),
		"commands": h.registry.Len(),
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// generateID 生成请求 ID
func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// clientIP 提取客户端地址
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
