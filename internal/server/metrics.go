// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"batchrpc/internal/dispatch"
	"batchrpc/internal/ledger"
)

// Metrics 包含所有 RPC Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 命令指标
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	BatchesTotal    *prometheus.CounterVec

	// 上传指标
	UploadedFilesTotal prometheus.Counter
	UploadedBytesTotal prometheus.Counter
	LimitRejections    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics 创建指标实例，reg 为 nil 时注册到全局默认 Registry
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total executed commands by name and outcome",
			},
			[]string{"cmd", "outcome"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command handler duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"cmd"},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total batches by outcome",
			},
			[]string{"outcome"},
		),
		UploadedFilesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_files_total",
				Help:      "Total uploaded files accepted",
			},
		),
		UploadedBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_bytes_total",
				Help:      "Total uploaded bytes accepted",
			},
		),
		LimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_limit_rejections_total",
				Help:      "Requests rejected by upload limits",
			},
			[]string{"kind"},
		),
		gatherer: gatherer,
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath 规范化路径，RPC 路径携带命令和参数，统一归为一类避免高基数
func normalizePath(path string) string {
	switch path {
	case "/health", "/metrics":
		return path
	default:
		return "rpc"
	}
}

// Handler 返回 Prometheus HTTP Handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCommand 记录命令执行指标（实现 dispatch.Observer）
func (m *Metrics) ObserveCommand(cmd, outcome string, d time.Duration) {
	m.CommandsTotal.WithLabelValues(cmd, outcome).Inc()
	m.CommandDuration.WithLabelValues(cmd).Observe(d.Seconds())
}

// RecordBatch 记录批量调用结果
func (m *Metrics) RecordBatch(outcome dispatch.Outcome) {
	m.BatchesTotal.WithLabelValues(outcome.String()).Inc()
}

// RecordUploads 记录已接收的上传文件
func (m *Metrics) RecordUploads(files []*ledger.FileRecord) {
	for _, f := range files {
		m.UploadedFilesTotal.Inc()
		m.UploadedBytesTotal.Add(float64(f.Bytes))
	}
}

// RecordLimit 记录上传超限
func (m *Metrics) RecordLimit(kind ledger.LimitKind) {
	m.LimitRejections.WithLabelValues(string(kind)).Inc()
}

var _ dispatch.Observer = (*Metrics)(nil)
