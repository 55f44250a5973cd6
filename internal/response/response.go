// Package response 负责发送批量调用的 HTTP 响应
//
// 每个请求只能以一种方式结束：
//   - Aggregate：JSON 汇总结果（或非 2xx 的空响应）
//   - Stream：命令直接以附件形式下载字节流
//
// Finalizer 记录当前模式，重复发送返回 ErrAlreadyFinalized。
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrAlreadyFinalized 同一请求重复发送响应（程序错误）
var ErrAlreadyFinalized = errors.New("response already finalized")

// Mode 响应模式
type Mode int

const (
	ModePending Mode = iota
	ModeAggregate
	ModeStream
)

func (m Mode) String() string {
	switch m {
	case ModeAggregate:
		return "aggregate"
	case ModeStream:
		return "stream"
	default:
		return "pending"
	}
}

// 预检响应固定头
const (
	AllowMethods   = "OPTIONS, GET, HEAD, POST"
	PreflightCache = "max-age=86400"
	NoOrigin       = "none"
	DefaultStream  = "application/octet-stream"
)

// Finalizer 单个请求的响应发送器
type Finalizer struct {
	w      http.ResponseWriter
	r      *http.Request
	mode   Mode
	status int
	raw    bool // Stream 模式由 Writer() 直接写入开始
	onSend func()
}

// New 创建 Finalizer，onSend 在写出响应头之前调用一次（可为 nil）
func New(w http.ResponseWriter, r *http.Request, onSend func()) *Finalizer {
	return &Finalizer{w: w, r: r, onSend: onSend}
}

// Mode 返回当前响应模式
func (f *Finalizer) Mode() Mode {
	return f.mode
}

// Status 返回已发送的状态码，未发送时为 0
func (f *Finalizer) Status() int {
	return f.status
}

// Finalized 是否已发送响应
func (f *Finalizer) Finalized() bool {
	return f.mode != ModePending
}

// begin 切换模式并写入公共响应头
func (f *Finalizer) begin(mode Mode) error {
	if f.mode != ModePending {
		return fmt.Errorf("%w: %s after %s", ErrAlreadyFinalized, mode, f.mode)
	}
	f.mode = mode
	if f.onSend != nil {
		f.onSend()
	}

	origin := f.r.Header.Get("Origin")
	if origin == "" {
		origin = NoOrigin
	}
	h := f.w.Header()
	h.Set("Connection", "close")
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	return nil
}

// Writer 返回交给命令与拦截函数使用的 ResponseWriter
//
// 首次 Write/WriteHeader 将响应切换为 Stream 模式（写入公共响应头），之后本请求不能再发送汇总结果；
// 已由 Finalizer 发送的响应不能再写入，Write 返回 ErrAlreadyFinalized。
func (f *Finalizer) Writer() http.ResponseWriter {
	return &guardedWriter{f: f}
}

type guardedWriter struct {
	f *Finalizer
}

func (g *guardedWriter) Header() http.Header {
	return g.f.w.Header()
}

func (g *guardedWriter) WriteHeader(code int) {
	if g.claim() != nil {
		return
	}
	if g.f.status == 0 {
		g.f.status = code
		g.f.w.WriteHeader(code)
	}
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	if err := g.claim(); err != nil {
		return 0, err
	}
	if g.f.status == 0 {
		g.WriteHeader(http.StatusOK)
	}
	return g.f.w.Write(p)
}

// Flush 提交响应头并刷新缓冲
func (g *guardedWriter) Flush() {
	if g.claim() != nil {
		return
	}
	if g.f.status == 0 {
		g.WriteHeader(http.StatusOK)
	}
	http.NewResponseController(g.f.w).Flush()
}

// claim 首次写入时占用 Stream 模式
func (g *guardedWriter) claim() error {
	if g.f.raw {
		return nil
	}
	if err := g.f.begin(ModeStream); err != nil {
		return err
	}
	g.f.raw = true
	return nil
}

// SendAggregate 发送 JSON 响应
//
// 仅 2xx 状态码携带响应体；序列化失败时改发 500 空响应并返回错误。
func (f *Finalizer) SendAggregate(status int, body any) error {
	if err := f.begin(ModeAggregate); err != nil {
		return err
	}

	var data []byte
	if status >= 200 && status < 300 && body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			f.status = http.StatusInternalServerError
			f.w.WriteHeader(f.status)
			return fmt.Errorf("marshal aggregate: %w", err)
		}
	}

	f.w.Header().Set("Content-Type", "application/json")
	f.status = status
	f.w.WriteHeader(status)
	if len(data) > 0 {
		if _, err := f.w.Write(data); err != nil {
			return fmt.Errorf("write aggregate: %w", err)
		}
	}
	return nil
}

// SendStatus 发送不带响应体的状态码
func (f *Finalizer) SendStatus(status int) error {
	return f.SendAggregate(status, nil)
}

// SendStream 以附件形式发送字节流
//
// contentType 为空时使用 application/octet-stream；size < 0 表示长度未知。
func (f *Finalizer) SendStream(src io.Reader, filename, contentType string, size int64) error {
	if err := f.begin(ModeStream); err != nil {
		return err
	}
	if contentType == "" {
		contentType = DefaultStream
	}

	h := f.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", ContentDisposition(filename))
	if size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	f.status = http.StatusOK
	f.w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(f.w, src); err != nil {
		return fmt.Errorf("stream %s: %w", filename, err)
	}
	return nil
}

// Preflight 响应 OPTIONS 预检请求
func (f *Finalizer) Preflight() error {
	if err := f.begin(ModeAggregate); err != nil {
		return err
	}
	h := f.w.Header()
	h.Set("Allow", AllowMethods)
	h.Set("Cache-Control", PreflightCache)

	f.status = http.StatusNoContent
	f.w.WriteHeader(http.StatusNoContent)
	return nil
}

// ContentDisposition 构造附件下载头
//
// 非 ASCII 文件名额外附带 RFC 5987 的 filename* 参数。
func ContentDisposition(filename string) string {
	var b strings.Builder
	ascii := true
	for _, r := range filename {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case r > 0x7e:
			ascii = false
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	v := `attachment; filename="` + b.String() + `"`
	if !ascii {
		v += "; filename*=UTF-8''" + url.PathEscape(filename)
	}
	return v
}
