// Package client 批量 RPC 的 Go 客户端
//
// 用法：
//
//	q := client.New("http://localhost:8080/")
//	q.AddCommand("kv.set", map[string]any{"key": "a", "value": 1}, nil).
//		AddCommand("kv.get", map[string]any{"key": "a"}, "get-a")
//	results, err := q.Exec(ctx)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/containerd/errdefs"
)

// DefaultTimeout 默认请求超时
const DefaultTimeout = 60 * time.Second

// ErrNotAggregate 服务端以字节流响应（例如文件下载），应使用 Do
var ErrNotAggregate = errors.New("response is not an aggregate result")

// StatusError 服务端返回非 200 状态码
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("batch rejected: status %d", e.Code)
}

// Unwrap 映射为 errdefs 错误类型
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return errdefs.ErrInvalidArgument
	case http.StatusRequestEntityTooLarge:
		return errdefs.ErrResourceExhausted
	case http.StatusMethodNotAllowed:
		return errdefs.ErrNotImplemented
	default:
		return errdefs.ErrUnknown
	}
}

// Result 单个命令的结果
type Result map[string]any

type command struct {
	Cmd  string         `json:"cmd"`
	Args map[string]any `json:"args"`
	ID   any            `json:"id,omitempty"`
}

type file struct {
	field    string
	filename string
	r        io.Reader
}

type aggregate struct {
	CommandCount  int      `json:"commandCount"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Aborted       int      `json:"aborted"`
	Results       []Result `json:"results"`
	TotalExecTime *float64 `json:"totalExecTime"`
}

// Option 客户端选项
type Option func(*Query)

// WithHTTPClient 使用自定义 http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(q *Query) { q.httpClient = c }
}

// Query 一次批量调用的构造器，执行后保存汇总结果
//
// Query 不是并发安全的。
type Query struct {
	url        string
	httpClient *http.Client

	commands     []command
	files        []file
	benchmark    bool
	ignoreErrors bool

	// 最近一次 Exec 的汇总结果
	Results       []Result
	CommandCount  int
	Succeeded     int
	Failed        int
	Aborted       int
	TotalExecTime *float64
}

// New 创建指向 url 的批量调用
func New(url string, opts ...Option) *Query {
	q := &Query{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddCommand 追加命令，id 为 nil 时不发送
func (q *Query) AddCommand(cmd string, args map[string]any, id any) *Query {
	if args == nil {
		args = map[string]any{}
	}
	q.commands = append(q.commands, command{Cmd: cmd, Args: args, ID: id})
	return q
}

// Benchmark 请求服务端返回执行耗时
func (q *Query) Benchmark(v bool) *Query {
	q.benchmark = v
	return q
}

// IgnoreErrors 命令失败后继续执行后续命令
func (q *Query) IgnoreErrors(v bool) *Query {
	q.ignoreErrors = v
	return q
}

// AddFile 附加上传文件，Exec 时读取 r
func (q *Query) AddFile(field, filename string, r io.Reader) *Query {
	q.files = append(q.files, file{field: field, filename: filename, r: r})
	return q
}

// Reset 清空命令、文件和上次的结果，保留选项
func (q *Query) Reset() *Query {
	q.commands = nil
	q.files = nil
	q.Results = nil
	q.CommandCount = 0
	q.Succeeded = 0
	q.Failed = 0
	q.Aborted = 0
	q.TotalExecTime = nil
	return q
}

// Do 发送请求并返回原始响应，调用方负责关闭 Body
//
// 非 200 状态码返回 *StatusError。
func (q *Query) Do(ctx context.Context) (*http.Response, error) {
	body, contentType, err := q.encode()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

// Exec 执行批量调用并返回各命令结果
func (q *Query) Exec(ctx context.Context) ([]Result, error) {
	resp, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 附件即使声明为 JSON 也是命令的字节流
	disposition, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if disposition == "attachment" || mediaType != "application/json" {
		return nil, ErrNotAggregate
	}

	var agg aggregate
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		return nil, fmt.Errorf("decode aggregate: %w", err)
	}

	q.Results = agg.Results
	q.CommandCount = agg.CommandCount
	q.Succeeded = agg.Succeeded
	q.Failed = agg.Failed
	q.Aborted = agg.Aborted
	q.TotalExecTime = agg.TotalExecTime
	return q.Results, nil
}

// Req 执行单个命令并返回其结果
func (q *Query) Req(ctx context.Context, cmd string, args map[string]any) (Result, error) {
	q.Reset()
	q.AddCommand(cmd, args, nil)
	results, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result for %q", cmd)
	}
	return results[0], nil
}

// encode 构造 multipart 请求体
func (q *Query) encode() (io.Reader, string, error) {
	doc := struct {
		Commands []command      `json:"commands"`
		Options  map[string]any `json:"options,omitempty"`
	}{Commands: q.commands}
	if doc.Commands == nil {
		doc.Commands = []command{}
	}
	if q.benchmark || q.ignoreErrors {
		doc.Options = map[string]any{}
		if q.benchmark {
			doc.Options["benchmark"] = true
		}
		if q.ignoreErrors {
			doc.Options["ignoreErrors"] = true
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload", string(raw)); err != nil {
		return nil, "", err
	}
	for _, f := range q.files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(fw, f.r); err != nil {
			return nil, "", fmt.Errorf("read file %s: %w", f.filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
