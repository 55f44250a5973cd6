// Package ledger 管理单个请求内上传文件的生命周期
//
// Ledger 对请求的全部临时文件拥有独占所有权：
//   - Allocate 创建临时文件（检查文件数量上限）
//   - Append 追加数据（检查单文件大小上限）
//   - Finalize 关闭写入句柄
//   - Take 将未消费的文件交给第一个命令，之后的命令不会再看到
//   - ReleaseAll 删除所有临时文件，幂等，由请求边界 defer 调用
//
// 超限时 Ledger 会先删除本请求已登记的全部文件，再返回 *LimitError。
package ledger

import (
	"errors"
	"fmt"
	"os"

	"github.com/containerd/errdefs"
)

// LimitKind 超限类型
type LimitKind string

const (
	LimitFileCount  LimitKind = "file_count"
	LimitFileSize   LimitKind = "file_size"
	LimitFieldCount LimitKind = "field_count"
	LimitFieldSize  LimitKind = "field_size"
)

// LimitError 上传超限错误
type LimitError struct {
	Kind  LimitKind
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("upload limit exceeded: %s > %d", e.Kind, e.Limit)
}

// Unwrap 使 errdefs.IsResourceExhausted 能识别超限错误
func (e *LimitError) Unwrap() error {
	return errdefs.ErrResourceExhausted
}

// IsLimit 判断错误是否为上传超限
func IsLimit(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// ErrReleased 在 ReleaseAll 之后继续使用 Ledger
var ErrReleased = errors.New("ledger already released")

// Limits 上传限制，0 表示不限制
type Limits struct {
	MaxFileCount int
	MaxFileSize  int64
}

// Meta 上传文件元信息
type Meta struct {
	Filename string
	Encoding string
	MimeType string
}

// FileRecord 已登记的上传文件
type FileRecord struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Encoding string `json:"encoding,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	TempPath string `json:"-"`
	Bytes    int64  `json:"bytes"`

	fd      *os.File
	removed bool
}

// Open 以只读方式打开临时文件，调用方负责关闭
//
// 命令处理函数可以读取文件，但不得删除或移动它。
func (f *FileRecord) Open() (*os.File, error) {
	return os.Open(f.TempPath)
}

// Ledger 单个请求的上传文件账本
//
// 每个请求独占一个 Ledger，请求内顺序访问，不做加锁。
type Ledger struct {
	limits  Limits
	tempDir string

	files    []*FileRecord // 全部登记过的文件（用于清理）
	pending  []*FileRecord // 尚未交给命令的文件
	released bool
}

// New 创建 Ledger，tempDir 为空时使用系统临时目录
func New(limits Limits, tempDir string) *Ledger {
	return &Ledger{limits: limits, tempDir: tempDir}
}

// Allocate 为新的上传文件创建临时文件
func (l *Ledger) Allocate(field string, meta Meta) (*FileRecord, error) {
	if l.released {
		return nil, ErrReleased
	}
	if l.limits.MaxFileCount > 0 && len(l.files) >= l.limits.MaxFileCount {
		l.removeAll()
		return nil, &LimitError{Kind: LimitFileCount, Limit: int64(l.limits.MaxFileCount)}
	}

	fd, err := os.CreateTemp(l.tempDir, "batchrpc-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	rec := &FileRecord{
		Field:    field,
		Filename: meta.Filename,
		Encoding: meta.Encoding,
		MimeType: meta.MimeType,
		TempPath: fd.Name(),
		fd:       fd,
	}
	l.files = append(l.files, rec)
	l.pending = append(l.pending, rec)
	return rec, nil
}

// Append 向文件追加数据，超过单文件上限时清理全部文件
func (l *Ledger) Append(rec *FileRecord, data []byte) error {
	if l.released || rec.removed {
		return ErrReleased
	}
	if rec.fd == nil {
		return fmt.Errorf("append to finalized file %s", rec.Field)
	}

	if l.limits.MaxFileSize > 0 && rec.Bytes+int64(len(data)) > l.limits.MaxFileSize {
		rec.Bytes += int64(len(data))
		l.removeAll()
		return &LimitError{Kind: LimitFileSize, Limit: l.limits.MaxFileSize}
	}

	n, err := rec.fd.Write(data)
	rec.Bytes += int64(n)
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	return nil
}

// Finalize 关闭文件写入句柄
func (l *Ledger) Finalize(rec *FileRecord) error {
	if rec.fd == nil {
		return nil
	}
	err := rec.fd.Close()
	rec.fd = nil
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// Take 取出尚未交给命令的文件并清空待消费列表
func (l *Ledger) Take() []*FileRecord {
	files := l.pending
	l.pending = nil
	return files
}

// Files 返回全部登记文件的快照
func (l *Ledger) Files() []*FileRecord {
	out := make([]*FileRecord, len(l.files))
	copy(out, l.files)
	return out
}

// Len 返回登记文件数量
func (l *Ledger) Len() int {
	return len(l.files)
}

// ReleaseAll 删除全部临时文件，可重复调用
func (l *Ledger) ReleaseAll() {
	l.removeAll()
	l.released = true
}

// removeAll 删除所有尚未删除的文件，每个文件最多删除一次
func (l *Ledger) removeAll() {
	for _, rec := range l.files {
		if rec.removed {
			continue
		}
		if rec.fd != nil {
			rec.fd.Close()
			rec.fd = nil
		}
		os.Remove(rec.TempPath)
		rec.removed = true
	}
	l.pending = nil
}
