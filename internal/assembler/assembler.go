// Package assembler 将 HTTP 请求体组装为表单字段与上传文件
//
// 支持三种请求体：
//   - multipart/form-data：普通字段写入 Fields，文件流式写入 Ledger
//   - application/x-www-form-urlencoded：全部写入 Fields
//   - application/json：整个请求体作为 payload 字段
//
// 任何超限都返回 *ledger.LimitError，且本请求已登记的文件全部删除。
package assembler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/containerd/errdefs"

	"batchrpc/internal/ledger"
)

// PayloadField 承载批量命令 JSON 的表单字段名
const PayloadField = "payload"

// 默认单次读取的块大小
const defaultChunkSize = 32 * 1024

// ErrMalformed 请求体无法解析
var ErrMalformed = fmt.Errorf("malformed request body: %w", errdefs.ErrInvalidArgument)

// Limits 表单字段限制，0 表示不限制
type Limits struct {
	MaxFieldCount int
	MaxFieldSize  int64
}

// Request 组装后的请求
type Request struct {
	Fields map[string]string
	Files  *ledger.Ledger

	fieldParts int // 已读取的字段数（重名字段也计数）
}

// Payload 返回 payload 字段的原始内容
func (r *Request) Payload() ([]byte, bool) {
	v, ok := r.Fields[PayloadField]
	return []byte(v), ok
}

// Assembler 请求体组装器
type Assembler struct {
	limits    Limits
	chunkSize int
}

// New 创建组装器
func New(limits Limits) *Assembler {
	return &Assembler{limits: limits, chunkSize: defaultChunkSize}
}

// Assemble 读取请求体，文件写入 files
//
// 出错时调用方仍需对 files 调用 ReleaseAll。
func (a *Assembler) Assemble(r *http.Request, files *ledger.Ledger) (*Request, error) {
	req := &Request{Fields: make(map[string]string), Files: files}
	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: content type: %v", ErrMalformed, err)
	}

	switch mediaType {
	case "multipart/form-data":
		err = a.readMultipart(r, req)
	case "application/x-www-form-urlencoded":
		err = a.readURLEncoded(r, req)
	case "application/json":
		err = a.readJSON(r, req)
	default:
		err = fmt.Errorf("%w: unsupported content type %q", ErrMalformed, mediaType)
	}
	if err != nil {
		if ledger.IsLimit(err) {
			files.ReleaseAll()
		}
		return nil, err
	}
	return req, nil
}

func (a *Assembler) readMultipart(r *http.Request, req *Request) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	buf := make([]byte, a.chunkSize)
	for {
		if err := r.Context().Err(); err != nil {
			return err
		}

		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		if part.FileName() != "" {
			err = a.readFilePart(part, req.Files, buf)
		} else {
			err = a.readFieldPart(part, req)
		}
		part.Close()
		if err != nil {
			return err
		}
	}
}

func (a *Assembler) readFilePart(part *multipart.Part, files *ledger.Ledger, buf []byte) error {
	rec, err := files.Allocate(part.FormName(), ledger.Meta{
		Filename: part.FileName(),
		Encoding: part.Header.Get("Content-Transfer-Encoding"),
		MimeType: part.Header.Get("Content-Type"),
	})
	if err != nil {
		return err
	}

	for {
		n, rerr := part.Read(buf)
		if n > 0 {
			if err := files.Append(rec, buf[:n]); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("%w: read file %s: %v", ErrMalformed, part.FormName(), rerr)
		}
	}
	return files.Finalize(rec)
}

func (a *Assembler) readFieldPart(part *multipart.Part, req *Request) error {
	if err := a.checkFieldCount(req); err != nil {
		return err
	}
	value, err := a.readLimited(part)
	if err != nil {
		return err
	}
	req.Fields[part.FormName()] = value
	return nil
}

func (a *Assembler) readURLEncoded(r *http.Request, req *Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for name, vals := range values {
		if err := a.checkFieldCount(req); err != nil {
			return err
		}
		v := vals[len(vals)-1]
		if a.limits.MaxFieldSize > 0 && int64(len(v)) > a.limits.MaxFieldSize {
			return &ledger.LimitError{Kind: ledger.LimitFieldSize, Limit: a.limits.MaxFieldSize}
		}
		req.Fields[name] = v
	}
	return nil
}

func (a *Assembler) readJSON(r *http.Request, req *Request) error {
	value, err := a.readLimited(r.Body)
	if err != nil {
		return err
	}
	req.Fields[PayloadField] = value
	return nil
}

// readLimited 读取字段值，超过 MaxFieldSize 时返回 field_size 超限
func (a *Assembler) readLimited(src io.Reader) (string, error) {
	if a.limits.MaxFieldSize > 0 {
		src = io.LimitReader(src, a.limits.MaxFieldSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if a.limits.MaxFieldSize > 0 && int64(len(data)) > a.limits.MaxFieldSize {
		return "", &ledger.LimitError{Kind: ledger.LimitFieldSize, Limit: a.limits.MaxFieldSize}
	}
	return string(data), nil
}

func (a *Assembler) checkFieldCount(req *Request) error {
	if a.limits.MaxFieldCount > 0 && req.fieldParts >= a.limits.MaxFieldCount {
		return &ledger.LimitError{Kind: ledger.LimitFieldCount, Limit: int64(a.limits.MaxFieldCount)}
	}
	req.fieldParts++
	return nil
}
