// Package payload 定义批量调用请求体及其解析
//
// POST 请求体的 payload 字段格式：
//
//	{ "commands": [ { "cmd": "<name>", "args": {...}, "id": <any>? }, ... ],
//	  "options":  { "ignoreErrors": bool?, "benchmark": bool? } }
//
// GET 请求通过 FromURL 转换为同样的结构（单命令）。
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrInvalid 请求体无效（缺失、格式错误或命令列表为空）
var ErrInvalid = fmt.Errorf("invalid payload: %w", errdefs.ErrInvalidArgument)

// Command 单个命令描述
type Command struct {
	Cmd  string          `json:"cmd"`
	Args map[string]any  `json:"args"`
	ID   json.RawMessage `json:"id,omitempty"`
}

// HasID 命令是否携带客户端 id
func (c *Command) HasID() bool {
	return len(c.ID) > 0
}

// Options 批量执行选项
type Options struct {
	IgnoreErrors bool `json:"ignoreErrors"`
	Benchmark    bool `json:"benchmark"`
}

// Payload 批量调用请求体
type Payload struct {
	Commands []*Command `json:"commands"`
	Options  Options    `json:"options"`
}

// Decode 解析 POST payload 字段
func Decode(raw []byte) (*Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}

	var doc struct {
		Commands json.RawMessage `json:"commands"`
		Options  *Options        `json:"options"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	p := &Payload{}
	if doc.Options != nil {
		p.Options = *doc.Options
	}

	commands := bytes.TrimSpace(doc.Commands)
	if len(commands) == 0 || commands[0] != '[' {
		return nil, fmt.Errorf("%w: commands must be an array", ErrInvalid)
	}
	if err := json.Unmarshal(commands, &p.Commands); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 校验命令列表
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: missing", ErrInvalid)
	}
	if len(p.Commands) == 0 {
		return fmt.Errorf("%w: no commands", ErrInvalid)
	}
	for i, c := range p.Commands {
		if c == nil {
			return fmt.Errorf("%w: command %d is null", ErrInvalid, i)
		}
		if c.Args == nil {
			c.Args = map[string]any{}
		}
		if bytes.Equal(c.ID, []byte("null")) {
			c.ID = nil
		}
	}
	return nil
}

// IsInvalid 判断错误是否为请求体无效
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
