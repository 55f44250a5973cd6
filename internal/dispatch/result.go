package dispatch

import "encoding/json"

// 系统错误结果的固定取值
const (
	SysErrCode    = "SYSERR"
	SysErrMessage = "System error."
)

// Result 单个命令的结果
type Result map[string]any

// ResultFields 结果中由调度器写入的保留字段名
type ResultFields struct {
	ErrCode   string
	ErrMsg    string
	ErrLoc    string
	Args      string
	Exception string
	ID        string
	ExecTime  string
}

// DefaultFields 默认保留字段名
func DefaultFields() ResultFields {
	return ResultFields{
		ErrCode:   "_errcode",
		ErrMsg:    "_errmsg",
		ErrLoc:    "_errloc",
		Args:      "_args",
		Exception: "_e",
		ID:        "_id",
		ExecTime:  "_exectime",
	}
}

// Aggregate 一次批量调用的汇总结果
type Aggregate struct {
	CommandCount  int      `json:"commandCount"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Aborted       int      `json:"aborted"`
	Results       []Result `json:"results"`
	TotalExecTime *float64 `json:"totalExecTime,omitempty"`
}

// clone 浅拷贝，nil 返回空结果
func (r Result) clone() Result {
	out := make(Result, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Failed 结果的错误码字段存在且为真值时视为失败
func (r Result) Failed(fields ResultFields) bool {
	return truthy(r[fields.ErrCode])
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case int32:
		return x != 0
	case uint:
		return x != 0
	case uint64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}
