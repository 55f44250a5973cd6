package commands

import (
	"context"
	"time"

	"batchrpc/internal/dispatch"
)

func ping(now func() time.Time) dispatch.HandlerFunc {
	return func(context.Context, *dispatch.Call) (dispatch.Result, error) {
		return dispatch.Result{"pong": true, "time": now().UTC().Format(time.RFC3339)}, nil
	}
}

// echo 原样返回参数（浅拷贝，结果字段不会写回参数）
func echo(_ context.Context, call *dispatch.Call) (dispatch.Result, error) {
	res := make(dispatch.Result, len(call.Args))
	for k, v := range call.Args {
		res[k] = v
	}
	return res, nil
}

func serverTime(now func() time.Time) dispatch.HandlerFunc {
	return func(_ context.Context, call *dispatch.Call) (dispatch.Result, error) {
		t := now()
		if tz := call.StringOr("tz", ""); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return call.Fail(CodeBadArgs, "unknown time zone: "+tz), nil
			}
			t = t.In(loc)
		}
		return dispatch.Result{
			"iso":  t.Format(time.RFC3339Nano),
			"unix": t.UnixMilli(),
		}, nil
	}
}

// filesList 返回本命令收到的上传文件元信息
func filesList(_ context.Context, call *dispatch.Call) (dispatch.Result, error) {
	files := make([]map[string]any, 0, len(call.Files))
	for _, f := range call.Files {
		item := map[string]any{
			"field":    f.Field,
			"filename": f.Filename,
			"bytes":    f.Bytes,
		}
		if f.MimeType != "" {
			item["mimeType"] = f.MimeType
		}
		if f.Encoding != "" {
			item["encoding"] = f.Encoding
		}
		files = append(files, item)
	}
	return dispatch.Result{"files": files, "count": len(files)}, nil
}
