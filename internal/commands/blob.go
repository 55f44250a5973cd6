package commands

import (
	"context"
	"path"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"

	"batchrpc/internal/dispatch"
)

type blobCommands struct {
	store BlobStore
}

// put 将本命令收到的上传文件写入对象存储，参数 {prefix?}
func (b *blobCommands) put(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	if len(call.Files) == 0 {
		return call.Fail(CodeBadArgs, "no uploaded files"), nil
	}
	prefix := strings.Trim(call.StringOr("prefix", ""), "/")

	objects := make([]map[string]any, 0, len(call.Files))
	for _, f := range call.Files {
		key := objectKey(prefix, f.Filename)

		fd, err := f.Open()
		if err != nil {
			return nil, err
		}
		info, err := b.store.Upload(ctx, key, fd, f.Bytes, f.MimeType)
		fd.Close()
		if err != nil {
			return nil, err
		}

		objects = append(objects, map[string]any{
			"field":    f.Field,
			"filename": f.Filename,
			"key":      key,
			"size":     info.Size,
			"etag":     info.ETag,
		})
	}
	return dispatch.Result{"objects": objects}, nil
}

// get 以下载方式返回对象，参数 {key, filename?}
//
// 成功时响应已由本命令发送，批量中后续命令不再执行。
func (b *blobCommands) get(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	key, fail := objectKeyArg(call)
	if fail != nil {
		return fail, nil
	}
	if call.Response == nil {
		return call.Fail(CodeUnavailable, "streaming response not available"), nil
	}

	rc, info, err := b.store.Download(ctx, key)
	if errdefs.IsNotFound(err) {
		return call.Fail(CodeNotFound, "object not found: "+key), nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	filename := call.StringOr("filename", path.Base(key))
	return nil, call.Response.SendStream(rc, filename, info.ContentType, info.Size)
}

func (b *blobCommands) stat(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	key, fail := objectKeyArg(call)
	if fail != nil {
		return fail, nil
	}
	info, err := b.store.Stat(ctx, key)
	if errdefs.IsNotFound(err) {
		return call.Fail(CodeNotFound, "object not found: "+key), nil
	}
	if err != nil {
		return nil, err
	}
	return dispatch.Result{
		"key":          info.Key,
		"size":         info.Size,
		"contentType":  info.ContentType,
		"etag":         info.ETag,
		"lastModified": info.LastModified,
	}, nil
}

func (b *blobCommands) del(ctx context.Context, call *dispatch.Call) (dispatch.Result, error) {
	key, fail := objectKeyArg(call)
	if fail != nil {
		return fail, nil
	}
	if err := b.store.Delete(ctx, key); err != nil {
		return nil, err
	}
	return dispatch.Result{"key": key, "deleted": true}, nil
}

func objectKeyArg(call *dispatch.Call) (string, dispatch.Result) {
	key, _ := call.String("key")
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", call.Fail(CodeBadArgs, "invalid object key")
	}
	return key, nil
}

// objectKey 生成对象键：<prefix>/<uuid>/<filename>
func objectKey(prefix, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	key := uuid.NewString() + "/" + name
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
