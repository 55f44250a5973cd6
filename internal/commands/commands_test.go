package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchrpc/internal/dispatch"
	"batchrpc/internal/ledger"
	"batchrpc/internal/payload"
	"batchrpc/internal/response"
	"batchrpc/internal/shared/cache"
	objstore "batchrpc/internal/shared/minio"
)

var fixedNow = time.Date(2024, 2, 29, 12, 30, 0, 0, time.UTC)

// ============================================================================
// fakeBlobStore
// ============================================================================

type fakeObject struct {
	data        []byte
	contentType string
}

type fakeBlobStore struct {
	objects map[string]fakeObject
	failAll error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string]fakeObject)}
}

func (f *fakeBlobStore) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) (objstore.ObjectInfo, error) {
	if f.failAll != nil {
		return objstore.ObjectInfo{}, f.failAll
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return objstore.ObjectInfo{}, err
	}
	if int64(len(data)) != size {
		return objstore.ObjectInfo{}, errors.New("size mismatch")
	}
	f.objects[key] = fakeObject{data: data, contentType: contentType}
	return objstore.ObjectInfo{Key: key, Size: size, ContentType: contentType, ETag: "etag-" + key}, nil
}

func (f *fakeBlobStore) Download(_ context.Context, key string) (io.ReadCloser, objstore.ObjectInfo, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, objstore.ObjectInfo{}, objstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), objstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeBlobStore) Stat(_ context.Context, key string) (objstore.ObjectInfo, error) {
	obj, ok := f.objects[key]
	if !ok {
		return objstore.ObjectInfo{}, objstore.ErrNotFound
	}
	return objstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

// ============================================================================
// 测试辅助
// ============================================================================

type harness struct {
	d     *dispatch.Dispatcher
	cache *cache.MemoryCache
	blob  *fakeBlobStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{cache: cache.NewMemoryCache(), blob: newFakeBlobStore()}
	reg := dispatch.NewRegistry()
	require.NoError(t, Register(reg, Deps{Cache: h.cache, Blob: h.blob, Now: func() time.Time { return fixedNow }}))
	h.d = dispatch.New(reg, dispatch.Options{})
	return h
}

// run 执行单个命令并返回结果
func (h *harness) run(t *testing.T, cmd string, args map[string]any) dispatch.Result {
	t.Helper()
	return h.runWith(t, cmd, args, nil, dispatch.Env{})
}

func (h *harness) runWith(t *testing.T, cmd string, args map[string]any, files *ledger.Ledger, env dispatch.Env) dispatch.Result {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	p := &payload.Payload{Commands: []*payload.Command{{Cmd: cmd, Args: args}}}
	agg, _, err := h.d.Run(context.Background(), p, files, env)
	require.NoError(t, err)
	if agg == nil {
		return nil
	}
	require.Len(t, agg.Results, 1)
	return agg.Results[0]
}

func uploadLedger(t *testing.T, name, content string) *ledger.Ledger {
	t.Helper()
	l := ledger.New(ledger.Limits{}, t.TempDir())
	rec, err := l.Allocate("file", ledger.Meta{Filename: name, MimeType: "text/plain"})
	require.NoError(t, err)
	require.NoError(t, l.Append(rec, []byte(content)))
	require.NoError(t, l.Finalize(rec))
	t.Cleanup(l.ReleaseAll)
	return l
}

// ============================================================================
// 注册
// ============================================================================

func TestRegister(t *testing.T) {
	reg := dispatch.NewRegistry()
	require.NoError(t, Register(reg, Deps{}))
	assert.Equal(t, []string{"echo", "files.list", "ping", "time"}, reg.Names())

	full := dispatch.NewRegistry()
	require.NoError(t, Register(full, Deps{Cache: cache.NewMemoryCache(), Blob: newFakeBlobStore()}))
	assert.Equal(t, 11, full.Len())

	assert.Error(t, Register(full, Deps{}), "重复注册应失败")
}

// ============================================================================
// 基础命令
// ============================================================================

func TestPingEchoTime(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, dispatch.Result{"pong": true, "time": "2024-02-29T12:30:00Z"}, h.run(t, "ping", nil))
	assert.Equal(t, dispatch.Result{"a": "b", "n": 1.0}, h.run(t, "echo", map[string]any{"a": "b", "n": 1.0}))

	res := h.run(t, "time", nil)
	assert.Equal(t, fixedNow.UnixMilli(), res["unix"])
	assert.Equal(t, "2024-02-29T12:30:00Z", res["iso"])

	res = h.run(t, "time", map[string]any{"tz": "Mars/Olympus"})
	assert.Equal(t, CodeBadArgs, res["_errcode"])
}

func TestEchoDoesNotAliasArgs(t *testing.T) {
	h := newHarness(t)
	args := map[string]any{"a": 1.0}
	p := &payload.Payload{Commands: []*payload.Command{{Cmd: "echo", Args: args, ID: []byte(`"id-1"`)}}}

	agg, _, err := h.d.Run(context.Background(), p, nil, dispatch.Env{})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"id-1"`), agg.Results[0]["_id"])
	assert.NotContains(t, args, "_id")
}

func TestFilesList(t *testing.T) {
	h := newHarness(t)
	res := h.runWith(t, "files.list", nil, uploadLedger(t, "a.txt", "hello"), dispatch.Env{})

	assert.Equal(t, 1, res["count"])
	files := res["files"].([]map[string]any)
	assert.Equal(t, "a.txt", files[0]["filename"])
	assert.Equal(t, int64(5), files[0]["bytes"])
	assert.Equal(t, "text/plain", files[0]["mimeType"])
	assert.NotContains(t, files[0], "encoding")

	empty := h.run(t, "files.list", nil)
	assert.Equal(t, 0, empty["count"])
}

// ============================================================================
// kv.*
// ============================================================================

func TestKV(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, dispatch.Result{"key": "k", "stored": true}, h.run(t, "kv.set", map[string]any{"key": "k", "value": "v", "ttl": 60.0}))

	res := h.run(t, "kv.get", map[string]any{"key": "k"})
	assert.Equal(t, "v", res["value"])
	assert.Equal(t, int64(60), res["ttl"])

	h.run(t, "kv.set", map[string]any{"key": "obj", "value": map[string]any{"a": 1.0}})
	res = h.run(t, "kv.get", map[string]any{"key": "obj"})
	assert.Equal(t, `{"a":1}`, res["value"])
	assert.NotContains(t, res, "ttl")

	assert.Equal(t, dispatch.Result{"key": "k", "deleted": true}, h.run(t, "kv.del", map[string]any{"key": "k"}))
	assert.Equal(t, dispatch.Result{"key": "k", "deleted": false}, h.run(t, "kv.del", map[string]any{"key": "k"}))

	res = h.run(t, "kv.get", map[string]any{"key": "k"})
	assert.Equal(t, CodeNotFound, res["_errcode"])
	assert.Equal(t, "kv.get", res["_errloc"])
}

func TestKV_BadArgs(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		cmd  string
		args map[string]any
	}{
		{"kv.get", map[string]any{}},
		{"kv.get", map[string]any{"key": "has space"}},
		{"kv.set", map[string]any{"key": "k"}},
		{"kv.set", map[string]any{"key": "k", "value": "v", "ttl": -1.0}},
		{"kv.set", map[string]any{"key": "k", "value": "v", "ttl": "soon"}},
		{"kv.del", map[string]any{"key": ""}},
	}
	for _, tt := range tests {
		res := h.run(t, tt.cmd, tt.args)
		assert.Equal(t, CodeBadArgs, res["_errcode"], "%s %v", tt.cmd, tt.args)
	}
}

// GET 调用的参数均为字符串
func TestKV_StringTTL(t *testing.T) {
	h := newHarness(t)
	res := h.run(t, "kv.set", map[string]any{"key": "k", "value": "v", "ttl": "30"})
	assert.Equal(t, true, res["stored"])
}

// ============================================================================
// blob.*
// ============================================================================

func TestBlobPutStatDel(t *testing.T) {
	h := newHarness(t)

	res := h.runWith(t, "blob.put", map[string]any{"prefix": "/docs/"}, uploadLedger(t, "../../report.txt", "content"), dispatch.Env{})
	require.NotContains(t, res, "_errcode")
	objects := res["objects"].([]map[string]any)
	require.Len(t, objects, 1)

	key := objects[0]["key"].(string)
	assert.Regexp(t, `^docs/[0-9a-f-]{36}/report\.txt$`, key)
	assert.Equal(t, int64(7), objects[0]["size"])
	assert.Equal(t, "content", string(h.blob.objects[key].data))

	st := h.run(t, "blob.stat", map[string]any{"key": key})
	assert.Equal(t, int64(7), st["size"])
	assert.Equal(t, "text/plain", st["contentType"])

	assert.Equal(t, true, h.run(t, "blob.del", map[string]any{"key": key})["deleted"])
	assert.Equal(t, CodeNotFound, h.run(t, "blob.stat", map[string]any{"key": key})["_errcode"])
}

func TestBlobPut_Errors(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, CodeBadArgs, h.run(t, "blob.put", nil)["_errcode"])

	h.blob.failAll = errors.New("minio down")
	res := h.runWith(t, "blob.put", nil, uploadLedger(t, "a.txt", "x"), dispatch.Env{})
	assert.Equal(t, dispatch.SysErrCode, res["_errcode"])
}

func TestBlobGet_Streams(t *testing.T) {
	h := newHarness(t)
	h.blob.objects["docs/a.pdf"] = fakeObject{data: []byte("%PDF"), contentType: "application/pdf"}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	env := dispatch.Env{Request: r, Writer: w, Finalizer: response.New(w, r, nil)}

	res := h.runWith(t, "blob.get", map[string]any{"key": "docs/a.pdf", "filename": "Report.pdf"}, nil, env)
	assert.Nil(t, res, "字节流响应不生成汇总结果")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="Report.pdf"`)
}

func TestBlobGet_Failures(t *testing.T) {
	h := newHarness(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	env := dispatch.Env{Request: r, Writer: w, Finalizer: response.New(w, r, nil)}

	res := h.runWith(t, "blob.get", map[string]any{"key": "missing"}, nil, env)
	assert.Equal(t, CodeNotFound, res["_errcode"])
	assert.False(t, env.Finalizer.Finalized())

	assert.Equal(t, CodeBadArgs, h.run(t, "blob.get", map[string]any{"key": "../etc/passwd"})["_errcode"])
	assert.Equal(t, CodeUnavailable, h.run(t, "blob.get", map[string]any{"key": "a"})["_errcode"])
}
