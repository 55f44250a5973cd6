package ledger

import (
	"os"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertGone(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "临时文件 %s 应已删除", path)
}

func TestLedger_AllocateAppendFinalize(t *testing.T) {
	l := New(Limits{}, t.TempDir())
	defer l.ReleaseAll()

	rec, err := l.Allocate("doc", Meta{Filename: "a.txt", Encoding: "7bit", MimeType: "text/plain"})
	require.NoError(t, err)
	require.NoError(t, l.Append(rec, []byte("hello ")))
	require.NoError(t, l.Append(rec, []byte("world")))
	require.NoError(t, l.Finalize(rec))

	assert.Equal(t, "doc", rec.Field)
	assert.Equal(t, "a.txt", rec.Filename)
	assert.Equal(t, int64(11), rec.Bytes)

	data, err := os.ReadFile(rec.TempPath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, 1, l.Len())
}

func TestLedger_ReleaseAllRemovesFilesAndIsIdempotent(t *testing.T) {
	l := New(Limits{}, t.TempDir())

	a, err := l.Allocate("a", Meta{Filename: "a"})
	require.NoError(t, err)
	require.NoError(t, l.Finalize(a))
	b, err := l.Allocate("b", Meta{Filename: "b"})
	require.NoError(t, err)
	// b 未 Finalize，ReleaseAll 也必须关闭并删除

	l.ReleaseAll()
	l.ReleaseAll()

	assertGone(t, a.TempPath)
	assertGone(t, b.TempPath)

	_, err = l.Allocate("c", Meta{})
	assert.ErrorIs(t, err, ErrReleased)
}

func TestLedger_MaxFileCount(t *testing.T) {
	l := New(Limits{MaxFileCount: 2}, t.TempDir())
	defer l.ReleaseAll()

	a, err := l.Allocate("a", Meta{})
	require.NoError(t, err)
	b, err := l.Allocate("b", Meta{})
	require.NoError(t, err)

	_, err = l.Allocate("c", Meta{})
	require.Error(t, err)

	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, LimitFileCount, le.Kind)
	assert.True(t, IsLimit(err))
	assert.True(t, errdefs.IsResourceExhausted(err))

	assertGone(t, a.TempPath)
	assertGone(t, b.TempPath)
	assert.Empty(t, l.Take())
}

func TestLedger_MaxFileSize(t *testing.T) {
	l := New(Limits{MaxFileSize: 4}, t.TempDir())
	defer l.ReleaseAll()

	first, err := l.Allocate("first", Meta{})
	require.NoError(t, err)
	require.NoError(t, l.Append(first, []byte("ok")))
	require.NoError(t, l.Finalize(first))

	big, err := l.Allocate("big", Meta{})
	require.NoError(t, err)
	require.NoError(t, l.Append(big, []byte("abcd")))

	err = l.Append(big, []byte("e"))
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, LimitFileSize, le.Kind)
	assert.Equal(t, int64(4), le.Limit)

	assertGone(t, first.TempPath)
	assertGone(t, big.TempPath)

	// 超限后继续写入被拒绝
	assert.ErrorIs(t, l.Append(big, []byte("x")), ErrReleased)
}

func TestLedger_TakeConsumesOnce(t *testing.T) {
	l := New(Limits{}, t.TempDir())
	defer l.ReleaseAll()

	rec, err := l.Allocate("f", Meta{})
	require.NoError(t, err)
	require.NoError(t, l.Finalize(rec))

	files := l.Take()
	require.Len(t, files, 1)
	assert.Same(t, rec, files[0])
	assert.Empty(t, l.Take())

	// 已交出的文件仍由 Ledger 清理
	assert.Len(t, l.Files(), 1)
	l.ReleaseAll()
	assertGone(t, rec.TempPath)
}

func TestFileRecord_Open(t *testing.T) {
	l := New(Limits{}, t.TempDir())
	defer l.ReleaseAll()

	rec, err := l.Allocate("f", Meta{})
	require.NoError(t, err)
	require.NoError(t, l.Append(rec, []byte("data")))
	require.NoError(t, l.Finalize(rec))

	f, err := rec.Open()
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 8)
	n, _ := f.Read(buf)
	assert.Equal(t, "data", string(buf[:n]))
}
